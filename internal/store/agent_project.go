package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

func (s *SQLiteStore) SaveAgent(a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO agents (id, name, signing_key) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, signing_key = excluded.signing_key`,
		a.ID, a.Name, a.SigningKey,
	)
	if err != nil {
		return fmt.Errorf("store: save agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := &Agent{}
	err := s.db.QueryRow(`SELECT id, name, signing_key FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.SigningKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent: %w", err)
	}
	return a, nil
}

// SaveProject upserts on the unique path, reconciling the id if a row for
// that path already exists under a different id (spec §4.6 "first write
// establishes the project identity for its path").
func (s *SQLiteStore) SaveProject(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM projects WHERE path = ?`, p.Path).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO projects (id, name, path) VALUES (?, ?, ?)`, p.ID, p.Name, p.Path); err != nil {
			return fmt.Errorf("store: save project: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: lookup project by path: %w", err)
	}

	p.ID = existingID
	if _, err := s.db.Exec(`UPDATE projects SET name = ? WHERE id = ?`, p.Name, existingID); err != nil {
		return fmt.Errorf("store: update project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProjectByPath(path string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &Project{}
	err := s.db.QueryRow(`SELECT id, name, path FROM projects WHERE path = ?`, path).
		Scan(&p.ID, &p.Name, &p.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project by path: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProject(id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &Project{}
	err := s.db.QueryRow(`SELECT id, name, path FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project: %w", err)
	}
	return p, nil
}
