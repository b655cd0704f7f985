package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const dreamColumns = `id, agent_id, project_id, state, started_at, updated_at,
	n2_result_json, n3_result_json, rem_result_json`

func scanDream(row interface{ Scan(...any) error }) (*DreamSession, error) {
	d := &DreamSession{}
	var projectID sql.NullString
	err := row.Scan(
		&d.ID, &d.AgentID, &projectID, &d.State, &d.StartedAt, &d.UpdatedAt,
		&d.N2ResultJSON, &d.N3ResultJSON, &d.REMResultJSON,
	)
	if err != nil {
		return nil, err
	}
	d.ProjectID = projectID.String
	return d, nil
}

func (s *SQLiteStore) SaveDreamSession(d *DreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO dream_sessions (`+dreamColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state, updated_at = excluded.updated_at,
		   n2_result_json = excluded.n2_result_json,
		   n3_result_json = excluded.n3_result_json,
		   rem_result_json = excluded.rem_result_json`,
		d.ID, d.AgentID, nullIfEmpty(d.ProjectID), d.State, d.StartedAt, d.UpdatedAt,
		d.N2ResultJSON, d.N3ResultJSON, d.REMResultJSON,
	)
	if err != nil {
		return fmt.Errorf("store: save dream session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDreamSession(id string) (*DreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+dreamColumns+` FROM dream_sessions WHERE id = ?`, id)
	d, err := scanDream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get dream session: %w", err)
	}
	return d, nil
}

// GetActiveDreamSession returns the one in-flight (non-terminal) session for
// an agent/project pair, if any (spec §4.9: at most one active session).
func (s *SQLiteStore) GetActiveDreamSession(agentID, projectID string) (*DreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row *sql.Row
	if projectID != "" {
		row = s.db.QueryRow(
			`SELECT `+dreamColumns+` FROM dream_sessions
			 WHERE agent_id = ? AND project_id = ? AND state NOT IN (?, ?) ORDER BY started_at DESC LIMIT 1`,
			agentID, projectID, DreamIdle, DreamComplete,
		)
	} else {
		row = s.db.QueryRow(
			`SELECT `+dreamColumns+` FROM dream_sessions
			 WHERE agent_id = ? AND project_id IS NULL AND state NOT IN (?, ?) ORDER BY started_at DESC LIMIT 1`,
			agentID, DreamIdle, DreamComplete,
		)
	}
	d, err := scanDream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get active dream session: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) DeleteDreamSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM dream_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete dream session: %w", err)
	}
	return nil
}

// GCDreamSessions removes completed sessions older than olderThan, returning
// the count removed (spec §4.9 "sessions are garbage-collected once complete").
func (s *SQLiteStore) GCDreamSessions(olderThan int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`DELETE FROM dream_sessions WHERE state = ? AND updated_at < ?`,
		DreamComplete, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("store: gc dream sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: gc dream sessions rows affected: %w", err)
	}
	return int(n), nil
}
