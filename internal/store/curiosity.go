package store

import (
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) SaveCuriosity(c *Curiosity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO curiosity_queue (id, agent_id, region, project_id, question, context,
		   recurrence_count, first_seen, last_seen, status, priority_boost)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   recurrence_count = excluded.recurrence_count,
		   last_seen = excluded.last_seen,
		   status = excluded.status,
		   priority_boost = excluded.priority_boost,
		   context = excluded.context`,
		c.ID, c.AgentID, c.Region, nullIfEmpty(c.ProjectID), c.Question, nullIfEmpty(c.Context),
		c.RecurrenceCount, c.FirstSeen, c.LastSeen, c.Status, c.PriorityBoost,
	)
	if err != nil {
		return fmt.Errorf("store: save curiosity: %w", err)
	}
	return nil
}

func scanCuriosity(row interface{ Scan(...any) error }) (*Curiosity, error) {
	c := &Curiosity{}
	var projectID, context sql.NullString
	err := row.Scan(
		&c.ID, &c.AgentID, &c.Region, &projectID, &c.Question, &context,
		&c.RecurrenceCount, &c.FirstSeen, &c.LastSeen, &c.Status, &c.PriorityBoost,
	)
	if err != nil {
		return nil, err
	}
	c.ProjectID = projectID.String
	c.Context = context.String
	return c, nil
}

const curiosityColumns = `id, agent_id, region, project_id, question, context,
	recurrence_count, first_seen, last_seen, status, priority_boost`

func (s *SQLiteStore) GetOpenCuriosities(agentID string) ([]*Curiosity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+curiosityColumns+` FROM curiosity_queue WHERE agent_id = ? AND status = ? ORDER BY last_seen DESC`,
		agentID, CuriosityOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get open curiosities: %w", err)
	}
	defer rows.Close()

	var out []*Curiosity
	for rows.Next() {
		c, err := scanCuriosity(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan curiosity: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCuriosity(id string) (*Curiosity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+curiosityColumns+` FROM curiosity_queue WHERE id = ?`, id)
	c, err := scanCuriosity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get curiosity: %w", err)
	}
	return c, nil
}
