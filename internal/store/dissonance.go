package store

import (
	"database/sql"
	"fmt"
)

func (s *SQLiteStore) SaveDissonance(d *Dissonance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO dissonance_queue (id, agent_id, kind, memory_id, other_memory_id, description,
		   suggested_region, suggested_project, status, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		d.ID, d.AgentID, d.Kind, d.MemoryID, nullIfEmpty(d.OtherMemoryID), nullIfEmpty(d.Description),
		nullIfEmpty(string(d.SuggestedRegion)), nullIfEmpty(d.SuggestedProject), d.Status, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save dissonance: %w", err)
	}
	return nil
}

// HasDissonanceForPair reports whether an open CONTRADICTION already links
// this pair of memories, in either order (spec §4.10.2: don't re-flag).
func (s *SQLiteStore) HasDissonanceForPair(agentID, memA, memB string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM dissonance_queue
		 WHERE agent_id = ? AND kind = ? AND status = ? AND
		   ((memory_id = ? AND other_memory_id = ?) OR (memory_id = ? AND other_memory_id = ?))`,
		agentID, DissonanceContradiction, DissonanceOpen, memA, memB, memB, memA,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has dissonance for pair: %w", err)
	}
	return n > 0, nil
}

// HasScopeDissonance reports whether an open SCOPE_UNCLEAR row already
// exists for memoryID.
func (s *SQLiteStore) HasScopeDissonance(agentID, memoryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM dissonance_queue WHERE agent_id = ? AND kind = ? AND status = ? AND memory_id = ?`,
		agentID, DissonanceScopeUnclear, DissonanceOpen, memoryID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has scope dissonance: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetOpenDissonances(agentID string) ([]*Dissonance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, agent_id, kind, memory_id, other_memory_id, description, suggested_region,
		   suggested_project, status, created_at
		 FROM dissonance_queue WHERE agent_id = ? AND status = ? ORDER BY created_at DESC`,
		agentID, DissonanceOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get open dissonances: %w", err)
	}
	defer rows.Close()

	var out []*Dissonance
	for rows.Next() {
		d := &Dissonance{}
		var otherMemoryID, description, suggestedRegion, suggestedProject sql.NullString
		if err := rows.Scan(
			&d.ID, &d.AgentID, &d.Kind, &d.MemoryID, &otherMemoryID, &description,
			&suggestedRegion, &suggestedProject, &d.Status, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan dissonance: %w", err)
		}
		d.OtherMemoryID = otherMemoryID.String
		d.Description = description.String
		d.SuggestedRegion = Region(suggestedRegion.String)
		d.SuggestedProject = suggestedProject.String
		out = append(out, d)
	}
	return out, rows.Err()
}
