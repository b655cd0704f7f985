package store

import "fmt"

func (s *SQLiteStore) SaveLink(l *MemoryLink) error {
	if !l.Kind.IsValid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("invalid link kind %q", l.Kind)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO memory_links (source_id, target_id, link_type, similarity, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, target_id) DO UPDATE SET
		   link_type = excluded.link_type, similarity = excluded.similarity`,
		l.SourceID, l.TargetID, l.Kind, l.Similarity, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save link: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLinksForMemory(id string) ([]*MemoryLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT source_id, target_id, link_type, similarity, created_at FROM memory_links
		 WHERE source_id = ? OR target_id = ?`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get links for memory: %w", err)
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		l := &MemoryLink{}
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.Kind, &l.Similarity, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLinkedMemoryIDs returns the ids reachable from id by a single hop,
// optionally filtered to one link kind (used by the BFS traversal in
// pkg/linkgraph, spec §4.2).
func (s *SQLiteStore) GetLinkedMemoryIDs(id string, linkType *LinkKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows interface {
		Next() bool
		Scan(...any) error
		Err() error
		Close() error
	}
	var err error
	if linkType != nil {
		rows, err = s.db.Query(
			`SELECT target_id FROM memory_links WHERE source_id = ? AND link_type = ?
			 UNION
			 SELECT source_id FROM memory_links WHERE target_id = ? AND link_type = ?`,
			id, *linkType, id, *linkType,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT target_id FROM memory_links WHERE source_id = ?
			 UNION
			 SELECT source_id FROM memory_links WHERE target_id = ?`,
			id, id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get linked memory ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			return nil, fmt.Errorf("store: scan linked id: %w", err)
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteLinksForMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM memory_links WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return fmt.Errorf("store: delete links for memory: %w", err)
	}
	return nil
}
