package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const memoryColumns = `id, agent_id, region, project_id, kind, content, original_content,
	impact, confidence, created_at, last_accessed, previous_memory_id, version,
	superseded_by, signature, token_count, platform, session_id, git_commit,
	git_branch, embedding, tier`

func scanMemory(row interface{ Scan(...any) error }) (*Memory, error) {
	m := &Memory{}
	var (
		projectID, previousID, supersededBy, platform, sessionID, gitCommit, gitBranch sql.NullString
		signature, embedding                                                           []byte
		tokenCount                                                                     sql.NullInt64
	)
	err := row.Scan(
		&m.ID, &m.AgentID, &m.Region, &projectID, &m.Kind, &m.Content, &m.OriginalContent,
		&m.Impact, &m.Confidence, &m.CreatedAt, &m.LastAccessed, &previousID, &m.Version,
		&supersededBy, &signature, &tokenCount, &platform, &sessionID, &gitCommit,
		&gitBranch, &embedding, &m.Tier,
	)
	if err != nil {
		return nil, err
	}
	m.ProjectID = projectID.String
	m.PreviousMemoryID = previousID.String
	m.SupersededBy = supersededBy.String
	m.Platform = platform.String
	m.SessionID = sessionID.String
	m.GitCommit = gitCommit.String
	m.GitBranch = gitBranch.String
	m.Signature = signature
	m.TokenCount = int(tokenCount.Int64)
	m.Embedding, err = decodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SaveMemory inserts or updates a memory, enforcing the configured creation
// limits (§4.1 "configurable limits") on insert only. It also mirrors any
// embedding into the memory_vec virtual table; the store's own queries
// read the embedding column on memories, not memory_vec.
func (s *SQLiteStore) SaveMemory(m *Memory) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM memories WHERE id = ?)`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("store: check memory existence: %w", err)
	}

	if !exists {
		if err := s.checkLimitsLocked(m); err != nil {
			return err
		}
	}

	projectID := sql.NullString{String: m.ProjectID, Valid: m.ProjectID != ""}
	embedding := encodeEmbedding(m.Embedding)

	_, err := s.db.Exec(
		`INSERT INTO memories (`+memoryColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   content=excluded.content, original_content=excluded.original_content,
		   impact=excluded.impact, confidence=excluded.confidence,
		   last_accessed=excluded.last_accessed, version=excluded.version,
		   superseded_by=excluded.superseded_by, signature=excluded.signature,
		   token_count=excluded.token_count, embedding=excluded.embedding,
		   tier=excluded.tier`,
		m.ID, m.AgentID, m.Region, projectID, m.Kind, m.Content, m.OriginalContent,
		m.Impact, m.Confidence, m.CreatedAt, m.LastAccessed, nullIfEmpty(m.PreviousMemoryID), m.Version,
		nullIfEmpty(m.SupersededBy), m.Signature, nullIfZero(m.TokenCount), nullIfEmpty(m.Platform),
		nullIfEmpty(m.SessionID), nullIfEmpty(m.GitCommit), nullIfEmpty(m.GitBranch), embedding, m.Tier,
	)
	if err != nil {
		return fmt.Errorf("store: save memory: %w", err)
	}

	if embedding != nil {
		if _, err := s.db.Exec(
			`INSERT INTO memory_vec (memory_id, embedding) VALUES (?, ?)
			 ON CONFLICT(memory_id) DO UPDATE SET embedding = excluded.embedding`,
			m.ID, embedding,
		); err != nil {
			return fmt.Errorf("store: mirror embedding: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) checkLimitsLocked(m *Memory) error {
	if s.limits.PerAgent > 0 {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ?`, m.AgentID).Scan(&n); err != nil {
			return fmt.Errorf("store: count agent memories: %w", err)
		}
		if n >= s.limits.PerAgent {
			return &LimitExceededError{Scope: "agent", Threshold: s.limits.PerAgent, Current: n}
		}
	}
	if s.limits.PerProject > 0 && m.ProjectID != "" {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE project_id = ?`, m.ProjectID).Scan(&n); err != nil {
			return fmt.Errorf("store: count project memories: %w", err)
		}
		if n >= s.limits.PerProject {
			return &LimitExceededError{Scope: "project", Threshold: s.limits.PerProject, Current: n}
		}
	}
	if s.limits.PerKind > 0 {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND kind = ?`, m.AgentID, m.Kind).Scan(&n); err != nil {
			return fmt.Errorf("store: count kind memories: %w", err)
		}
		if n >= s.limits.PerKind {
			return &LimitExceededError{Scope: "kind", Threshold: s.limits.PerKind, Current: n}
		}
	}
	return nil
}

func (s *SQLiteStore) GetMemory(id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get memory: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) queryMemories(query string, args ...any) ([]*Memory, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMemoriesForAgent(agentID string, region Region, projectID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if region == RegionProject {
		return s.queryMemories(
			`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND region = ? AND project_id = ? ORDER BY created_at DESC`,
			agentID, region, projectID,
		)
	}
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND region = ? ORDER BY created_at DESC`,
		agentID, region,
	)
}

// SearchMemories performs an escape-processed substring search over both
// content and original_content (spec §4.1: literal %, _, and \ in query
// must not alter match semantics). Superseded memories are excluded unless
// includeSuperseded is true.
func (s *SQLiteStore) SearchMemories(agentID, query, projectID string, limit int, includeSuperseded bool) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := "%" + escapeLikePattern(query) + "%"
	if limit <= 0 {
		limit = 50
	}

	supersededClause := ""
	if !includeSuperseded {
		supersededClause = "AND superseded_by IS NULL "
	}

	if projectID != "" {
		return s.queryMemories(
			`SELECT `+memoryColumns+` FROM memories
			 WHERE agent_id = ? AND project_id = ? AND (content LIKE ? ESCAPE '\' OR original_content LIKE ? ESCAPE '\') `+
				supersededClause+`ORDER BY created_at DESC LIMIT ?`,
			agentID, projectID, pattern, pattern, limit,
		)
	}
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories
		 WHERE agent_id = ? AND (content LIKE ? ESCAPE '\' OR original_content LIKE ? ESCAPE '\') `+
			supersededClause+`ORDER BY created_at DESC LIMIT ?`,
		agentID, pattern, pattern, limit,
	)
}

// escapeLikePattern escapes %, _, and \ so a user query cannot alter LIKE
// match semantics when embedded in a wildcard pattern.
func escapeLikePattern(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\', s[i])
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func (s *SQLiteStore) GetMemoriesByTier(agentID string, tier Tier, region Region, projectID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if region == RegionProject {
		return s.queryMemories(
			`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND tier = ? AND region = ? AND project_id = ? ORDER BY created_at DESC`,
			agentID, tier, region, projectID,
		)
	}
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND tier = ? AND region = ? ORDER BY created_at DESC`,
		agentID, tier, region,
	)
}

func (s *SQLiteStore) GetMemoriesByImpact(agentID string, impact Impact) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND impact = ? ORDER BY created_at DESC`,
		agentID, impact,
	)
}

func (s *SQLiteStore) GetMemoriesBySession(agentID, sessionID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND session_id = ? ORDER BY created_at ASC`,
		agentID, sessionID,
	)
}

func (s *SQLiteStore) GetMemoriesByGitCommit(agentID, commitPrefix string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND git_commit LIKE ? ESCAPE '\' ORDER BY created_at DESC`,
		agentID, escapeLikePattern(commitPrefix)+"%",
	)
}

func (s *SQLiteStore) GetMemoriesByGitBranch(agentID, branch string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND git_branch = ? ORDER BY created_at DESC`,
		agentID, branch,
	)
}

func (s *SQLiteStore) GetMemoriesWithEmbeddings(agentID string, region Region, projectID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if region == RegionProject {
		return s.queryMemories(
			`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND region = ? AND project_id = ? AND embedding IS NOT NULL`,
			agentID, region, projectID,
		)
	}
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND region = ? AND embedding IS NOT NULL`,
		agentID, region,
	)
}

func (s *SQLiteStore) GetMemoriesWithoutEmbeddings(agentID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND embedding IS NULL`,
		agentID,
	)
}

func (s *SQLiteStore) GetMemoriesWithTemporalContext(agentID string, since int64) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND created_at >= ? ORDER BY created_at ASC`,
		agentID, since,
	)
}

func (s *SQLiteStore) GetLatestMemoryOfKind(agentID string, kind Kind, region Region, projectID string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row *sql.Row
	if region == RegionProject {
		row = s.db.QueryRow(
			`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND kind = ? AND region = ? AND project_id = ? AND superseded_by IS NULL ORDER BY created_at DESC LIMIT 1`,
			agentID, kind, region, projectID,
		)
	} else {
		row = s.db.QueryRow(
			`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND kind = ? AND region = ? AND superseded_by IS NULL ORDER BY created_at DESC LIMIT 1`,
			agentID, kind, region,
		)
	}
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get latest memory of kind: %w", err)
	}
	return m, nil
}

// SupersedeMemory marks oldID as superseded by newID (spec §4.1 versioning).
func (s *SQLiteStore) SupersedeMemory(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE memories SET superseded_by = ? WHERE id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("store: supersede memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: supersede memory rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateTier(id string, tier Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE memories SET tier = ? WHERE id = ?`, tier, id)
	if err != nil {
		return fmt.Errorf("store: update tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update tier rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImpact applies a dream-stage impact promotion (§4.10.1 step 4).
func (s *SQLiteStore) UpdateImpact(id string, impact Impact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE memories SET impact = ? WHERE id = ?`, impact, id)
	if err != nil {
		return fmt.Errorf("store: update impact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update impact rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) TouchMemory(id string, accessedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE memories SET last_accessed = ? WHERE id = ?`, accessedAt, id)
	if err != nil {
		return fmt.Errorf("store: touch memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: touch memory rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountMemories(agentID, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	var err error
	if projectID != "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND project_id = ?`, agentID, projectID).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ?`, agentID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count memories: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountMemoriesByKind(agentID string, kind Kind, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	var err error
	if projectID != "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND kind = ? AND project_id = ?`, agentID, kind, projectID).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND kind = ?`, agentID, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count memories by kind: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIfZero(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
