package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SchemaVersion is the current monotonic schema version (§6.4).
const SchemaVersion = 1

// Limits bounds memory creation (§4.1 "Configurable limits"). A zero value
// in any field means unlimited for that scope. Updates never count
// against these limits.
type Limits struct {
	PerAgent   int
	PerProject int
	PerKind    int
}

// Storer is the memory-store contract described in spec §4.1. SQLiteStore
// is the sole implementation.
type Storer interface {
	SaveAgent(a *Agent) error
	GetAgent(id string) (*Agent, error)

	SaveProject(p *Project) error
	GetProjectByPath(path string) (*Project, error)
	GetProject(id string) (*Project, error)

	SaveMemory(m *Memory) error
	GetMemory(id string) (*Memory, error)
	GetMemoriesForAgent(agentID string, region Region, projectID string) ([]*Memory, error)
	SearchMemories(agentID, query, projectID string, limit int, includeSuperseded bool) ([]*Memory, error)
	GetMemoriesByTier(agentID string, tier Tier, region Region, projectID string) ([]*Memory, error)
	GetMemoriesByImpact(agentID string, impact Impact) ([]*Memory, error)
	GetMemoriesBySession(agentID, sessionID string) ([]*Memory, error)
	GetMemoriesByGitCommit(agentID, commitPrefix string) ([]*Memory, error)
	GetMemoriesByGitBranch(agentID, branch string) ([]*Memory, error)
	GetMemoriesWithEmbeddings(agentID string, region Region, projectID string) ([]*Memory, error)
	GetMemoriesWithoutEmbeddings(agentID string) ([]*Memory, error)
	GetMemoriesWithTemporalContext(agentID string, since int64) ([]*Memory, error)
	GetLatestMemoryOfKind(agentID string, kind Kind, region Region, projectID string) (*Memory, error)
	SupersedeMemory(oldID, newID string) error
	UpdateTier(id string, tier Tier) error
	UpdateImpact(id string, impact Impact) error
	TouchMemory(id string, accessedAt int64) error
	CountMemories(agentID, projectID string) (int, error)
	CountMemoriesByKind(agentID string, kind Kind, projectID string) (int, error)

	SaveLink(l *MemoryLink) error
	GetLinksForMemory(id string) ([]*MemoryLink, error)
	GetLinkedMemoryIDs(id string, linkType *LinkKind) ([]string, error)
	DeleteLinksForMemory(id string) error

	SaveCuriosity(c *Curiosity) error
	GetOpenCuriosities(agentID string) ([]*Curiosity, error)
	GetCuriosity(id string) (*Curiosity, error)

	SaveDissonance(d *Dissonance) error
	HasDissonanceForPair(agentID, memA, memB string) (bool, error)
	HasScopeDissonance(agentID, memoryID string) (bool, error)
	GetOpenDissonances(agentID string) ([]*Dissonance, error)

	SaveDreamSession(d *DreamSession) error
	GetDreamSession(id string) (*DreamSession, error)
	GetActiveDreamSession(agentID, projectID string) (*DreamSession, error)
	DeleteDreamSession(id string) error
	GCDreamSessions(olderThan int64) (int, error)

	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error

	SetLimits(l Limits)

	Close() error
}

// SQLiteStore is the SQLite-backed data store. Thread-safe: one writer,
// many readers (§5 single-writer model).
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	limits Limits
}

// NewSQLiteStore opens an in-memory store (mainly for tests).
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN opens (creating if absent) a store at dsn, running
// schema migrations as needed (§4.1, §6.4, §7 migration error handling).
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer model; avoid SQLITE_BUSY under the mutex

	s := &SQLiteStore{db: db}
	if err := s.migrate(dsn); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetLimits installs per-agent/per-project/per-kind creation caps.
func (s *SQLiteStore) SetLimits(l Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = l
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowMillis() int64 { return time.Now().UTC().UnixMilli() }

// migrate runs forward-only schema migrations, taking a timestamped backup
// of a file-based database before any destructive step (§4.1, §6.4, §7).
// Fresh (version-0, empty) databases skip straight to the current version.
func (s *SQLiteStore) migrate(dsn string) error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if version == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return fmt.Errorf("store: set schema version: %w", err)
		}
		return nil
	}

	for version < SchemaVersion {
		backupPath, isFile := backupTarget(dsn)
		if isFile {
			if err := copyFile(dsn, backupPath); err != nil {
				return fmt.Errorf("store: migration backup: %w", err)
			}
		}

		migrateFn, ok := migrations[version]
		if !ok {
			return fmt.Errorf("store: no migration step from version %d", version)
		}
		if err := migrateFn(s.db); err != nil {
			if isFile {
				restoreErr := copyFile(backupPath, dsn)
				return fmt.Errorf("store: migration v%d failed (restored from backup, restore_err=%v): %w", version, restoreErr, err)
			}
			return fmt.Errorf("store: migration v%d failed: %w", version, err)
		}
		version++
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
			return fmt.Errorf("store: set schema version: %w", err)
		}
	}
	return nil
}

// migrations maps "from version" to a forward-only step function. Empty
// for a brand-new single-version schema; populated as the schema evolves.
var migrations = map[int]func(*sql.DB) error{}

func backupTarget(dsn string) (path string, isFile bool) {
	if dsn == "" || dsn == ":memory:" {
		return "", false
	}
	ts := time.Now().UTC().Format("20060102_150405")
	dir := filepath.Dir(dsn)
	base := filepath.Base(dsn)
	return filepath.Join(dir, fmt.Sprintf("%s.backup_%s", base, ts)), true
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
