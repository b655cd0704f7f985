package store

// schemaV1 defines every table named in spec §6.4 for a fresh database.
// Memory embeddings are additionally mirrored into the memory_vec vec0
// virtual table; no store query reads it, and similarity lookups scan
// the embedding BLOB on memories in Go.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    signing_key BLOB
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    region TEXT NOT NULL CHECK (region IN ('AGENT','PROJECT')),
    project_id TEXT,
    kind TEXT NOT NULL CHECK (kind IN ('EMOTIONAL','ARCHITECTURAL','LEARNINGS','ACHIEVEMENTS','INTROSPECT','DREAM')),
    content TEXT NOT NULL,
    original_content TEXT NOT NULL,
    impact TEXT NOT NULL CHECK (impact IN ('WIP','LOW','MEDIUM','HIGH','CRITICAL')),
    confidence REAL NOT NULL DEFAULT 1.0,
    created_at INTEGER NOT NULL,
    last_accessed INTEGER NOT NULL,
    previous_memory_id TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    superseded_by TEXT,
    signature BLOB,
    token_count INTEGER,
    platform TEXT,
    session_id TEXT,
    git_commit TEXT,
    git_branch TEXT,
    embedding BLOB,
    tier TEXT NOT NULL DEFAULT 'CONTEXTUAL' CHECK (tier IN ('CORE','ACTIVE','CONTEXTUAL','DEEP')),
    CHECK (region = 'AGENT' OR project_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_memories_agent_region ON memories(agent_id, region);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_impact ON memories(impact);
CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_superseded ON memories(superseded_by);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_git_commit ON memories(git_commit);
CREATE INDEX IF NOT EXISTS idx_memories_git_branch ON memories(git_branch);

-- Vector mirror of memories.embedding, keyed by memory id (sqlite-vec vec0).
CREATE VIRTUAL TABLE IF NOT EXISTS memory_vec USING vec0(
    memory_id TEXT PRIMARY KEY,
    embedding FLOAT[384]
);

CREATE TABLE IF NOT EXISTS memory_links (
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    link_type TEXT NOT NULL CHECK (link_type IN ('RELATES_TO','BUILDS_ON','CONTRADICTS','SUPERSEDES')),
    similarity REAL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);

CREATE TABLE IF NOT EXISTS curiosity_queue (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    region TEXT NOT NULL CHECK (region IN ('AGENT','PROJECT')),
    project_id TEXT,
    question TEXT NOT NULL,
    context TEXT,
    recurrence_count INTEGER NOT NULL DEFAULT 1,
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('OPEN','RESEARCHED','DISMISSED')),
    priority_boost INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_curiosity_agent_status ON curiosity_queue(agent_id, status);

CREATE TABLE IF NOT EXISTS dissonance_queue (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('CONTRADICTION','SCOPE_UNCLEAR')),
    memory_id TEXT NOT NULL,
    other_memory_id TEXT,
    description TEXT,
    suggested_region TEXT,
    suggested_project TEXT,
    status TEXT NOT NULL CHECK (status IN ('OPEN','RESOLVED','DISMISSED')),
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dissonance_agent_status ON dissonance_queue(agent_id, status);
CREATE INDEX IF NOT EXISTS idx_dissonance_memory ON dissonance_queue(memory_id, other_memory_id);

CREATE TABLE IF NOT EXISTS dream_sessions (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    project_id TEXT,
    state TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    n2_result_json BLOB,
    n3_result_json BLOB,
    rem_result_json BLOB
);

CREATE INDEX IF NOT EXISTS idx_dream_sessions_agent ON dream_sessions(agent_id, state);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
