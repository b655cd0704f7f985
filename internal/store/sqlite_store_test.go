package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMemory(id string) *Memory {
	now := time.Now().UTC().UnixMilli()
	return &Memory{
		ID:              id,
		AgentID:         "agent-1",
		Region:          RegionAgent,
		Kind:            KindLearnings,
		Content:         "learned something",
		OriginalContent: "learned something",
		Impact:          ImpactMedium,
		Confidence:      1,
		CreatedAt:       now,
		LastAccessed:    now,
		Version:         1,
		Tier:            TierActive,
	}
}

func TestSaveAndGetMemory(t *testing.T) {
	s := newTestStore(t)

	m := testMemory("mem-1")
	require.NoError(t, s.SaveMemory(m))

	got, err := s.GetMemory("mem-1")
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Kind, got.Kind)
	assert.Equal(t, m.Impact, got.Impact)
}

func TestSaveMemoryRejectsInvalidRegionScope(t *testing.T) {
	s := newTestStore(t)

	m := testMemory("mem-bad")
	m.Region = RegionProject
	m.ProjectID = ""

	err := s.SaveMemory(m)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSaveMemoryEnforcesPerAgentLimit(t *testing.T) {
	s := newTestStore(t)
	s.SetLimits(Limits{PerAgent: 1})

	require.NoError(t, s.SaveMemory(testMemory("mem-1")))

	err := s.SaveMemory(testMemory("mem-2"))
	require.Error(t, err)
	var lerr *LimitExceededError
	assert.ErrorAs(t, err, &lerr)
}

func TestSaveMemoryLimitIgnoresUpdates(t *testing.T) {
	s := newTestStore(t)
	s.SetLimits(Limits{PerAgent: 1})

	m := testMemory("mem-1")
	require.NoError(t, s.SaveMemory(m))

	m.Impact = ImpactHigh
	require.NoError(t, s.SaveMemory(m))
}

func TestSearchMemoriesEscapesLikeWildcards(t *testing.T) {
	s := newTestStore(t)

	m1 := testMemory("mem-1")
	m1.Content = "100% done with the migration"
	require.NoError(t, s.SaveMemory(m1))

	m2 := testMemory("mem-2")
	m2.Content = "done with everything else"
	require.NoError(t, s.SaveMemory(m2))

	results, err := s.SearchMemories("agent-1", "100% done", "", 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-1", results[0].ID)
}

func TestSearchMemoriesMatchesOriginalContent(t *testing.T) {
	s := newTestStore(t)

	m := testMemory("mem-1")
	m.Content = "rewritten summary"
	m.OriginalContent = "the raw verbatim phrase"
	require.NoError(t, s.SaveMemory(m))

	results, err := s.SearchMemories("agent-1", "verbatim phrase", "", 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-1", results[0].ID)
}

func TestSearchMemoriesExcludesSupersededByDefault(t *testing.T) {
	s := newTestStore(t)

	old := testMemory("mem-1")
	old.Content = "old version of the note"
	require.NoError(t, s.SaveMemory(old))

	replacement := testMemory("mem-2")
	replacement.Content = "new version of the note"
	require.NoError(t, s.SaveMemory(replacement))
	require.NoError(t, s.SupersedeMemory("mem-1", "mem-2"))

	results, err := s.SearchMemories("agent-1", "version of the note", "", 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-2", results[0].ID)

	withSuperseded, err := s.SearchMemories("agent-1", "version of the note", "", 10, true)
	require.NoError(t, err)
	assert.Len(t, withSuperseded, 2)
}

func TestMemoryWithEmbeddingRoundTrips(t *testing.T) {
	s := newTestStore(t)

	m := testMemory("mem-1")
	m.Embedding = make([]float32, EmbeddingDim)
	for i := range m.Embedding {
		m.Embedding[i] = float32(i) / float32(EmbeddingDim)
	}
	require.NoError(t, s.SaveMemory(m))

	got, err := s.GetMemory("mem-1")
	require.NoError(t, err)
	require.Len(t, got.Embedding, EmbeddingDim)
	assert.InDelta(t, m.Embedding[10], got.Embedding[10], 1e-6)

	withEmb, err := s.GetMemoriesWithEmbeddings("agent-1", RegionAgent, "")
	require.NoError(t, err)
	require.Len(t, withEmb, 1)

	without, err := s.GetMemoriesWithoutEmbeddings("agent-1")
	require.NoError(t, err)
	assert.Empty(t, without)
}

func TestSupersedeMemory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveMemory(testMemory("mem-1")))
	require.NoError(t, s.SaveMemory(testMemory("mem-2")))

	require.NoError(t, s.SupersedeMemory("mem-1", "mem-2"))

	got, err := s.GetMemory("mem-1")
	require.NoError(t, err)
	assert.Equal(t, "mem-2", got.SupersededBy)

	_, err = s.GetLatestMemoryOfKind("agent-1", KindLearnings, RegionAgent, "")
	require.NoError(t, err)
}

func TestSaveLinkAndTraverse(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveMemory(testMemory("mem-1")))
	require.NoError(t, s.SaveMemory(testMemory("mem-2")))

	require.NoError(t, s.SaveLink(&MemoryLink{
		SourceID: "mem-1", TargetID: "mem-2", Kind: LinkRelatesTo, Similarity: 0.9,
		CreatedAt: time.Now().UTC().UnixMilli(),
	}))

	ids, err := s.GetLinkedMemoryIDs("mem-1", nil)
	require.NoError(t, err)
	assert.Contains(t, ids, "mem-2")

	ids, err = s.GetLinkedMemoryIDs("mem-2", nil)
	require.NoError(t, err)
	assert.Contains(t, ids, "mem-1")

	require.NoError(t, s.DeleteLinksForMemory("mem-1"))
	ids, err = s.GetLinkedMemoryIDs("mem-1", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCuriosityPriorityScore(t *testing.T) {
	now := time.Now().UTC().UnixMilli()
	c := &Curiosity{RecurrenceCount: 3, PriorityBoost: 2, LastSeen: now}
	assert.Equal(t, 3*10+2+5, c.PriorityScore(now))

	stale := &Curiosity{RecurrenceCount: 3, PriorityBoost: 2, LastSeen: now - 8*24*3600*1000}
	assert.Equal(t, 3*10+2, stale.PriorityScore(now))
}

func TestDissonancePairDedup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveMemory(testMemory("mem-1")))
	require.NoError(t, s.SaveMemory(testMemory("mem-2")))

	has, err := s.HasDissonanceForPair("agent-1", "mem-1", "mem-2")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.SaveDissonance(&Dissonance{
		ID: "dis-1", AgentID: "agent-1", Kind: DissonanceContradiction,
		MemoryID: "mem-1", OtherMemoryID: "mem-2", Status: DissonanceOpen,
		CreatedAt: time.Now().UTC().UnixMilli(),
	}))

	has, err = s.HasDissonanceForPair("agent-1", "mem-2", "mem-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDreamSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().UnixMilli()

	d := &DreamSession{ID: "dream-1", AgentID: "agent-1", State: DreamN2Running, StartedAt: now, UpdatedAt: now}
	require.NoError(t, s.SaveDreamSession(d))

	active, err := s.GetActiveDreamSession("agent-1", "")
	require.NoError(t, err)
	assert.Equal(t, "dream-1", active.ID)

	d.State = DreamComplete
	d.UpdatedAt = now
	require.NoError(t, s.SaveDreamSession(d))

	_, err = s.GetActiveDreamSession("agent-1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := s.GCDreamSessions(now + 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetSetting("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("decay.half_life_days", "30"))
	value, ok, err := s.GetSetting("decay.half_life_days")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "30", value)
}

func TestSaveProjectReconcilesExistingPath(t *testing.T) {
	s := newTestStore(t)

	p1 := &Project{ID: "proj-a", Name: "first", Path: "/repo"}
	require.NoError(t, s.SaveProject(p1))

	p2 := &Project{ID: "proj-b", Name: "renamed", Path: "/repo"}
	require.NoError(t, s.SaveProject(p2))
	assert.Equal(t, "proj-a", p2.ID)

	got, err := s.GetProjectByPath("/repo")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}
