package injection

import (
	"context"
	"testing"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byImpact    map[store.Impact][]*store.Memory
	byTier      map[string][]*store.Memory // key: tier|region|project
	bySession   map[string][]*store.Memory
	withEmbed   map[string][]*store.Memory
	byID        map[string]*store.Memory
	touched     map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byImpact:  map[store.Impact][]*store.Memory{},
		byTier:    map[string][]*store.Memory{},
		bySession: map[string][]*store.Memory{},
		withEmbed: map[string][]*store.Memory{},
		byID:      map[string]*store.Memory{},
		touched:   map[string]int64{},
	}
}

func tierKey(tier store.Tier, region store.Region, projectID string) string {
	return string(tier) + "|" + string(region) + "|" + projectID
}

func (f *fakeStore) GetMemoriesByImpact(agentID string, impact store.Impact) ([]*store.Memory, error) {
	return f.byImpact[impact], nil
}

func (f *fakeStore) GetMemoriesByTier(agentID string, tier store.Tier, region store.Region, projectID string) ([]*store.Memory, error) {
	return f.byTier[tierKey(tier, region, projectID)], nil
}

func (f *fakeStore) GetMemoriesBySession(agentID, sessionID string) ([]*store.Memory, error) {
	return f.bySession[sessionID], nil
}

func (f *fakeStore) GetMemoriesWithEmbeddings(agentID string, region store.Region, projectID string) ([]*store.Memory, error) {
	return f.withEmbed[string(region)+"|"+projectID], nil
}

func (f *fakeStore) GetMemory(id string) (*store.Memory, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) TouchMemory(id string, accessedAt int64) error {
	f.touched[id] = accessedAt
	return nil
}

func mem(id string, impact store.Impact, kind store.Kind, tier store.Tier, region store.Region, createdAt int64) *store.Memory {
	return &store.Memory{
		ID: id, AgentID: "agent-1", Impact: impact, Kind: kind, Tier: tier, Region: region,
		Content: "content for " + id, OriginalContent: "content for " + id, CreatedAt: createdAt, Confidence: 1,
	}
}

func TestRunIncludesWIPFirst(t *testing.T) {
	s := newFakeStore()
	wipMem := mem("wip-1", store.ImpactWIP, store.KindLearnings, store.TierActive, store.RegionAgent, 100)
	s.byImpact[store.ImpactWIP] = []*store.Memory{wipMem}
	s.byID["wip-1"] = wipMem

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, nil, 1000)
	require.NoError(t, err)
	assert.Contains(t, result.InjectedIDs, "wip-1")
	assert.Contains(t, result.DSL, "[LTM:aria]")
}

func TestRunDedupsAcrossSteps(t *testing.T) {
	s := newFakeStore()
	m1 := mem("m1", store.ImpactHigh, store.KindLearnings, store.TierCore, store.RegionAgent, 100)
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{m1}
	s.byTier[tierKey(store.TierActive, store.RegionAgent, "")] = []*store.Memory{m1} // duplicate on purpose

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, nil, 1000)
	require.NoError(t, err)

	count := 0
	for _, id := range result.InjectedIDs {
		if id == "m1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRunPrioritizesCriticalOverLow(t *testing.T) {
	s := newFakeStore()
	critical := mem("critical", store.ImpactCritical, store.KindEmotional, store.TierCore, store.RegionAgent, 50)
	low := mem("low", store.ImpactLow, store.KindAchievements, store.TierCore, store.RegionAgent, 200)
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{low, critical}

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, nil, 1000)
	require.NoError(t, err)
	require.Len(t, result.InjectedIDs, 2)
	assert.Equal(t, "critical", result.InjectedIDs[0])
}

func TestRunDefersWhenByteBudgetExceeded(t *testing.T) {
	s := newFakeStore()
	var ms []*store.Memory
	for i := 0; i < 5; i++ {
		id := "m" + string(rune('a'+i))
		m := mem(id, store.ImpactLow, store.KindLearnings, store.TierCore, store.RegionAgent, int64(i))
		m.Content = "filler content repeated many times to inflate byte usage for this memory entry"
		ms = append(ms, m)
	}
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = ms

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{MaxOutputBytes: 150}, nil, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, result.DeferredIDs)
	assert.Equal(t, len(result.DeferredIDs), result.DeferredCount)

	for _, id := range result.DeferredIDs {
		assert.NotContains(t, result.InjectedIDs, id)
	}
}

func TestRunTouchesInjectedMemories(t *testing.T) {
	s := newFakeStore()
	m1 := mem("m1", store.ImpactMedium, store.KindLearnings, store.TierCore, store.RegionAgent, 100)
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{m1}

	_, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, nil, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.touched["m1"])
}

func TestLoadDeferredMemoriesSkipsMissing(t *testing.T) {
	s := newFakeStore()
	m1 := mem("m1", store.ImpactLow, store.KindLearnings, store.TierDeep, store.RegionAgent, 1)
	s.byID["m1"] = m1

	result, err := LoadDeferredMemories(s, []string{"m1", "missing"}, "aria", Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, result.InjectedIDs)
	assert.Contains(t, result.DSL, "[LTM:aria]")
}

func TestRunMarksSignedMemoryValidWhenKeyMatches(t *testing.T) {
	s := newFakeStore()
	key := []byte("agent-signing-key")
	m := mem("m1", store.ImpactMedium, store.KindLearnings, store.TierCore, store.RegionAgent, 100)
	m.Signature = integrity.Sign(m, key)
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{m}

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, key, 1000)
	require.NoError(t, err)
	assert.NotContains(t, result.DSL, "⚠")
}

func TestRunMarksSignedMemoryTamperedWhenKeyMismatches(t *testing.T) {
	s := newFakeStore()
	m := mem("m1", store.ImpactMedium, store.KindLearnings, store.TierCore, store.RegionAgent, 100)
	m.Signature = integrity.Sign(m, []byte("original-key"))
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{m}

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, []byte("wrong-key"), 1000)
	require.NoError(t, err)
	assert.Contains(t, result.DSL, "⚠")
}

func TestRunLeavesUnsignedMemoryUnmarked(t *testing.T) {
	s := newFakeStore()
	m := mem("m1", store.ImpactMedium, store.KindLearnings, store.TierCore, store.RegionAgent, 100)
	s.byTier[tierKey(store.TierCore, store.RegionAgent, "")] = []*store.Memory{m}

	result, err := Run(context.Background(), s, "agent-1", "", "", "", "aria", nil, Config{}, []byte("some-key"), 1000)
	require.NoError(t, err)
	assert.NotContains(t, result.DSL, "⚠")
}
