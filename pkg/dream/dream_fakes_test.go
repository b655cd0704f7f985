package dream

import (
	"github.com/mattgrain/animaltm/internal/store"
)

type fakeStore struct {
	memories        map[string]*store.Memory
	allLinks        []*store.MemoryLink
	dissonancePairs map[string]bool
	scopeFlagged    map[string]bool
	dissonances     []*store.Dissonance
	sessions        map[string]*store.DreamSession
	agentEmbeds     []*store.Memory
	projectEmbeds   []*store.Memory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:        map[string]*store.Memory{},
		dissonancePairs: map[string]bool{},
		scopeFlagged:    map[string]bool{},
		sessions:        map[string]*store.DreamSession{},
	}
}

func (f *fakeStore) addMemory(m *store.Memory) {
	f.memories[m.ID] = m
}

// addLink seeds a persisted link directly, bypassing SaveLink, to set up
// incoming-link counts from "prior dream cycles" in tests.
func (f *fakeStore) addLink(l *store.MemoryLink) {
	f.allLinks = append(f.allLinks, l)
}

func (f *fakeStore) GetMemoriesWithTemporalContext(agentID string, since int64) ([]*store.Memory, error) {
	var out []*store.Memory
	for _, m := range f.memories {
		if m.AgentID == agentID && m.CreatedAt >= since {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetLinksForMemory mirrors the real store's "source_id = ? OR target_id = ?"
// query: it returns every link touching id in either direction.
func (f *fakeStore) GetLinksForMemory(id string) ([]*store.MemoryLink, error) {
	var out []*store.MemoryLink
	for _, l := range f.allLinks {
		if l.SourceID == id || l.TargetID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveLink(l *store.MemoryLink) error {
	f.allLinks = append(f.allLinks, l)
	return nil
}

func (f *fakeStore) UpdateImpact(id string, impact store.Impact) error {
	if m, ok := f.memories[id]; ok {
		m.Impact = impact
	}
	return nil
}

func (f *fakeStore) HasDissonanceForPair(agentID, memA, memB string) (bool, error) {
	return f.dissonancePairs[pairKey(memA, memB)] || f.dissonancePairs[pairKey(memB, memA)], nil
}

func (f *fakeStore) HasScopeDissonance(agentID, memoryID string) (bool, error) {
	return f.scopeFlagged[memoryID], nil
}

func (f *fakeStore) SaveDissonance(d *store.Dissonance) error {
	f.dissonances = append(f.dissonances, d)
	if d.Kind == store.DissonanceContradiction {
		f.dissonancePairs[pairKey(d.MemoryID, d.OtherMemoryID)] = true
	}
	if d.Kind == store.DissonanceScopeUnclear {
		f.scopeFlagged[d.MemoryID] = true
	}
	return nil
}

func (f *fakeStore) GetMemoriesWithEmbeddings(agentID string, region store.Region, projectID string) ([]*store.Memory, error) {
	if region == store.RegionProject {
		return f.projectEmbeds, nil
	}
	return f.agentEmbeds, nil
}

func (f *fakeStore) SaveDreamSession(d *store.DreamSession) error {
	cp := *d
	f.sessions[d.ID] = &cp
	return nil
}

func (f *fakeStore) GetDreamSession(id string) (*store.DreamSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetActiveDreamSession(agentID, projectID string) (*store.DreamSession, error) {
	for _, s := range f.sessions {
		if s.AgentID != agentID || s.ProjectID != projectID {
			continue
		}
		if s.State != store.DreamIdle && s.State != store.DreamComplete {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DeleteDreamSession(id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) GCDreamSessions(olderThan int64) (int, error) {
	n := 0
	for id, s := range f.sessions {
		if s.State == store.DreamComplete && s.UpdatedAt < olderThan {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}
