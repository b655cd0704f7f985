package dream

import (
	"context"
	"fmt"
	"time"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/linkgraph"
)

// N2Store is the narrow surface the consolidation stage needs.
type N2Store interface {
	GetMemoriesWithTemporalContext(agentID string, since int64) ([]*store.Memory, error)
	GetLinksForMemory(id string) ([]*store.MemoryLink, error)
	SaveLink(l *store.MemoryLink) error
	UpdateImpact(id string, impact store.Impact) error
}

// ImpactPromotion records a suggested (and applied) impact upgrade.
type ImpactPromotion struct {
	MemoryID string       `json:"memory_id"`
	From     store.Impact `json:"from"`
	To       store.Impact `json:"to"`
	Incoming int          `json:"incoming_links"`
}

// N2Result is the serialized consolidation outcome (§4.10.1 step 5).
type N2Result struct {
	MemoriesScanned int               `json:"memories_scanned"`
	NewLinks        int               `json:"new_links"`
	NewRelatesTo    int               `json:"new_relates_to"`
	NewBuildsOn     int               `json:"new_builds_on"`
	Promotions      []ImpactPromotion `json:"promotions"`
	DurationMS      int64             `json:"duration_ms"`
	Summary         string            `json:"summary"`
}

// RunN2 implements §4.10.1: link discovery among recent memories followed
// by impact-promotion suggestions based on incoming link counts. Re-running
// is idempotent: existing (source, target) pairs in either direction are
// skipped.
func RunN2(ctx context.Context, s N2Store, agentID, projectID string, cfg Config, quiet bool, now int64) (*N2Result, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	since := now - cfg.lookbackMillis()
	all, err := s.GetMemoriesWithTemporalContext(agentID, since)
	if err != nil {
		return nil, fmt.Errorf("dream: n2 fetch memories: %w", err)
	}

	var memories []*store.Memory
	for _, m := range all {
		if m.SupersededBy == "" && m.Embedding != nil {
			memories = append(memories, m)
		}
	}

	existing := map[string]bool{}
	for _, m := range memories {
		links, err := s.GetLinksForMemory(m.ID)
		if err != nil {
			return nil, fmt.Errorf("dream: n2 fetch links: %w", err)
		}
		for _, l := range links {
			existing[pairKey(l.SourceID, l.TargetID)] = true
		}
	}

	lgCfg := linkgraph.Config{}.WithDefaults()
	touched := map[string]bool{}

	result := &N2Result{MemoriesScanned: len(memories)}

	limit := cfg.N2ProcessLimit
	if limit > len(memories) {
		limit = len(memories)
	}
	for i := 0; i < limit; i++ {
		source := memories[i]
		var others []linkgraph.Candidate
		for j, m := range memories {
			if j == i {
				continue
			}
			others = append(others, linkgraph.Candidate{
				ID: m.ID, Content: m.Content, Embedding: m.Embedding,
				CreatedAt: m.CreatedAt, SessionID: m.SessionID,
			})
		}

		candidates := linkgraph.BuildsOnCandidates(lgCfg, source.Content, source.Embedding, source.SessionID, source.CreatedAt, others)
		for _, c := range candidates {
			if existing[pairKey(source.ID, c.ID)] || existing[pairKey(c.ID, source.ID)] {
				continue
			}
			kind := linkgraph.LinkKindFor(c.Score)
			if err := s.SaveLink(&store.MemoryLink{
				SourceID: source.ID, TargetID: c.ID, Kind: kind, Similarity: c.Score, CreatedAt: now,
			}); err != nil {
				return nil, fmt.Errorf("dream: n2 save link: %w", err)
			}
			existing[pairKey(source.ID, c.ID)] = true
			touched[c.ID] = true
			result.NewLinks++
			if kind == store.LinkBuildsOn {
				result.NewBuildsOn++
			} else {
				result.NewRelatesTo++
			}
		}
	}

	for id := range touched {
		var target *store.Memory
		for _, m := range memories {
			if m.ID == id {
				target = m
				break
			}
		}
		if target == nil {
			continue
		}

		count, err := countIncomingLinks(s, id)
		if err != nil {
			return nil, fmt.Errorf("dream: n2 count incoming links: %w", err)
		}

		newImpact, ok := promote(target.Impact, count)
		if !ok {
			continue
		}
		if err := s.UpdateImpact(target.ID, newImpact); err != nil {
			return nil, fmt.Errorf("dream: n2 update impact: %w", err)
		}
		result.Promotions = append(result.Promotions, ImpactPromotion{
			MemoryID: target.ID, From: target.Impact, To: newImpact, Incoming: count,
		})
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.Summary = fmt.Sprintf("scanned %d memories, created %d links (%d builds_on/%d relates_to), suggested %d promotions",
		result.MemoriesScanned, result.NewLinks, result.NewBuildsOn, result.NewRelatesTo, len(result.Promotions))
	return result, nil
}

// promote implements §4.10.1 step 4's impact-promotion thresholds. CRITICAL
// never changes; impact never downgrades.
func promote(current store.Impact, incoming int) (store.Impact, bool) {
	switch {
	case current == store.ImpactCritical:
		return "", false
	case incoming >= 10 && (current == store.ImpactLow || current == store.ImpactMedium):
		return store.ImpactHigh, true
	case incoming >= 5 && current == store.ImpactLow:
		return store.ImpactMedium, true
	default:
		return "", false
	}
}

func pairKey(a, b string) string { return a + "->" + b }

// countIncomingLinks counts all persisted links where id is the target,
// including links from prior dream cycles, per §4.10.1 step 4.
func countIncomingLinks(s N2Store, id string) (int, error) {
	links, err := s.GetLinksForMemory(id)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, l := range links {
		if l.TargetID == id {
			count++
		}
	}
	return count, nil
}
