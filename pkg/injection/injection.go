// Package injection builds the session-start DSL block from persisted
// memories, per §4.7: WIP-first, tiered agent load, project semantic or
// tiered load, previous-session continuity, dedup, priority sort, and a
// budget-bounded emission pass.
package injection

import (
	"context"
	"sort"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/dsl"
	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/mattgrain/animaltm/pkg/fingerprint"
	"github.com/mattgrain/animaltm/pkg/integrity"
	"github.com/mattgrain/animaltm/pkg/textutil"
)

// Config mirrors §6.5's budget/hook-output knobs relevant to injection.
type Config struct {
	ContextSize       int     // default 200_000
	ContextPercent    float64 // default 0.10
	MaxOutputBytes    int     // default 25_000
	MaxMemoryChars    int     // default 500
	FingerprintLimit  int     // default 30, PROJECT-scoped semantic candidates
	FingerprintThresh float32 // default 0.35
}

func (c Config) withDefaults() Config {
	if c.ContextSize == 0 {
		c.ContextSize = 200_000
	}
	if c.ContextPercent == 0 {
		c.ContextPercent = 0.10
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = 25_000
	}
	if c.MaxMemoryChars == 0 {
		c.MaxMemoryChars = 500
	}
	if c.FingerprintLimit == 0 {
		c.FingerprintLimit = 30
	}
	if c.FingerprintThresh == 0 {
		c.FingerprintThresh = 0.35
	}
	return c
}

// TokenBudget computes the configured token budget: a percentage of the
// host context window.
func (c Config) TokenBudget() int {
	c = c.withDefaults()
	return int(float64(c.ContextSize) * c.ContextPercent)
}

// Store is the narrow surface injection needs from internal/store.
type Store interface {
	GetMemoriesByImpact(agentID string, impact store.Impact) ([]*store.Memory, error)
	GetMemoriesByTier(agentID string, tier store.Tier, region store.Region, projectID string) ([]*store.Memory, error)
	GetMemoriesBySession(agentID, sessionID string) ([]*store.Memory, error)
	GetMemoriesWithEmbeddings(agentID string, region store.Region, projectID string) ([]*store.Memory, error)
	GetMemory(id string) (*store.Memory, error)
	TouchMemory(id string, accessedAt int64) error
}

// Result is the §4.7 injection output.
type Result struct {
	DSL            string
	InjectedIDs    []string
	DeferredIDs    []string
	DeferredCount  int
	TokensUsed     int
	BytesUsed      int
}

// estimateTokens implements the 4-chars-per-token fallback the Anima
// reference uses when no tokenizer is wired (§6.5 budget accounting).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Run executes §4.7 steps 1-9 for session start. signingKey, when
// non-empty, is the agent's HMAC key (store.Agent.SigningKey); each
// candidate's signature is verified on load and the result feeds the
// DSL emitter's untrusted-record marker (step 8).
func Run(ctx context.Context, s Store, agentID, projectID, projectDir, previousSessionID string, agentName string, embedFn embed.Func, cfg Config, signingKey []byte, now int64) (Result, error) {
	cfg = cfg.withDefaults()

	var candidates []*store.Memory
	seen := map[string]bool{}
	add := func(ms []*store.Memory) {
		for _, m := range ms {
			if !seen[m.ID] {
				seen[m.ID] = true
				candidates = append(candidates, m)
			}
		}
	}

	// Step 1: WIP first, bypassing tier logic.
	wip, err := s.GetMemoriesByImpact(agentID, store.ImpactWIP)
	if err != nil {
		return Result{}, err
	}
	add(wip)

	// Step 2: AGENT-scoped tiered load, CORE -> ACTIVE -> CONTEXTUAL.
	for _, t := range []store.Tier{store.TierCore, store.TierActive, store.TierContextual} {
		ms, err := s.GetMemoriesByTier(agentID, t, store.RegionAgent, "")
		if err != nil {
			return Result{}, err
		}
		add(ms)
	}

	// Step 3: PROJECT-scoped semantic load when a fingerprint can be built,
	// else tier-based PROJECT loading analogous to step 2.
	if projectID != "" {
		usedSemantic := false
		if projectDir != "" && embedFn != nil {
			pool, err := s.GetMemoriesWithEmbeddings(agentID, store.RegionProject, projectID)
			if err != nil {
				return Result{}, err
			}
			fp, err := fingerprint.Build(ctx, projectDir, projectID, embedFn, nil)
			if err == nil && len(pool) > 0 {
				scored := fingerprint.FindRelevantMemories(fp.Embedding, memoriesToCandidates(pool), cfg.FingerprintLimit, cfg.FingerprintThresh)
				byID := make(map[string]*store.Memory, len(pool))
				for _, m := range pool {
					byID[m.ID] = m
				}
				var ranked []*store.Memory
				for _, sc := range scored {
					ranked = append(ranked, byID[sc.ID])
				}
				add(ranked)
				usedSemantic = true
			}
		}
		if !usedSemantic {
			for _, t := range []store.Tier{store.TierCore, store.TierActive, store.TierContextual} {
				ms, err := s.GetMemoriesByTier(agentID, t, store.RegionProject, projectID)
				if err != nil {
					return Result{}, err
				}
				add(ms)
			}
		}
	}

	// Step 4: previous-session continuity (PROJECT-region memories tagged
	// with the previous session id).
	if previousSessionID != "" {
		ms, err := s.GetMemoriesBySession(agentID, previousSessionID)
		if err != nil {
			return Result{}, err
		}
		var projectOnly []*store.Memory
		for _, m := range ms {
			if m.Region == store.RegionProject {
				projectOnly = append(projectOnly, m)
			}
		}
		add(projectOnly)
	}

	// Step 6: prioritize.
	sortByPriority(candidates)

	verifySignatures(candidates, signingKey)

	// Step 7/8: budget-bounded emission with signature verification.
	return emit(s, candidates, agentName, cfg, now)
}

// verifySignatures implements §4.7 step 8: verify each signed memory
// against the agent's key and set its in-memory SignatureValid flag for
// the DSL emitter to read. Unsigned memories and calls with no signing
// key are left untouched (SignatureValid stays false, which the emitter
// only marks untrusted when HasSignature is also true).
func verifySignatures(ms []*store.Memory, signingKey []byte) {
	if len(signingKey) == 0 {
		return
	}
	for _, m := range ms {
		if len(m.Signature) == 0 {
			continue
		}
		m.SignatureValid = integrity.Verify(m, signingKey)
	}
}

func memoriesToCandidates(ms []*store.Memory) []fingerprint.Candidate {
	out := make([]fingerprint.Candidate, 0, len(ms))
	for _, m := range ms {
		if m.Embedding != nil {
			out = append(out, fingerprint.Candidate{ID: m.ID, Embedding: m.Embedding})
		}
	}
	return out
}

// sortByPriority implements §4.7 step 6's sort key:
// (impact_order, kind_order, −created_at).
func sortByPriority(ms []*store.Memory) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if oa, ob := store.ImpactOrder(a.Impact), store.ImpactOrder(b.Impact); oa != ob {
			return oa < ob
		}
		if oa, ob := store.KindOrder(a.Kind), store.KindOrder(b.Kind); oa != ob {
			return oa < ob
		}
		return a.CreatedAt > b.CreatedAt
	})
}

func emit(s Store, ms []*store.Memory, agentName string, cfg Config, now int64) (Result, error) {
	budget := cfg.TokenBudget()

	var result Result
	var displayed []*dsl.Line

	tokensUsed, bytesUsed := 0, 0
	for _, m := range ms {
		display := truncateForDisplay(m.Content, cfg.MaxMemoryChars)
		line := dsl.Line{
			Kind:            m.Kind,
			Impact:          m.Impact,
			Confidence:      m.Confidence,
			Content:         display,
			SignatureValid:  m.SignatureValid,
			HasSignature:    len(m.Signature) > 0,
		}
		rendered := dsl.RenderLine(line)

		tokens := estimateTokens(rendered)
		bytes := len(rendered)

		if tokensUsed+tokens > budget || bytesUsed+bytes > cfg.MaxOutputBytes {
			result.DeferredIDs = append(result.DeferredIDs, m.ID)
			continue
		}

		tokensUsed += tokens
		bytesUsed += bytes
		displayed = append(displayed, &line)
		result.InjectedIDs = append(result.InjectedIDs, m.ID)

		if err := s.TouchMemory(m.ID, now); err != nil {
			return Result{}, err
		}
	}

	result.DeferredCount = len(result.DeferredIDs)
	result.TokensUsed = tokensUsed
	result.BytesUsed = bytesUsed
	result.DSL = dsl.Emit(agentName, displayed)
	return result, nil
}

func truncateForDisplay(content string, maxChars int) string {
	return textutil.TruncateAtSentenceBoundary(content, maxChars)
}
