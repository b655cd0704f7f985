// Package linkgraph computes and traverses the relationships between
// memories: similarity candidates (RELATES_TO), directional evolutionary
// candidates (BUILDS_ON), and BFS/chain traversal over persisted links.
package linkgraph

import (
	"regexp"
	"sort"
	"time"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/embed"
)

// Config bounds the scoring thresholds; zero values fall back to spec defaults.
type Config struct {
	SimilarityThreshold float32 // RELATES_TO cosine floor, default 0.5
	MaxLinks            int     // RELATES_TO cap, default 10
	BuildsOnWindow      time.Duration // default 48h
	BuildsOnThreshold   float32       // cosine floor before confidence scoring, default 0.5
	MaxCandidates       int           // BUILDS_ON cap, default 3
}

// WithDefaults fills zero fields with the spec's defaults.
func (c Config) WithDefaults() Config {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.5
	}
	if c.MaxLinks == 0 {
		c.MaxLinks = 10
	}
	if c.BuildsOnWindow == 0 {
		c.BuildsOnWindow = 48 * time.Hour
	}
	if c.BuildsOnThreshold == 0 {
		c.BuildsOnThreshold = 0.5
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = 3
	}
	return c
}

// Candidate is a memory considered against a source memory for linking.
type Candidate struct {
	ID        string
	Content   string
	Embedding []float32
	CreatedAt int64 // unix millis
	SessionID string
}

// ScoredCandidate is a Candidate with its computed similarity or confidence.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// RelatesToCandidates implements §4.2 "Similarity candidates (RELATES_TO)".
func RelatesToCandidates(cfg Config, sourceEmbedding []float32, excludeIDs map[string]bool, candidates []Candidate) []ScoredCandidate {
	cfg = cfg.WithDefaults()

	var scored []ScoredCandidate
	for _, c := range candidates {
		if excludeIDs != nil && excludeIDs[c.ID] {
			continue
		}
		sim := float64(embed.Cosine(sourceEmbedding, c.Embedding))
		if sim < float64(cfg.SimilarityThreshold) {
			continue
		}
		scored = append(scored, ScoredCandidate{Candidate: c, Score: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > cfg.MaxLinks {
		scored = scored[:cfg.MaxLinks]
	}
	return scored
}

// buildsOnPatterns is the §6.3 pattern set, compiled case-insensitively.
var buildsOnPatterns = compileBuildsOnPatterns()

func compileBuildsOnPatterns() []*regexp.Regexp {
	raw := []string{
		`as (I|we) (mentioned|discussed|noted|observed|said)`,
		`building on`,
		`following up on`,
		`extending\b.*\b(earlier|previous)`,
		`(as|per) (our|the) (earlier|previous|last) (discussion|conversation|session)`,
		`^(Update|Correction|Evolution|Revision|Addendum):`,
		`update(d|ing)?\b.*\b(earlier|previous|my)\b`,
		`(now|actually)\b.*\brealiz(e|ed)\b`,
		`on (second|further) thought`,
		`continuing\b.*\bthought`,
		`(furthermore|moreover|additionally)`,
		`this (builds|extends|adds) (on|to)`,
	}
	out := make([]*regexp.Regexp, len(raw))
	for i, p := range raw {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func matchesBuildsOnPattern(content string) bool {
	for _, re := range buildsOnPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// BuildsOnCandidates implements §4.2 "Directional evolutionary candidates
// (BUILDS_ON)". sourceCreatedAt and sourceSessionID describe the new
// memory being linked from; candidates must be strictly older.
func BuildsOnCandidates(cfg Config, sourceContent string, sourceEmbedding []float32, sourceSessionID string, sourceCreatedAt int64, candidates []Candidate) []ScoredCandidate {
	cfg = cfg.WithDefaults()
	windowMillis := cfg.BuildsOnWindow.Milliseconds()

	var scored []ScoredCandidate
	for _, c := range candidates {
		if c.CreatedAt >= sourceCreatedAt {
			continue
		}
		age := sourceCreatedAt - c.CreatedAt
		if age > windowMillis {
			continue
		}

		sim := float64(embed.Cosine(sourceEmbedding, c.Embedding))
		if sim < float64(cfg.BuildsOnThreshold) {
			continue
		}

		confidence := 0.0
		const dayMillis = 24 * 3600 * 1000
		switch {
		case age <= dayMillis:
			confidence += 0.3
		case age <= 2*dayMillis:
			confidence += 0.15
		}
		if c.SessionID != "" && c.SessionID == sourceSessionID {
			confidence += 0.4
		}
		if matchesBuildsOnPattern(sourceContent) {
			confidence += 0.5
		}
		confidence += (sim - float64(cfg.BuildsOnThreshold)) * 2

		if confidence < 0.3 {
			continue
		}
		scored = append(scored, ScoredCandidate{Candidate: c, Score: confidence})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > cfg.MaxCandidates {
		scored = scored[:cfg.MaxCandidates]
	}
	return scored
}

// LinkKindFor picks BUILDS_ON vs RELATES_TO for a scored BUILDS_ON candidate,
// per §4.2: "link kind is BUILDS_ON if confidence ≥ 0.5, otherwise RELATES_TO."
func LinkKindFor(confidence float64) store.LinkKind {
	if confidence >= 0.5 {
		return store.LinkBuildsOn
	}
	return store.LinkRelatesTo
}
