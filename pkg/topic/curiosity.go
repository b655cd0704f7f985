package topic

import (
	"context"
	"fmt"
	"sort"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/embed"
)

// CuriosityStore is the narrow surface the bridge needs to refresh its cache.
type CuriosityStore interface {
	GetOpenCuriosities(agentID string) ([]*store.Curiosity, error)
}

// cachedCuriosity pairs a curiosity with its topic embedding.
type cachedCuriosity struct {
	curiosity *store.Curiosity
	embedding []float32
}

// Bridge caches embeddings for every OPEN curiosity of an agent. The cache
// is advisory: Refresh recomputes it and callers reset it whenever they
// suspect it has gone stale (spec §5 "embedding-caches ... are advisory and
// reset-on-refresh").
type Bridge struct {
	cache []cachedCuriosity
}

// Refresh reloads open curiosities for agentID and embeds their questions.
func (b *Bridge) Refresh(ctx context.Context, agentID string, s CuriosityStore, embedFn embed.Func) error {
	open, err := s.GetOpenCuriosities(agentID)
	if err != nil {
		return err
	}

	cache := make([]cachedCuriosity, 0, len(open))
	for _, c := range open {
		vec, err := embedFn(ctx, c.Question)
		if err != nil {
			return fmt.Errorf("topic: embed curiosity %s: %w", c.ID, err)
		}
		cache = append(cache, cachedCuriosity{curiosity: c, embedding: vec})
	}
	b.cache = cache
	return nil
}

// Match is one scored curiosity surfaced against a topic.
type Match struct {
	Curiosity  *store.Curiosity
	Similarity float32
}

// FindMatchingCuriosities embeds topic, scores it against the cached
// curiosity embeddings, keeps those above threshold (default 0.5), sorts
// descending by similarity, and caps at limit.
func (b *Bridge) FindMatchingCuriosities(ctx context.Context, topic string, embedFn embed.Func, limit int, threshold float32) ([]Match, error) {
	if threshold == 0 {
		threshold = 0.5
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := embedFn(ctx, topic)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, c := range b.cache {
		sim := embed.Cosine(vec, c.embedding)
		if sim >= threshold {
			matches = append(matches, Match{Curiosity: c.curiosity, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// strongMatchThreshold is the floor above which the bridge's prompt adopts
// a confident tone rather than a tentative one.
const strongMatchThreshold = 0.7

// FormatPrompt renders matches as a prompt whose tone depends on whether
// the top match is "strong" (similarity >= 0.7).
func FormatPrompt(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}

	if matches[0].Similarity >= strongMatchThreshold {
		return fmt.Sprintf("This reminds me of something I've been curious about: %q. Worth revisiting now?", matches[0].Curiosity.Question)
	}
	return fmt.Sprintf("This might loosely relate to an open question I had: %q.", matches[0].Curiosity.Question)
}
