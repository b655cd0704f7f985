package topic

import (
	"sort"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/embed"
)

// MemorySource is the narrow surface needed to retrieve related memories
// against a new topic embedding once a shift is judged significant.
type MemorySource interface {
	GetMemoriesWithEmbeddings(agentID string, region store.Region, projectID string) ([]*store.Memory, error)
}

// RelatedMemory pairs a memory with its similarity to the topic.
type RelatedMemory struct {
	Memory     *store.Memory
	Similarity float32
}

// RelatedToTopic implements the bridge half of §4.8: on a significant
// shift, retrieve memories semantically related to the new topic,
// restricted to agentID and, when non-empty, projectID.
func RelatedToTopic(s MemorySource, agentID, projectID string, topicEmbedding []float32, limit int, threshold float32) ([]RelatedMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	if threshold == 0 {
		threshold = 0.5
	}

	var pool []*store.Memory
	agentPool, err := s.GetMemoriesWithEmbeddings(agentID, store.RegionAgent, "")
	if err != nil {
		return nil, err
	}
	pool = append(pool, agentPool...)

	if projectID != "" {
		projectPool, err := s.GetMemoriesWithEmbeddings(agentID, store.RegionProject, projectID)
		if err != nil {
			return nil, err
		}
		pool = append(pool, projectPool...)
	}

	var related []RelatedMemory
	for _, m := range pool {
		sim := embed.Cosine(topicEmbedding, m.Embedding)
		if sim >= threshold {
			related = append(related, RelatedMemory{Memory: m, Similarity: sim})
		}
	}

	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Similarity > related[j].Similarity
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}
