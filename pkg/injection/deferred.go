package injection

import (
	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/dsl"
)

// LoadDeferredMemories implements "load_deferred_memories": re-fetches the
// given ids, applies the same display truncation and signature check as
// the main pass, and emits a second DSL block with no budget cap.
// signingKey is the agent's HMAC key, as passed to Run.
func LoadDeferredMemories(s Store, ids []string, agentName string, cfg Config, signingKey []byte) (Result, error) {
	cfg = cfg.withDefaults()

	var memories []*store.Memory
	var loadedIDs []string
	for _, id := range ids {
		m, err := s.GetMemory(id)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		memories = append(memories, m)
		loadedIDs = append(loadedIDs, m.ID)
	}

	verifySignatures(memories, signingKey)

	var lines []*dsl.Line
	for _, m := range memories {
		display := truncateForDisplay(m.Content, cfg.MaxMemoryChars)
		line := dsl.Line{
			Kind:           m.Kind,
			Impact:         m.Impact,
			Confidence:     m.Confidence,
			Content:        display,
			HasSignature:   len(m.Signature) > 0,
			SignatureValid: m.SignatureValid,
		}
		lines = append(lines, &line)
	}

	return Result{
		DSL:         dsl.Emit(agentName, lines),
		InjectedIDs: loadedIDs,
	}, nil
}
