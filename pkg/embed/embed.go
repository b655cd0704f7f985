// Package embed defines the embedding function boundary used throughout
// the engine (link graph similarity, fingerprint retrieval, topic shift
// detection, dream stages). The engine never assumes a specific embedding
// provider; callers inject a Func, typically backed by an HTTP call to a
// real embedding service.
package embed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
)

// Dim is the fixed embedding width the rest of the engine expects.
const Dim = 384

// Func embeds a single piece of text.
type Func func(ctx context.Context, text string) ([]float32, error)

// BatchFunc embeds many texts in one call. Implementations that wrap a
// network API should prefer this to amortize round trips.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Hashing is a deterministic character n-gram hashing embedder (each gram
// is bucketed by an unkeyed SHA-256 hash). It needs no
// model weights and no network access, so it is the engine's zero-config
// default and the implementation every test in this module uses. It is
// not intended to produce semantically meaningful vectors in production —
// it exists so the rest of the pipeline (storage, similarity thresholds,
// tier classification) has something real to run against.
type Hashing struct {
	// NGram is the character n-gram size. Defaults to 3 when zero.
	NGram int
}

// Embed implements Func.
func (h Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	n := h.NGram
	if n <= 0 {
		n = 3
	}
	v := make([]float32, Dim)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return v, nil
	}

	runes := []rune(text)
	if len(runes) < n {
		n = len(runes)
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		idx, sign := hashBucket(gram)
		v[idx] += sign
	}
	normalize(v)
	return v, nil
}

// EmbedBatch implements BatchFunc.
func (h Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed: hashing batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func hashBucket(gram string) (int, float32) {
	sum := sha256.Sum256([]byte(gram))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	idx := int(h % uint64(Dim))
	sign := float32(1)
	if sum[8]&1 == 1 {
		sign = -1
	}
	return idx, sign
}

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

// Cosine computes cosine similarity between two equal-length vectors. It
// returns 0 if either vector has zero magnitude.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// BatchCosine scores query against every candidate, preserving order.
func BatchCosine(query []float32, candidates [][]float32) []float32 {
	out := make([]float32, len(candidates))
	for i, c := range candidates {
		out[i] = Cosine(query, c)
	}
	return out
}
