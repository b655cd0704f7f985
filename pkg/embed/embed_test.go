package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedIsDeterministic(t *testing.T) {
	h := Hashing{}
	a, err := h.Embed(context.Background(), "the rate limiter uses a token bucket")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "the rate limiter uses a token bucket")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, Dim)
}

func TestHashingEmbedEmptyText(t *testing.T) {
	h := Hashing{}
	v, err := h.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, Dim)
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestHashingSimilarTextScoresHigherThanUnrelated(t *testing.T) {
	h := Hashing{}
	a, _ := h.Embed(context.Background(), "refactored the payment gateway retry logic")
	b, _ := h.Embed(context.Background(), "refactored the payment gateway backoff logic")
	c, _ := h.Embed(context.Background(), "baked sourdough bread this weekend")

	simAB := Cosine(a, b)
	simAC := Cosine(a, c)
	assert.Greater(t, simAB, simAC)
}

func TestCosineMismatchedLengthReturnsZero(t *testing.T) {
	assert.Equal(t, float32(0), Cosine([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestBatchCosinePreservesOrder(t *testing.T) {
	h := Hashing{}
	q, _ := h.Embed(context.Background(), "query text")
	c1, _ := h.Embed(context.Background(), "query text")
	c2, _ := h.Embed(context.Background(), "completely different")

	scores := BatchCosine(q, [][]float32{c1, c2})
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}
