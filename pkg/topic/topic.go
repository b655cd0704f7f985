// Package topic implements §4.8: a stateful topic shift detector and a
// curiosity bridge that surfaces open questions related to the new topic.
package topic

import (
	"context"

	"github.com/mattgrain/animaltm/pkg/embed"
)

// Shift is the result of one detect_shift call.
type Shift struct {
	Similarity  float32
	Threshold   float32
	Significant bool
}

// Detector holds the previous topic embedding across calls. Zero value is
// ready to use: the first call always reports similarity 1.0 (no shift).
type Detector struct {
	Threshold float32 // default 0.6
	previous  []float32
}

func (d *Detector) threshold() float32 {
	if d.Threshold == 0 {
		return 0.6
	}
	return d.Threshold
}

// DetectShift embeds text, compares it with the previous topic, stores the
// new embedding for the next call, and reports whether the shift is
// significant: a previous topic existed and similarity fell below threshold.
func (d *Detector) DetectShift(ctx context.Context, text string, embedFn embed.Func) (Shift, error) {
	vec, err := embedFn(ctx, text)
	if err != nil {
		return Shift{}, err
	}

	threshold := d.threshold()
	var similarity float32 = 1.0
	hadPrevious := d.previous != nil
	if hadPrevious {
		similarity = embed.Cosine(d.previous, vec)
	}
	d.previous = vec

	return Shift{
		Similarity:  similarity,
		Threshold:   threshold,
		Significant: hadPrevious && similarity < threshold,
	}, nil
}

// Reset clears the tracked topic, so the next DetectShift call reports no
// shift regardless of similarity.
func (d *Detector) Reset() {
	d.previous = nil
}
