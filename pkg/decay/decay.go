// Package decay implements the end-of-session aging pass (§4.4): it
// shortens stale low-value memories and reports what it touched.
package decay

import (
	"strings"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/textutil"
)

// Thresholds is how long after creation a memory survives before its
// impact tier starts compacting it. Zero fields fall back to the spec defaults.
type Thresholds struct {
	LowAfter    int64 // millis, default 1 day
	MediumAfter int64 // millis, default 7 days
	HighAfter   int64 // millis, default 30 days
}

func (t Thresholds) withDefaults() Thresholds {
	const day = int64(24 * 3600 * 1000)
	if t.LowAfter == 0 {
		t.LowAfter = day
	}
	if t.MediumAfter == 0 {
		t.MediumAfter = 7 * day
	}
	if t.HighAfter == 0 {
		t.HighAfter = 30 * day
	}
	return t
}

// Result summarizes one pass of the decay engine.
type Result struct {
	Compacted int
	Deleted   int
	DeletedIDs []string
}

// ageThreshold returns the millis-since-creation after which impact starts
// decaying, or -1 if the impact never decays (CRITICAL).
func ageThreshold(impact store.Impact, t Thresholds) int64 {
	switch impact {
	case store.ImpactCritical:
		return -1
	case store.ImpactHigh:
		return t.HighAfter
	case store.ImpactMedium:
		return t.MediumAfter
	default: // LOW, WIP
		return t.LowAfter
	}
}

// Apply runs the decay pass over memories, returning the mutated snapshots
// that should be re-saved (content-compacted) and a Result summary. It does
// not touch the store directly; the caller persists the returned memories
// and deletes the ids in Result.DeletedIDs, keeping this function a pure
// transformation that's easy to test without a database.
func Apply(memories []*store.Memory, now int64, thresholds Thresholds) ([]*store.Memory, Result) {
	thresholds = thresholds.withDefaults()

	var toSave []*store.Memory
	var result Result

	for _, m := range memories {
		if m.SupersededBy != "" || m.Impact == store.ImpactCritical {
			continue
		}

		threshold := ageThreshold(m.Impact, thresholds)
		if threshold < 0 {
			continue
		}
		age := now - m.CreatedAt
		if age < threshold {
			continue
		}

		compacted := compact(m.Content, age, threshold)
		if compacted == "" {
			result.Deleted++
			result.DeletedIDs = append(result.DeletedIDs, m.ID)
			continue
		}
		if compacted != m.Content {
			m.Content = compacted
			result.Compacted++
			toSave = append(toSave, m)
		}
	}
	return toSave, result
}

// compact progressively shortens content the further past its decay
// threshold it is, always preserving the first sentence and any sentence
// carrying a CRITICAL signal phrase. Returns "" when nothing survives.
func compact(content string, age, threshold int64) string {
	sentences := textutil.SplitSentences(content)
	if len(sentences) == 0 {
		return ""
	}

	keep := make([]bool, len(sentences))
	keep[0] = true
	for i, s := range sentences {
		if textutil.ContainsSignalPhrase(s) {
			keep[i] = true
		}
	}

	// The further past the threshold, the fewer non-essential sentences survive.
	overshoot := age - threshold
	budget := budgetFor(overshoot, threshold, len(sentences))
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	for i := 1; i < len(sentences) && kept < budget; i++ {
		if !keep[i] {
			keep[i] = true
			kept++
		}
	}

	var out []string
	for i, s := range sentences {
		if keep[i] {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

// budgetFor maps how far past the decay threshold a memory is to how many
// sentences it's allowed to keep: increasingly aggressive the staler it gets.
func budgetFor(overshoot, threshold int64, total int) int {
	if threshold <= 0 {
		return total
	}
	ratio := float64(overshoot) / float64(threshold)
	switch {
	case ratio < 1:
		return max(1, total-total/4)
	case ratio < 3:
		return max(1, total/2)
	default:
		return 1
	}
}
