package dream

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coregx/ahocorasick"
	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/diary"
	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/orsinium-labs/stopwords"
)

// REMStore is the narrow surface the REM stage needs.
type REMStore interface {
	GetMemoriesWithEmbeddings(agentID string, region store.Region, projectID string) ([]*store.Memory, error)
}

// DiarySource is the narrow surface pkg/diary.Store satisfies.
type DiarySource interface {
	ListBetween(agentID string, from, to time.Time) ([]diary.Entry, error)
	ListBefore(agentID string, cutoff time.Time) ([]diary.Entry, error)
}

// DistantPair is two memories sampled for their low-but-nonzero similarity,
// the intentional "weird dream" recombination signal.
type DistantPair struct {
	MemoryA    string  `json:"memory_a"`
	MemoryB    string  `json:"memory_b"`
	Similarity float64 `json:"similarity"`
}

// IncompleteThought is a memory snippet containing an open-ended signal.
type IncompleteThought struct {
	MemoryID   string `json:"memory_id"`
	SignalType string `json:"signal_type"`
	Snippet    string `json:"snippet"`
}

// RecurringTheme is a word appearing often enough across memories to
// surface as a theme.
type RecurringTheme struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// DiaryExcerpt is the lead text of one recent diary entry.
type DiaryExcerpt struct {
	Date    string `json:"date"`
	Excerpt string `json:"excerpt"`
}

// REMResult is the serialized divergent-material gathering outcome.
type REMResult struct {
	RecentMemoryCount  int                 `json:"recent_memory_count"`
	SampledOlderCount  int                 `json:"sampled_older_count"`
	DistantPairs       []DistantPair       `json:"distant_pairs"`
	IncompleteThoughts []IncompleteThought `json:"incomplete_thoughts"`
	RecurringThemes    []RecurringTheme    `json:"recurring_themes"`
	DiaryExcerpts      []DiaryExcerpt      `json:"diary_excerpts"`
	JournalPath        string              `json:"journal_path"`
	DurationMS         int64               `json:"duration_ms"`
	Summary            string              `json:"summary"`
}

var incompleteThoughtSignals = []string{
	"i wonder", "todo:", "need to research", "not sure", "unclear",
	"what if", "should explore", "might be worth", "?",
}

var incompleteThoughtAutomaton = buildIncompleteThoughtAutomaton()

func buildIncompleteThoughtAutomaton() *ahocorasick.Automaton {
	a, err := ahocorasick.NewBuilder().
		AddStrings(incompleteThoughtSignals).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic(fmt.Sprintf("dream: compile incomplete-thought automaton: %v", err))
	}
	return a
}

// RunREM implements §4.10.3: gathers raw material for later reflective
// content but never generates any itself.
func RunREM(ctx context.Context, s REMStore, diarySrc DiarySource, agentID, projectID string, cfg Config, quiet bool, sinceLastDream int64, now int64) (*REMResult, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	rng := rand.New(rand.NewSource(now))

	memCutoff := sinceLastDream
	if memCutoff == 0 {
		memCutoff = now - cfg.lookbackMillis()
	}

	var pool []*store.Memory
	agentPool, err := s.GetMemoriesWithEmbeddings(agentID, store.RegionAgent, "")
	if err != nil {
		return nil, fmt.Errorf("dream: rem fetch agent memories: %w", err)
	}
	pool = append(pool, agentPool...)
	if projectID != "" {
		projectPool, err := s.GetMemoriesWithEmbeddings(agentID, store.RegionProject, projectID)
		if err != nil {
			return nil, fmt.Errorf("dream: rem fetch project memories: %w", err)
		}
		pool = append(pool, projectPool...)
	}

	var recent, older []*store.Memory
	for _, m := range pool {
		if m.SupersededBy != "" {
			continue
		}
		if m.CreatedAt >= memCutoff {
			recent = append(recent, m)
		} else {
			older = append(older, m)
		}
	}

	sampledOlder := sampleMemories(rng, older, 10)
	combined := append(append([]*store.Memory{}, recent...), sampledOlder...)

	result := &REMResult{
		RecentMemoryCount: len(recent),
		SampledOlderCount: len(sampledOlder),
	}

	result.DistantPairs = distantPairs(rng, combined, cfg.REMAssociationDistance)
	result.IncompleteThoughts = incompleteThoughts(combined)
	result.RecurringThemes = recurringThemes(combined, cfg.REMMinWordCount)

	if diarySrc != nil {
		diaryCutoff := time.UnixMilli(memCutoff)
		recentEntries, err := diarySrc.ListBetween(agentID, diaryCutoff, time.UnixMilli(now))
		if err != nil {
			return nil, fmt.Errorf("dream: rem fetch diary entries: %w", err)
		}
		olderEntries, err := diarySrc.ListBefore(agentID, diaryCutoff)
		if err != nil {
			return nil, fmt.Errorf("dream: rem fetch older diary entries: %w", err)
		}
		sampledOlderDiary := sampleEntries(rng, olderEntries, 3)

		limit := len(recentEntries)
		if limit > 5 {
			limit = 5
		}
		for _, e := range recentEntries[:limit] {
			result.DiaryExcerpts = append(result.DiaryExcerpts, DiaryExcerpt{
				Date:    e.Date.Format("2006-01-02"),
				Excerpt: excerptFirst(e.Text, 200),
			})
		}
		journalPath, err := writeJournal(cfg.JournalDir, agentID, now, result, sampledOlderDiary)
		if err != nil {
			return nil, fmt.Errorf("dream: rem write journal: %w", err)
		}
		result.JournalPath = journalPath
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.Summary = fmt.Sprintf("gathered %d distant pairs, %d incomplete thoughts, %d recurring themes from %d recent + %d sampled older memories",
		len(result.DistantPairs), len(result.IncompleteThoughts), len(result.RecurringThemes), result.RecentMemoryCount, result.SampledOlderCount)
	return result, nil
}

func sampleMemories(rng *rand.Rand, pool []*store.Memory, n int) []*store.Memory {
	if len(pool) <= n {
		return pool
	}
	idx := rng.Perm(len(pool))[:n]
	out := make([]*store.Memory, n)
	for i, p := range idx {
		out[i] = pool[p]
	}
	return out
}

func sampleEntries(rng *rand.Rand, pool []diary.Entry, n int) []diary.Entry {
	if len(pool) <= n {
		return pool
	}
	idx := rng.Perm(len(pool))[:n]
	out := make([]diary.Entry, n)
	for i, p := range idx {
		out[i] = pool[p]
	}
	return out
}

func distantPairs(rng *rand.Rand, memories []*store.Memory, maxDistance float32) []DistantPair {
	n := len(memories)
	attempts := 2 * n
	if attempts > 50 {
		attempts = 50
	}

	var pairs []DistantPair
	for i := 0; i < attempts && n >= 2; i++ {
		a := memories[rng.Intn(n)]
		b := memories[rng.Intn(n)]
		if a.ID == b.ID || a.Embedding == nil || b.Embedding == nil {
			continue
		}
		sim := float64(embed.Cosine(a.Embedding, b.Embedding))
		if sim <= 0.1 || sim >= float64(maxDistance) {
			continue
		}
		pairs = append(pairs, DistantPair{MemoryA: a.ID, MemoryB: b.ID, Similarity: sim})
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity < pairs[j].Similarity })
	if len(pairs) > 5 {
		pairs = pairs[:5]
	}
	return pairs
}

func incompleteThoughts(memories []*store.Memory) []IncompleteThought {
	var out []IncompleteThought
	for _, m := range memories {
		lower := strings.ToLower(m.Content)
		matches := incompleteThoughtAutomaton.FindAllOverlapping([]byte(lower))
		if len(matches) == 0 {
			continue
		}

		match := matches[0]
		snippetStart := match.Start - 40
		if snippetStart < 0 {
			snippetStart = 0
		}
		snippetEnd := match.End + 60
		if snippetEnd > len(m.Content) {
			snippetEnd = len(m.Content)
		}
		snippet := strings.TrimSpace(m.Content[snippetStart:snippetEnd])
		if len(snippet) > 100 {
			snippet = snippet[:100]
		}

		out = append(out, IncompleteThought{
			MemoryID:   m.ID,
			SignalType: incompleteThoughtSignals[match.PatternID],
			Snippet:    snippet,
		})
		if len(out) >= 10 {
			break
		}
	}
	return out
}

var stopwordChecker = stopwords.MustGet("en")

func recurringThemes(memories []*store.Memory, minCount int) []RecurringTheme {
	counts := map[string]int{}
	for _, m := range memories {
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()[]{}")
			if len(word) <= 4 || stopwordChecker.Contains(word) {
				continue
			}
			counts[word]++
		}
	}

	var themes []RecurringTheme
	for word, count := range counts {
		if count >= minCount {
			themes = append(themes, RecurringTheme{Word: word, Count: count})
		}
	}
	sort.SliceStable(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		return themes[i].Word < themes[j].Word
	})
	if len(themes) > 10 {
		themes = themes[:10]
	}
	return themes
}

func excerptFirst(text string, n int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

func writeJournal(dir, agentID string, now int64, result *REMResult, sampledOlderDiary []diary.Entry) (string, error) {
	name := fmt.Sprintf("%s-%s.md", agentID, time.UnixMilli(now).UTC().Format("2006-01-02T15-04-05"))
	path := filepath.Join(dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# Dream journal — %s\n\n", time.UnixMilli(now).UTC().Format(time.RFC3339))
	b.WriteString("## Distant associations\n\n")
	for _, p := range result.DistantPairs {
		fmt.Fprintf(&b, "- %s <-> %s (similarity %.2f)\n", p.MemoryA, p.MemoryB, p.Similarity)
	}
	b.WriteString("\n## Incomplete thoughts\n\n")
	for _, t := range result.IncompleteThoughts {
		fmt.Fprintf(&b, "- [%s] %s: \"%s\"\n", t.SignalType, t.MemoryID, t.Snippet)
	}
	b.WriteString("\n## Recurring themes\n\n")
	for _, t := range result.RecurringThemes {
		fmt.Fprintf(&b, "- %s (%d)\n", t.Word, t.Count)
	}
	b.WriteString("\n## Diary excerpts\n\n")
	for _, e := range result.DiaryExcerpts {
		fmt.Fprintf(&b, "- %s: %s\n", e.Date, e.Excerpt)
	}
	if len(sampledOlderDiary) > 0 {
		b.WriteString("\n## Older fragments (randomly resurfaced)\n\n")
		for _, e := range sampledOlderDiary {
			fmt.Fprintf(&b, "- %s: %s\n", e.Date.Format("2006-01-02"), excerptFirst(e.Text, 150))
		}
	}
	b.WriteString("\n## Reflection\n\n_left blank for the next waking session to fill in._\n")

	if err := writeFile(dir, path, b.String()); err != nil {
		return "", err
	}
	return path, nil
}
