package dream

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/mattgrain/animaltm/pkg/textutil"
)

// N3Store is the narrow surface the deep-processing stage needs.
type N3Store interface {
	GetMemoriesWithTemporalContext(agentID string, since int64) ([]*store.Memory, error)
	HasDissonanceForPair(agentID, memA, memB string) (bool, error)
	HasScopeDissonance(agentID, memoryID string) (bool, error)
	SaveDissonance(d *store.Dissonance) error
}

// Gist is an extracted short-form summary of a long memory (§4.10.2 step 2).
type Gist struct {
	MemoryID string `json:"memory_id"`
	Gist     string `json:"gist"`
}

// Contradiction is a candidate conflict between two memories, flagged for
// human resolution, never auto-resolved.
type Contradiction struct {
	MemoryA     string `json:"memory_a"`
	MemoryB     string `json:"memory_b"`
	Similarity  float64 `json:"similarity"`
	Description string `json:"description"`
}

// ScopeIssue flags a memory whose region looks misassigned.
type ScopeIssue struct {
	MemoryID         string      `json:"memory_id"`
	CurrentRegion    store.Region `json:"current_region"`
	SuggestedRegion  store.Region `json:"suggested_region"`
	SuggestedProject string      `json:"suggested_project,omitempty"`
	Reason           string      `json:"reason"`
}

// N3Result is the serialized deep-processing outcome.
type N3Result struct {
	MemoriesScanned int              `json:"memories_scanned"`
	Gists           []Gist           `json:"gists"`
	Contradictions  []Contradiction  `json:"contradictions"`
	ScopeIssues     []ScopeIssue     `json:"scope_issues"`
	DissonancesSaved int             `json:"dissonances_saved"`
	DurationMS      int64            `json:"duration_ms"`
	Summary         string           `json:"summary"`
}

const gistTargetChars = 50 * 4 // 50-token budget at 4 chars/token

var negationWords = []string{"not", "never", "don't", "isn't", "can't", "no longer", "anymore"}

var oppositePairs = [][2]string{
	{"always", "never"},
	{"everything", "nothing"},
	{"everyone", "no one"},
	{"all", "none"},
	{"completely", "not at all"},
}

func containsNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range negationWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var projectNamePattern = regexp.MustCompile(`(?i)v\d+(\.\d+){1,2}`)

var agentWidePhrases = []string{"i learned", "general principle", "across projects", "in general", "as a rule"}
var projectSpecificPhrases = []string{"in this project", "commit", "released", "database schema", "this repo", "this codebase"}
var achievementPhrases = []string{"built", "released", "completed"}

func containsAny(lower string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

func matchesKnownProject(lower string, known []string) string {
	for _, name := range known {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

// RunN3 implements §4.10.2: gist extraction, contradiction candidate
// flagging, and scope validation, with dissonance-queue persistence
// deduped against existing rows.
func RunN3(ctx context.Context, s N3Store, agentID, projectID string, cfg Config, quiet bool, now int64) (*N3Result, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	since := now - cfg.lookbackMillis()
	all, err := s.GetMemoriesWithTemporalContext(agentID, since)
	if err != nil {
		return nil, fmt.Errorf("dream: n3 fetch memories: %w", err)
	}

	var memories []*store.Memory
	for _, m := range all {
		if m.SupersededBy == "" {
			memories = append(memories, m)
		}
	}

	result := &N3Result{MemoriesScanned: len(memories)}

	for _, m := range memories {
		if gist, ok := extractGist(m); ok {
			result.Gists = append(result.Gists, Gist{MemoryID: m.ID, Gist: gist})
		}
	}

	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			a, b := memories[i], memories[j]
			if a.Embedding == nil || b.Embedding == nil {
				continue
			}
			sim := float64(embed.Cosine(a.Embedding, b.Embedding))
			if sim < float64(cfg.N3ContradictionThresh) {
				continue
			}

			if desc, ok := negationContradiction(a, b, sim); ok {
				result.Contradictions = append(result.Contradictions, Contradiction{MemoryA: a.ID, MemoryB: b.ID, Similarity: sim, Description: desc})
				continue
			}
			if desc, ok := oppositeContradiction(a, b); ok {
				result.Contradictions = append(result.Contradictions, Contradiction{MemoryA: a.ID, MemoryB: b.ID, Similarity: sim, Description: desc})
			}
		}
	}

	limit := cfg.N2ProcessLimit
	if limit > len(memories) {
		limit = len(memories)
	}
	for i := 0; i < limit; i++ {
		if issue, ok := validateScope(memories[i], cfg.KnownProjectNames); ok {
			result.ScopeIssues = append(result.ScopeIssues, issue)
		}
	}

	for _, c := range result.Contradictions {
		has, err := s.HasDissonanceForPair(agentID, c.MemoryA, c.MemoryB)
		if err != nil {
			return nil, fmt.Errorf("dream: n3 check dissonance: %w", err)
		}
		if has {
			continue
		}
		if err := s.SaveDissonance(&store.Dissonance{
			ID: dissonanceID(c.MemoryA, c.MemoryB), AgentID: agentID, Kind: store.DissonanceContradiction,
			MemoryID: c.MemoryA, OtherMemoryID: c.MemoryB, Description: c.Description,
			Status: store.DissonanceOpen, CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("dream: n3 save contradiction dissonance: %w", err)
		}
		result.DissonancesSaved++
	}

	for _, issue := range result.ScopeIssues {
		has, err := s.HasScopeDissonance(agentID, issue.MemoryID)
		if err != nil {
			return nil, fmt.Errorf("dream: n3 check scope dissonance: %w", err)
		}
		if has {
			continue
		}
		if err := s.SaveDissonance(&store.Dissonance{
			ID: dissonanceID(issue.MemoryID, "scope"), AgentID: agentID, Kind: store.DissonanceScopeUnclear,
			MemoryID: issue.MemoryID, Description: issue.Reason, SuggestedRegion: issue.SuggestedRegion,
			SuggestedProject: issue.SuggestedProject, Status: store.DissonanceOpen, CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("dream: n3 save scope dissonance: %w", err)
		}
		result.DissonancesSaved++
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.Summary = fmt.Sprintf("scanned %d memories, extracted %d gists, flagged %d contradictions and %d scope issues (%d dissonances queued)",
		result.MemoriesScanned, len(result.Gists), len(result.Contradictions), len(result.ScopeIssues), result.DissonancesSaved)
	return result, nil
}

func extractGist(m *store.Memory) (string, bool) {
	if m.Impact == store.ImpactCritical {
		return "", false
	}
	if len(m.Content) <= 200 || len(m.Content) < 2*gistTargetChars {
		return "", false
	}

	sentences := textutil.SplitSentences(m.Content)
	if len(sentences) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(sentences[0])
	for _, sent := range sentences[1:] {
		if !textutil.ContainsSignalPhrase(sent) {
			continue
		}
		if b.Len()+1+len(sent) > gistTargetChars {
			break
		}
		b.WriteString(" ")
		b.WriteString(sent)
	}

	gist := b.String()
	if !strings.HasSuffix(gist, ".") && !strings.HasSuffix(gist, "!") && !strings.HasSuffix(gist, "?") {
		gist += "."
	}
	return gist, true
}

func negationContradiction(a, b *store.Memory, sim float64) (string, bool) {
	if sim <= 0.75 {
		return "", false
	}
	aNeg, bNeg := containsNegation(a.Content), containsNegation(b.Content)
	if aNeg == bNeg {
		return "", false
	}
	return "one memory negates a claim the other makes in near-identical terms", true
}

func oppositeContradiction(a, b *store.Memory) (string, bool) {
	lowerA, lowerB := strings.ToLower(a.Content), strings.ToLower(b.Content)
	for _, pair := range oppositePairs {
		if (strings.Contains(lowerA, pair[0]) && strings.Contains(lowerB, pair[1])) ||
			(strings.Contains(lowerA, pair[1]) && strings.Contains(lowerB, pair[0])) {
			return fmt.Sprintf("opposite absolutes detected (%q vs %q)", pair[0], pair[1]), true
		}
	}
	return "", false
}

func validateScope(m *store.Memory, knownProjects []string) (ScopeIssue, bool) {
	lower := strings.ToLower(m.Content)
	hasVersion := projectNamePattern.MatchString(m.Content)
	matchedProject := matchesKnownProject(lower, knownProjects)
	_, hasProjectPhrase := containsAny(lower, projectSpecificPhrases)
	agentPhrase, hasAgentPhrase := containsAny(lower, agentWidePhrases)
	_, hasAchievement := containsAny(lower, achievementPhrases)

	projectSignal := hasVersion || matchedProject != "" || hasProjectPhrase || hasAchievement

	if m.Region == store.RegionAgent && projectSignal {
		return ScopeIssue{
			MemoryID: m.ID, CurrentRegion: m.Region, SuggestedRegion: store.RegionProject,
			SuggestedProject: matchedProject,
			Reason:           "content references a specific project (version, commit, or project name) but is scoped agent-wide",
		}, true
	}

	if m.Region == store.RegionProject && hasAgentPhrase && !projectSignal {
		return ScopeIssue{
			MemoryID: m.ID, CurrentRegion: m.Region, SuggestedRegion: store.RegionAgent,
			Reason: fmt.Sprintf("content reads as a general principle (%q) but is scoped to one project", agentPhrase),
		}, true
	}

	return ScopeIssue{}, false
}

func dissonanceID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dsn-" + a + "-" + b
}
