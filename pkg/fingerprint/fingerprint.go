// Package fingerprint builds a per-project embedding summary and uses it
// to retrieve semantically relevant project memories (§4.6).
package fingerprint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/mattgrain/animaltm/pkg/session"
	"github.com/mattgrain/animaltm/pkg/textutil"
)

// readmeCandidates is the priority list of filenames checked for a README.
var readmeCandidates = []string{
	"README.md", "README.MD", "Readme.md", "README", "README.rst", "README.txt",
}

// projectTypeMarkers maps a well-known metadata file to the project type
// it implies.
var projectTypeMarkers = []struct {
	file string
	kind string
}{
	{"pyproject.toml", "python"},
	{"setup.py", "python"},
	{"package.json", "node"},
	{"Cargo.toml", "rust"},
	{"go.mod", "go"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"Gemfile", "ruby"},
	{"composer.json", "php"},
}

const readmeExcerptChars = 2000

// Fingerprint is the composed summary of a project, ready to embed.
type Fingerprint struct {
	ProjectName       string
	ProjectType       string
	DescriptionExcerpt string
	RecentCommits     []string
	Text              string
	Embedding         []float32
}

// Build implements §4.6 steps 1-5. recentCommitFn fetches up to n recent
// commit subjects (injected so tests don't need a real git repo).
func Build(ctx context.Context, dir, projectName string, embedFn embed.Func, recentCommitFn func(dir string, n int) []string) (Fingerprint, error) {
	fp := Fingerprint{ProjectName: projectName, ProjectType: detectProjectType(dir)}
	fp.DescriptionExcerpt = readREADMEExcerpt(dir)

	if recentCommitFn == nil {
		recentCommitFn = defaultRecentCommits
	}
	fp.RecentCommits = recentCommitFn(dir, 10)

	fp.Text = compose(fp)

	vec, err := embedFn(ctx, fp.Text)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: embed: %w", err)
	}
	fp.Embedding = vec
	return fp, nil
}

func compose(fp Fingerprint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", fp.ProjectName)
	fmt.Fprintf(&b, "Type: %s\n", fp.ProjectType)
	if fp.DescriptionExcerpt != "" {
		fmt.Fprintf(&b, "Description: %s\n", fp.DescriptionExcerpt)
	}
	if len(fp.RecentCommits) > 0 {
		b.WriteString("Recent work: ")
		b.WriteString(strings.Join(fp.RecentCommits, "; "))
	}
	return b.String()
}

func detectProjectType(dir string) string {
	for _, marker := range projectTypeMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker.file)); err == nil {
			return marker.kind
		}
	}
	return "unknown"
}

func readREADMEExcerpt(dir string) string {
	for _, name := range readmeCandidates {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		return excerptAtParagraph(string(data), readmeExcerptChars)
	}
	return ""
}

// excerptAtParagraph truncates to maxChars, preferring a break at a blank
// line (paragraph boundary) over a hard cut.
func excerptAtParagraph(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return strings.TrimSpace(text)
	}
	window := string(runes[:maxChars])
	if idx := strings.LastIndex(window, "\n\n"); idx > maxChars/2 {
		return strings.TrimSpace(window[:idx])
	}
	return strings.TrimSpace(textutil.TruncateAtSentenceBoundary(window, maxChars))
}

func defaultRecentCommits(dir string, n int) []string {
	return session.RecentCommitSubjects(dir, n)
}

// Candidate is a project-region memory considered for fingerprint retrieval.
type Candidate struct {
	ID        string
	Embedding []float32
}

// Scored pairs a candidate id with its similarity to the fingerprint.
type Scored struct {
	ID    string
	Score float32
}

// FindRelevantMemories implements "find_relevant_memories": rank
// project-region memories with embeddings by cosine similarity to the
// fingerprint vector above threshold, returning ids in similarity order.
func FindRelevantMemories(fingerprintEmbedding []float32, candidates []Candidate, limit int, threshold float32) []Scored {
	if threshold == 0 {
		threshold = 0.35
	}
	if limit <= 0 {
		limit = 10
	}

	var scored []Scored
	for _, c := range candidates {
		sim := embed.Cosine(fingerprintEmbedding, c.Embedding)
		if sim <= threshold {
			continue
		}
		scored = append(scored, Scored{ID: c.ID, Score: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
