package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildComposesTextAndDetectsType(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/foo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Foo\n\nFoo does things.\n"), 0o644))

	hashing := embed.Hashing{}
	fp, err := Build(context.Background(), dir, "foo", hashing.Embed, func(dir string, n int) []string {
		return []string{"fix bug", "add feature"}
	})
	require.NoError(t, err)

	assert.Equal(t, "go", fp.ProjectType)
	assert.Contains(t, fp.DescriptionExcerpt, "Foo does things")
	assert.Contains(t, fp.Text, "Project: foo")
	assert.Contains(t, fp.Text, "Recent work: fix bug; add feature")
	assert.Len(t, fp.Embedding, embed.Dim)
}

func TestBuildNoReadmeNoMarker(t *testing.T) {
	dir := t.TempDir()
	hashing := embed.Hashing{}
	fp, err := Build(context.Background(), dir, "bare", hashing.Embed, func(string, int) []string { return nil })
	require.NoError(t, err)
	assert.Equal(t, "unknown", fp.ProjectType)
	assert.Empty(t, fp.DescriptionExcerpt)
}

func TestFindRelevantMemoriesFiltersAndRanks(t *testing.T) {
	fpVec := make([]float32, embed.Dim)
	for i := range fpVec {
		fpVec[i] = 1
	}
	close := make([]float32, embed.Dim)
	for i := range close {
		close[i] = 0.9
	}
	far := make([]float32, embed.Dim)
	far[0] = 1

	scored := FindRelevantMemories(fpVec, []Candidate{
		{ID: "close", Embedding: close},
		{ID: "far", Embedding: far},
	}, 10, 0.35)

	require.Len(t, scored, 1)
	assert.Equal(t, "close", scored[0].ID)
}
