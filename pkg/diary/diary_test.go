package diary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndListBetween(t *testing.T) {
	s := New(t.TempDir())
	day := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append("agent-1", day, "first thought"))
	require.NoError(t, s.Append("agent-1", day, "second thought"))

	entries, err := s.ListBetween("agent-1", day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "first thought")
	assert.Contains(t, entries[0].Text, "second thought")
}

func TestListBetweenMissingAgentReturnsEmpty(t *testing.T) {
	s := New(t.TempDir())
	entries, err := s.ListBetween("nobody", time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListBeforeExcludesRecentEntries(t *testing.T) {
	s := New(t.TempDir())
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -20)

	require.NoError(t, s.Append("agent-1", old, "an old entry"))
	require.NoError(t, s.Append("agent-1", now, "a fresh entry"))

	entries, err := s.ListBefore("agent-1", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "an old entry")
}
