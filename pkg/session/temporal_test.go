package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) // Thursday

func TestParseCuePreviousSession(t *testing.T) {
	r := Resolver{PreviousSessionID: "sess-prev", CurrentSessionID: "sess-cur"}
	coord, ok := ParseCue("as we discussed last session", r, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "sess-prev", coord.SessionID)
	assert.Equal(t, "previous_session", coord.CueType)
}

func TestParseCueCurrentSession(t *testing.T) {
	r := Resolver{CurrentSessionID: "sess-cur"}
	coord, ok := ParseCue("earlier today we talked about this", r, fixedNow)
	require.True(t, ok)
	assert.True(t, coord.IsCurrentSession)
	assert.Equal(t, "sess-cur", coord.SessionID)
}

func TestParseCueYesterday(t *testing.T) {
	coord, ok := ParseCue("what did we do yesterday?", Resolver{}, fixedNow)
	require.True(t, ok)
	require.NotNil(t, coord.StartTime)
	require.NotNil(t, coord.EndTime)

	start := time.UnixMilli(*coord.StartTime).UTC()
	end := time.UnixMilli(*coord.EndTime).UTC()
	assert.Equal(t, 29, start.Day())
	assert.Equal(t, 30, end.Day())
}

func TestParseCueNamedBranch(t *testing.T) {
	coord, ok := ParseCue("we were on branch feature/retry-logic", Resolver{}, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "feature/retry-logic", coord.GitBranch)
}

func TestParseCueMainBranch(t *testing.T) {
	coord, ok := ParseCue("that was on main", Resolver{}, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "main", coord.GitBranch)
}

func TestParseCueNoMatch(t *testing.T) {
	_, ok := ParseCue("completely unrelated text", Resolver{}, fixedNow)
	assert.False(t, ok)
}

func TestFindAllCuesReturnsMultipleInOrder(t *testing.T) {
	text := "Yesterday we were on branch main and discussed the last commit"
	r := Resolver{SecondMostRecentCommit: "abc123"}
	coords := FindAllCues(text, r, fixedNow)

	require.GreaterOrEqual(t, len(coords), 2)
	assert.Equal(t, "RELATIVE_TIME", coords[0].CueType)
}

func TestThisWeekResolvesToMonday(t *testing.T) {
	coord, ok := ParseCue("this week has been productive", Resolver{}, fixedNow)
	require.True(t, ok)
	require.NotNil(t, coord.StartTime)
	start := time.UnixMilli(*coord.StartTime).UTC()
	assert.Equal(t, time.Monday, start.Weekday())
}
