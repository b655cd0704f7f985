package dream

import (
	"context"
	"testing"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFreshSessionReachesComplete(t *testing.T) {
	s := newFakeStore()
	cfg := Config{DisableN2: true, DisableN3: true, DisableREM: true}

	outcome, err := Run(context.Background(), s, nil, "agent-1", "", cfg, true, StartOptions{}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, store.DreamComplete, outcome.Session.State)
}

func TestRunReturnsErrorOnIncompleteSessionWithoutResumeOrRestart(t *testing.T) {
	s := newFakeStore()
	s.sessions["existing"] = &store.DreamSession{ID: "existing", AgentID: "agent-1", State: store.DreamN2Running}

	cfg := Config{}
	_, err := Run(context.Background(), s, nil, "agent-1", "", cfg, true, StartOptions{}, 0, 1000)
	require.Error(t, err)
	var incomplete *ErrIncompleteSession
	assert.ErrorAs(t, err, &incomplete)
}

func TestRunRestartDeletesIncompleteSession(t *testing.T) {
	s := newFakeStore()
	s.sessions["existing"] = &store.DreamSession{ID: "existing", AgentID: "agent-1", State: store.DreamN2Running}
	cfg := Config{DisableN2: true, DisableN3: true, DisableREM: true}

	outcome, err := Run(context.Background(), s, nil, "agent-1", "", cfg, true, StartOptions{Restart: true}, 0, 1000)
	require.NoError(t, err)
	assert.NotEqual(t, "existing", outcome.Session.ID)
	_, stillThere := s.sessions["existing"]
	assert.False(t, stillThere)
}

func TestRunResumeContinuesFromN3Complete(t *testing.T) {
	s := newFakeStore()
	s.sessions["existing"] = &store.DreamSession{ID: "existing", AgentID: "agent-1", State: store.DreamN3Complete}
	cfg := Config{DisableREM: true}

	outcome, err := Run(context.Background(), s, nil, "agent-1", "", cfg, true, StartOptions{Resume: true}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, "existing", outcome.Session.ID)
	assert.Equal(t, store.DreamComplete, outcome.Session.State)
	assert.Nil(t, outcome.N2)
}

func TestRemainingStagesTable(t *testing.T) {
	assert.Equal(t, []string{"N2", "N3", "REM"}, remainingStages(store.DreamIdle))
	assert.Equal(t, []string{"N2", "N3", "REM"}, remainingStages(store.DreamN2Running))
	assert.Equal(t, []string{"N3", "REM"}, remainingStages(store.DreamN2Complete))
	assert.Equal(t, []string{"N3", "REM"}, remainingStages(store.DreamN3Running))
	assert.Equal(t, []string{"REM"}, remainingStages(store.DreamN3Complete))
	assert.Equal(t, []string{"REM"}, remainingStages(store.DreamREMRunning))
	assert.Nil(t, remainingStages(store.DreamComplete))
}

func TestGCRemovesOldCompleteSessions(t *testing.T) {
	s := newFakeStore()
	s.sessions["old"] = &store.DreamSession{ID: "old", State: store.DreamComplete, UpdatedAt: 0}
	s.sessions["recent"] = &store.DreamSession{ID: "recent", State: store.DreamComplete, UpdatedAt: 9_999_999_999}

	n, err := GC(s, Config{RetentionDays: 30}, 9_999_999_999)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, stillThere := s.sessions["old"]
	assert.False(t, stillThere)
}
