package dream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattgrain/animaltm/internal/store"
)

// Store is the full surface the dream FSM and its stages need.
type Store interface {
	N2Store
	N3Store
	REMStore
	SaveDreamSession(d *store.DreamSession) error
	GetDreamSession(id string) (*store.DreamSession, error)
	GetActiveDreamSession(agentID, projectID string) (*store.DreamSession, error)
	DeleteDreamSession(id string) error
	GCDreamSessions(olderThan int64) (int, error)
}

// StartOptions controls how an attempt handles a pre-existing incomplete
// session (§4.9 step 1).
type StartOptions struct {
	Resume  bool
	Restart bool
}

// ErrIncompleteSession is returned when an incomplete session already
// exists and the caller asked for neither resume nor restart.
type ErrIncompleteSession struct {
	SessionID string
	State     store.DreamState
}

func (e *ErrIncompleteSession) Error() string {
	return fmt.Sprintf("dream: session %s is incomplete at state %s; pass Resume or Restart to continue", e.SessionID, e.State)
}

// remainingStages maps the FSM's current state to the stages still owed,
// per the §4.9 resume table.
func remainingStages(state store.DreamState) []string {
	switch state {
	case store.DreamIdle, store.DreamN2Running:
		return []string{"N2", "N3", "REM"}
	case store.DreamN2Complete:
		return []string{"N3", "REM"}
	case store.DreamN3Running:
		return []string{"N3", "REM"}
	case store.DreamN3Complete:
		return []string{"REM"}
	case store.DreamREMRunning:
		return []string{"REM"}
	default:
		return nil
	}
}

// Outcome is the result of one Run call: the final session row plus each
// stage's parsed result (nil if that stage did not execute this call).
type Outcome struct {
	Session *store.DreamSession
	N2      *N2Result
	N3      *N3Result
	REM     *REMResult
}

func loadOrCreateSession(s Store, agentID, projectID string, opts StartOptions, now int64) (*store.DreamSession, error) {
	active, err := s.GetActiveDreamSession(agentID, projectID)
	if errors.Is(err, store.ErrNotFound) {
		active, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dream: load active session: %w", err)
	}

	if active != nil {
		switch {
		case opts.Restart:
			if err := s.DeleteDreamSession(active.ID); err != nil {
				return nil, fmt.Errorf("dream: delete incomplete session: %w", err)
			}
		case opts.Resume:
			return active, nil
		default:
			return nil, &ErrIncompleteSession{SessionID: active.ID, State: active.State}
		}
	}

	session := &store.DreamSession{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		ProjectID: projectID,
		State:     store.DreamIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveDreamSession(session); err != nil {
		return nil, fmt.Errorf("dream: create session: %w", err)
	}
	return session, nil
}

func restoreOutcome(session *store.DreamSession) *Outcome {
	outcome := &Outcome{Session: session}
	if len(session.N2ResultJSON) > 0 {
		var r N2Result
		if err := json.Unmarshal(session.N2ResultJSON, &r); err == nil {
			outcome.N2 = &r
		}
	}
	if len(session.N3ResultJSON) > 0 {
		var r N3Result
		if err := json.Unmarshal(session.N3ResultJSON, &r); err == nil {
			outcome.N3 = &r
		}
	}
	if len(session.REMResultJSON) > 0 {
		var r REMResult
		if err := json.Unmarshal(session.REMResultJSON, &r); err == nil {
			outcome.REM = &r
		}
	}
	return outcome
}

// Run executes §4.9's lifecycle: start-or-resume, then each remaining
// stage in N2 -> N3 -> REM order. A stage's result is persisted as soon as
// it completes, so an exception part-way through leaves earlier results
// intact and the state at "<stage>_RUNNING" for the next Run/resume call.
func Run(ctx context.Context, s Store, diarySrc DiarySource, agentID, projectID string, cfg Config, quiet bool, opts StartOptions, sinceLastDream, now int64) (*Outcome, error) {
	cfg = cfg.withDefaults()

	session, err := loadOrCreateSession(s, agentID, projectID, opts, now)
	if err != nil {
		return nil, err
	}
	outcome := restoreOutcome(session)

	for _, stage := range remainingStages(session.State) {
		switch stage {
		case "N2":
			if cfg.DisableN2 {
				session.State = store.DreamN2Complete
				if err := s.SaveDreamSession(session); err != nil {
					return nil, err
				}
				continue
			}
			session.State = store.DreamN2Running
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			result, err := RunN2(ctx, s, agentID, projectID, cfg, quiet, now)
			if err != nil {
				return nil, fmt.Errorf("dream: N2 stage: %w", err)
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("dream: marshal N2 result: %w", err)
			}
			session.N2ResultJSON = payload
			session.State = store.DreamN2Complete
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			outcome.N2 = result

		case "N3":
			if cfg.DisableN3 {
				session.State = store.DreamN3Complete
				if err := s.SaveDreamSession(session); err != nil {
					return nil, err
				}
				continue
			}
			session.State = store.DreamN3Running
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			result, err := RunN3(ctx, s, agentID, projectID, cfg, quiet, now)
			if err != nil {
				return nil, fmt.Errorf("dream: N3 stage: %w", err)
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("dream: marshal N3 result: %w", err)
			}
			session.N3ResultJSON = payload
			session.State = store.DreamN3Complete
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			outcome.N3 = result

		case "REM":
			if cfg.DisableREM {
				session.State = store.DreamComplete
				if err := s.SaveDreamSession(session); err != nil {
					return nil, err
				}
				continue
			}
			session.State = store.DreamREMRunning
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			result, err := RunREM(ctx, s, diarySrc, agentID, projectID, cfg, quiet, sinceLastDream, now)
			if err != nil {
				return nil, fmt.Errorf("dream: REM stage: %w", err)
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("dream: marshal REM result: %w", err)
			}
			session.REMResultJSON = payload
			session.State = store.DreamComplete
			session.UpdatedAt = now
			if err := s.SaveDreamSession(session); err != nil {
				return nil, err
			}
			outcome.REM = result
		}
	}

	outcome.Session = session
	return outcome, nil
}

// GC removes COMPLETE sessions older than cfg's retention window.
func GC(s Store, cfg Config, now int64) (int, error) {
	cfg = cfg.withDefaults()
	return s.GCDreamSessions(now - cfg.retentionMillis())
}
