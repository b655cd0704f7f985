// Package session mints session ids, parses temporal cues out of user
// text, and captures host VCS context — the three responsibilities of
// spec §4.5.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// CurrentSessionIDSettingKey is the settings-table key holding the active
// session id (§4.5).
const CurrentSessionIDSettingKey = "current_session_id"

// NewID mints a session id with the layout YYYYMMDD-HHMMSS-XXXXXXXX, where
// the final block is random hex.
func NewID(now time.Time) string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(b))
}

// settingsStore is the narrow store surface session needs, so tests don't
// require a live database.
type settingsStore interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Start mints a new session id, stores it as current, and returns both the
// new id and the previous one (empty if none).
func Start(s settingsStore, now time.Time) (current, previous string, err error) {
	previous, _, err = s.GetSetting(CurrentSessionIDSettingKey)
	if err != nil {
		return "", "", fmt.Errorf("session: read current session id: %w", err)
	}

	current = NewID(now)
	if err := s.SetSetting(CurrentSessionIDSettingKey, current); err != nil {
		return "", "", fmt.Errorf("session: set current session id: %w", err)
	}
	return current, previous, nil
}

// PreviousSessionID returns the most recent distinct session_id among the
// given memories' session ids, excluding currentSessionID. Memories are
// assumed ordered newest-first; if not, the caller should sort by
// CreatedAt descending first.
func PreviousSessionID(sessionIDsNewestFirst []string, currentSessionID string) string {
	for _, id := range sessionIDsNewestFirst {
		if id != "" && id != currentSessionID {
			return id
		}
	}
	return ""
}
