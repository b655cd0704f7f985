// Package dream implements the dream FSM (§4.9) and its three stages —
// N2 consolidation, N3 deep processing, and REM divergent-material
// gathering (§4.10).
package dream

import "time"

// Config bounds the dream stages; zero values fall back to spec defaults.
type Config struct {
	ProjectLookbackDays     int     // default 7, memory/diary cutoff window
	N2ProcessLimit          int     // default 100
	N3ContradictionThresh   float32 // default 0.7, cosine floor for contradiction candidates
	REMAssociationDistance  float32 // default 0.3, distant-pair similarity ceiling
	REMMinWordCount         int     // default 3, recurring-theme frequency floor
	RetentionDays           int     // default 30, GC window for COMPLETE sessions
	DisableN2               bool
	DisableN3               bool
	DisableREM              bool
	JournalDir              string // default "./.ltm/dreams"
	DiaryDir                string // default "./.ltm/diary"

	// KnownProjectNames feeds N3 scope validation's project-name heuristic
	// (§4.10.2 step 4). The store has no project-listing query, so callers
	// supply the names of projects they know about.
	KnownProjectNames []string
}

func (c Config) withDefaults() Config {
	if c.ProjectLookbackDays == 0 {
		c.ProjectLookbackDays = 7
	}
	if c.N2ProcessLimit == 0 {
		c.N2ProcessLimit = 100
	}
	if c.N3ContradictionThresh == 0 {
		c.N3ContradictionThresh = 0.7
	}
	if c.REMAssociationDistance == 0 {
		c.REMAssociationDistance = 0.3
	}
	if c.REMMinWordCount == 0 {
		c.REMMinWordCount = 3
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
	if c.JournalDir == "" {
		c.JournalDir = "./.ltm/dreams"
	}
	if c.DiaryDir == "" {
		c.DiaryDir = "./.ltm/diary"
	}
	return c
}

func (c Config) lookbackMillis() int64 {
	return int64(time.Duration(c.ProjectLookbackDays) * 24 * time.Hour / time.Millisecond)
}

func (c Config) retentionMillis() int64 {
	return int64(time.Duration(c.RetentionDays) * 24 * time.Hour / time.Millisecond)
}
