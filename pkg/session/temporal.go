package session

import (
	"regexp"
	"strings"
	"time"
)

// Coordinate is the §6.2 TemporalCoordinate result. Consumers AND-combine
// whichever fields are populated into a store query.
type Coordinate struct {
	CueType          string
	OriginalText     string
	SessionID        string
	IsCurrentSession bool
	StartTime        *int64 // unix millis
	EndTime          *int64
	GitCommit        string
	GitBranch        string
}

// Resolver supplies the session/commit context temporal cues resolve
// against. CurrentCommit/SecondMostRecentCommit may be empty if unknown.
type Resolver struct {
	CurrentSessionID        string
	PreviousSessionID       string
	CurrentCommit           string
	SecondMostRecentCommit  string
}

type cuePattern struct {
	cueType string
	re      *regexp.Regexp
	resolve func(r Resolver, now time.Time, match []string) Coordinate
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func ptr(v int64) *int64 { return &v }

var patterns = buildPatterns()

func buildPatterns() []cuePattern {
	return []cuePattern{
		{
			cueType: "previous_session",
			re:      regexp.MustCompile(`(?i)(last|previous) session|as we discussed last session`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "previous_session", SessionID: r.PreviousSessionID}
			},
		},
		{
			cueType: "current_session",
			re:      regexp.MustCompile(`(?i)this session|earlier today|this session`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "current_session", SessionID: r.CurrentSessionID, IsCurrentSession: true}
			},
		},
		{
			cueType: "previous_commit",
			re:      regexp.MustCompile(`(?i)(last|previous) commit|during that commit`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "previous_commit", GitCommit: r.SecondMostRecentCommit}
			},
		},
		{
			cueType: "current_commit",
			re:      regexp.MustCompile(`(?i)(this|the) commit`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "current_commit", GitCommit: r.CurrentCommit}
			},
		},
		{
			cueType: "named_branch",
			re:      regexp.MustCompile(`(?i)on branch ([\w./-]+)`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "named_branch", GitBranch: m[1]}
			},
		},
		{
			cueType: "main_branch",
			re:      regexp.MustCompile(`(?i)on (main|master)`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "main_branch", GitBranch: m[1]}
			},
		},
		{
			cueType: "RELATIVE_TIME",
			re:      regexp.MustCompile(`(?i)yesterday`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				today := startOfDay(now)
				yest := today.AddDate(0, 0, -1)
				return Coordinate{CueType: "RELATIVE_TIME", StartTime: ptr(millis(yest)), EndTime: ptr(millis(today))}
			},
		},
		{
			cueType: "last_week",
			re:      regexp.MustCompile(`(?i)last week`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "last_week", StartTime: ptr(millis(now.AddDate(0, 0, -7)))}
			},
		},
		{
			cueType: "this_week",
			re:      regexp.MustCompile(`(?i)this week`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				today := startOfDay(now)
				offset := (int(today.Weekday()) + 6) % 7 // days since Monday
				monday := today.AddDate(0, 0, -offset)
				return Coordinate{CueType: "this_week", StartTime: ptr(millis(monday))}
			},
		},
		{
			cueType: "recently",
			re:      regexp.MustCompile(`(?i)recently`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "recently", StartTime: ptr(millis(now.Add(-48 * time.Hour)))}
			},
		},
		{
			cueType: "a_few_days_ago",
			re:      regexp.MustCompile(`(?i)a few days ago`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{
					CueType:   "a_few_days_ago",
					StartTime: ptr(millis(now.AddDate(0, 0, -5))),
					EndTime:   ptr(millis(now.AddDate(0, 0, -1))),
				}
			},
		},
		{
			cueType: "last_month",
			re:      regexp.MustCompile(`(?i)last month`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "last_month", StartTime: ptr(millis(now.AddDate(0, 0, -30)))}
			},
		},
		{
			cueType: "earlier",
			re:      regexp.MustCompile(`(?i)\bearlier\b`),
			resolve: func(r Resolver, now time.Time, m []string) Coordinate {
				return Coordinate{CueType: "earlier", StartTime: ptr(millis(startOfDay(now)))}
			},
		},
	}
}

// ParseCue scans text for the first recognized temporal cue and resolves
// it, per the §4.5 cue table. Returns ok=false if nothing matched.
func ParseCue(text string, r Resolver, now time.Time) (Coordinate, bool) {
	cues := FindAllCues(text, r, now)
	if len(cues) == 0 {
		return Coordinate{}, false
	}
	return cues[0], true
}

// FindAllCues implements "find_all_temporal_cues": scans for every
// recognized cue, in the order they appear in text, and returns them all.
func FindAllCues(text string, r Resolver, now time.Time) []Coordinate {
	type hit struct {
		pos   int
		coord Coordinate
	}
	var hits []hit

	for _, p := range patterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		groups := submatches(text, loc)
		coord := p.resolve(r, now, groups)
		coord.OriginalText = strings.TrimSpace(groups[0])
		hits = append(hits, hit{pos: loc[0], coord: coord})
	}

	// Stable order by position of first occurrence in the source text.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	out := make([]Coordinate, len(hits))
	for i, h := range hits {
		out[i] = h.coord
	}
	return out
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		s, e := loc[2*i], loc[2*i+1]
		if s < 0 {
			continue
		}
		out[i] = text[s:e]
	}
	return out
}
