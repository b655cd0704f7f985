// Package textutil provides the small set of text-shaping helpers shared
// by the decay engine, the N3 dream stage, and the injection engine:
// abbreviation-aware sentence splitting and sentence-boundary truncation.
package textutil

import "strings"

// commonAbbreviations must not be treated as sentence-ending periods.
var commonAbbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"sr.": true, "jr.": true, "vs.": true, "etc.": true, "e.g.": true,
	"i.e.": true, "inc.": true, "ltd.": true, "co.": true, "st.": true,
	"approx.": true, "no.": true, "fig.": true,
}

// SignalPhrases are the markers used both to pick gist sentences (§4.10.2)
// and to decide which sentences survive aggressive decay compaction (§4.4).
var SignalPhrases = []string{
	"key insight", "important", "learned that", "realized", "discovered",
	"conclusion", "takeaway", "main point", "critical", "essential",
	"must", "always", "never",
}

// SplitSentences splits text on '.', '!', and '?' boundaries, folding
// known abbreviations back into the following sentence instead of
// treating them as a terminator.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Don't split mid-abbreviation (e.g. "Dr. Smith").
		lastWord := lastWord(current.String())
		if r == '.' && commonAbbreviations[strings.ToLower(lastWord)] {
			continue
		}

		// Don't split on a decimal point or ellipsis run.
		if r == '.' && i+1 < len(runes) && (isDigit(runes[i+1]) || runes[i+1] == '.') {
			continue
		}

		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		current.Reset()
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func lastWord(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.LastIndexAny(s, " \t\n")
	if idx == -1 {
		return s
	}
	return s[idx+1:]
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// ContainsSignalPhrase reports whether text contains any of SignalPhrases,
// case-insensitively.
func ContainsSignalPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range SignalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// TruncateAtSentenceBoundary shortens text to at most maxChars, preferring
// to cut at the last sentence boundary within the limit; otherwise it cuts
// at the last whitespace, or hard-cuts, and appends an ellipsis that
// counts toward maxChars. Used by the injection
// engine (§4.7 step 7) and the fingerprint README excerpt (§4.6 step 1).
func TruncateAtSentenceBoundary(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	window := string(runes[:maxChars])
	bestCut := -1
	for i, r := range window {
		if r == '.' || r == '!' || r == '?' {
			bestCut = i + 1
		}
	}
	if bestCut > maxChars/2 {
		return strings.TrimSpace(window[:bestCut])
	}

	if idx := strings.LastIndexAny(window, " \n\t"); idx > 0 {
		return strings.TrimSpace(window[:idx]) + "…"
	}
	if maxChars > 1 {
		window = string(runes[:maxChars-1])
	}
	return strings.TrimSpace(window) + "…"
}
