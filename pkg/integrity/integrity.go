// Package integrity implements HMAC-SHA256 memory signing/verification
// and the whole-store consistency scan (missing fields, enum violations,
// dangling references, signature mismatches).
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattgrain/animaltm/internal/store"
)

// canonicalFields returns the stable, order-independent byte sequence a
// signature covers: agent id, region, project id, kind, content, and
// creation time. Content is included verbatim (not a hash of it) so a
// single-byte edit changes the signature deterministically.
func canonicalFields(m *store.Memory) []byte {
	var b strings.Builder
	b.WriteString(m.AgentID)
	b.WriteByte('\x00')
	b.WriteString(string(m.Region))
	b.WriteByte('\x00')
	b.WriteString(m.ProjectID)
	b.WriteByte('\x00')
	b.WriteString(string(m.Kind))
	b.WriteByte('\x00')
	b.WriteString(m.Content)
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(m.CreatedAt, 10))
	return []byte(b.String())
}

// Sign computes the HMAC-SHA256 signature of m's canonical fields under key.
func Sign(m *store.Memory, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(canonicalFields(m))
	return mac.Sum(nil)
}

// Verify reports whether m's stored signature matches its canonical fields
// under key. A memory with no signature verifies as false.
func Verify(m *store.Memory, key []byte) bool {
	if len(m.Signature) == 0 {
		return false
	}
	want := Sign(m, key)
	return hmac.Equal(want, m.Signature)
}

// Severity classifies a found issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one flagged inconsistency, scoped to a single memory.
type Issue struct {
	MemoryIDPrefix string
	Field          string
	Description    string
	Severity       Severity
}

// Report is the outcome of one Check call (§4.11).
type Report struct {
	TotalChecked int
	Issues       []Issue
}

func idPrefix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func addIssue(r *Report, id, field, desc string, sev Severity) {
	r.Issues = append(r.Issues, Issue{MemoryIDPrefix: idPrefix(id), Field: field, Description: desc, Severity: sev})
}

// Check scans memories (already narrowed by the caller to one agent,
// optionally plus one project's non-superseded rows) and flags §4.11's
// invariant violations. signingKey may be nil, in which case signature
// mismatches are never reported (absence of a key is not itself a finding).
func Check(memories []*store.Memory, signingKey []byte) *Report {
	report := &Report{TotalChecked: len(memories)}

	byID := make(map[string]*store.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	for _, m := range memories {
		if m.AgentID == "" {
			addIssue(report, m.ID, "agent_id", "memory has no agent_id", SeverityError)
		}
		if strings.TrimSpace(m.Content) == "" {
			addIssue(report, m.ID, "content", "memory has empty content", SeverityError)
		}
		if !m.Kind.IsValid() {
			addIssue(report, m.ID, "kind", fmt.Sprintf("kind %q is not a recognized enum value", m.Kind), SeverityError)
		}
		if !m.Impact.IsValid() {
			addIssue(report, m.ID, "impact", fmt.Sprintf("impact %q is not a recognized enum value", m.Impact), SeverityError)
		}
		if !m.Region.IsValid() {
			addIssue(report, m.ID, "region", fmt.Sprintf("region %q is not a recognized enum value", m.Region), SeverityError)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			addIssue(report, m.ID, "confidence", fmt.Sprintf("confidence %.3f is outside [0, 1]", m.Confidence), SeverityWarning)
		}
		if m.PreviousMemoryID != "" {
			if _, ok := byID[m.PreviousMemoryID]; !ok {
				addIssue(report, m.ID, "previous_memory_id", fmt.Sprintf("references absent memory %s", idPrefix(m.PreviousMemoryID)), SeverityWarning)
			}
		}
		if m.SupersededBy != "" {
			if _, ok := byID[m.SupersededBy]; !ok {
				addIssue(report, m.ID, "superseded_by", fmt.Sprintf("references absent memory %s", idPrefix(m.SupersededBy)), SeverityWarning)
			}
		}
		if signingKey != nil && len(m.Signature) > 0 && !Verify(m, signingKey) {
			addIssue(report, m.ID, "signature", "signature does not match canonical fields", SeverityError)
		}
	}

	return report
}
