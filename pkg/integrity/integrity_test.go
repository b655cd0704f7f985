package integrity

import (
	"testing"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/stretchr/testify/assert"
)

func baseMemory() *store.Memory {
	return &store.Memory{
		ID: "mem-0000000000001", AgentID: "agent-1", Region: store.RegionAgent,
		Kind: store.KindArchitectural, Impact: store.ImpactLow, Content: "the build uses goreleaser",
		Confidence: 0.9, CreatedAt: 1000,
	}
}

func TestSignThenVerifySucceeds(t *testing.T) {
	key := []byte("secret-key")
	m := baseMemory()
	m.Signature = Sign(m, key)
	assert.True(t, Verify(m, key))
}

func TestVerifyFailsOnTamperedContent(t *testing.T) {
	key := []byte("secret-key")
	m := baseMemory()
	m.Signature = Sign(m, key)
	m.Content = "the build uses something else"
	assert.False(t, Verify(m, key))
}

func TestVerifyFailsWithWrongKey(t *testing.T) {
	m := baseMemory()
	m.Signature = Sign(m, []byte("key-a"))
	assert.False(t, Verify(m, []byte("key-b")))
}

func TestVerifyFalseWhenNoSignaturePresent(t *testing.T) {
	m := baseMemory()
	assert.False(t, Verify(m, []byte("key")))
}

func TestCheckFlagsMissingAgentIDAndEmptyContent(t *testing.T) {
	m := baseMemory()
	m.AgentID = ""
	m.Content = "   "
	report := Check([]*store.Memory{m}, nil)
	var fields []string
	for _, i := range report.Issues {
		fields = append(fields, i.Field)
	}
	assert.Contains(t, fields, "agent_id")
	assert.Contains(t, fields, "content")
}

func TestCheckFlagsEnumViolationsAsErrors(t *testing.T) {
	m := baseMemory()
	m.Kind = "not-a-kind"
	report := Check([]*store.Memory{m}, nil)
	found := false
	for _, i := range report.Issues {
		if i.Field == "kind" {
			found = true
			assert.Equal(t, SeverityError, i.Severity)
		}
	}
	assert.True(t, found)
}

func TestCheckFlagsConfidenceOutOfRangeAsWarning(t *testing.T) {
	m := baseMemory()
	m.Confidence = 1.5
	report := Check([]*store.Memory{m}, nil)
	found := false
	for _, i := range report.Issues {
		if i.Field == "confidence" {
			found = true
			assert.Equal(t, SeverityWarning, i.Severity)
		}
	}
	assert.True(t, found)
}

func TestCheckFlagsDanglingReferencesAsWarnings(t *testing.T) {
	m := baseMemory()
	m.PreviousMemoryID = "ghost-memory"
	m.SupersededBy = "another-ghost"
	report := Check([]*store.Memory{m}, nil)
	fields := map[string]Severity{}
	for _, i := range report.Issues {
		fields[i.Field] = i.Severity
	}
	assert.Equal(t, SeverityWarning, fields["previous_memory_id"])
	assert.Equal(t, SeverityWarning, fields["superseded_by"])
}

func TestCheckDoesNotFlagReferencesPresentInSet(t *testing.T) {
	a := baseMemory()
	b := baseMemory()
	b.ID = "mem-0000000000002"
	b.PreviousMemoryID = a.ID
	report := Check([]*store.Memory{a, b}, nil)
	for _, i := range report.Issues {
		assert.NotEqual(t, "previous_memory_id", i.Field)
	}
}

func TestCheckFlagsSignatureMismatchWhenKeyProvided(t *testing.T) {
	key := []byte("secret-key")
	m := baseMemory()
	m.Signature = Sign(m, key)
	m.Content = "tampered after signing"
	report := Check([]*store.Memory{m}, key)
	found := false
	for _, i := range report.Issues {
		if i.Field == "signature" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckSkipsSignatureCheckWithoutKey(t *testing.T) {
	m := baseMemory()
	m.Signature = Sign(m, []byte("some-key"))
	m.Content = "tampered"
	report := Check([]*store.Memory{m}, nil)
	for _, i := range report.Issues {
		assert.NotEqual(t, "signature", i.Field)
	}
}
