// Package dsl emits the compact, line-oriented memory block described in
// spec §4.12 / §6.1: a [LTM:<agent>]...[/LTM] envelope, one line per
// memory. Parsers treat the block as opaque; only the delimiters and the
// one-line-per-memory invariant are guaranteed.
package dsl

import (
	"fmt"
	"strings"

	"github.com/mattgrain/animaltm/internal/store"
)

// Line is the rendering input for one memory: a display-ready (already
// truncated) copy of the fields the DSL line needs.
type Line struct {
	Kind           store.Kind
	Impact         store.Impact
	Confidence     float64
	Content        string
	HasSignature   bool
	SignatureValid bool
}

// impactMarker gives each impact level a short marker, one character for
// every level except CRITICAL, which is the loudest ("!!").
func impactMarker(i store.Impact) string {
	switch i {
	case store.ImpactCritical:
		return "!!"
	case store.ImpactHigh:
		return "!"
	case store.ImpactWIP:
		return "~"
	case store.ImpactMedium:
		return "-"
	default:
		return "."
	}
}

// confidenceMarker renders confidence as a coarse bracketed percentage.
func confidenceMarker(c float64) string {
	return fmt.Sprintf("(%d%%)", int(c*100+0.5))
}

// signatureGlyph marks unsigned content blank, verified content trusted,
// and a signature mismatch with a visible warning per §4.7 step 8.
func signatureGlyph(l Line) string {
	if !l.HasSignature {
		return ""
	}
	if l.SignatureValid {
		return ""
	}
	return " ⚠" // warning sign: mismatch detected on load
}

// RenderLine formats exactly one memory line. Content must already be
// truncated by the caller (the injection engine owns budget truncation).
func RenderLine(l Line) string {
	content := strings.ReplaceAll(l.Content, "\n", " ")
	return fmt.Sprintf("[%s]%s %s %s%s", l.Kind, impactMarker(l.Impact), confidenceMarker(l.Confidence), content, signatureGlyph(l))
}

// Emit wraps rendered lines in the [LTM:<agent>]...[/LTM] envelope.
func Emit(agentName string, lines []*Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[LTM:%s]\n", agentName)
	for _, l := range lines {
		b.WriteString(RenderLine(*l))
		b.WriteString("\n")
	}
	b.WriteString("[/LTM]")
	return b.String()
}
