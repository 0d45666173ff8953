// Package prompt builds the bounded fill-in-the-middle prompt sent to the
// completion backend.
package prompt

import (
	"sort"
	"strings"

	"github.com/Paranoid-AF/fimlet/buffer"
)

// Template placeholders.
const (
	PlaceholderAbove = "{textAboveCursor}"
	PlaceholderBelow = "{textBelowCursor}"
)

// Window bounds the context placed into the prompt.
type Window struct {
	// MaxLinesAbove keeps only the last N lines above the cursor. <= 0 keeps all.
	MaxLinesAbove int
	// MaxLinesBelow keeps only the first N lines below the cursor. <= 0 keeps all.
	MaxLinesBelow int
	// Template holds PlaceholderAbove and PlaceholderBelow.
	Template string
}

// Build truncates above and below to the window and substitutes them into
// the template. It is a pure function of its inputs.
func Build(above, below string, w Window) string {
	above = lastLines(above, w.MaxLinesAbove)
	below = firstLines(below, w.MaxLinesBelow)
	return buffer.NormalizeNewlines(substitute(w.Template, above, below))
}

// lastLines keeps the last n lines of s.
func lastLines(s string, n int) string {
	if n <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// firstLines keeps the first n lines of s.
func firstLines(s string, n int) string {
	if n <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}

// substitute replaces the first occurrence of each placeholder in tmpl.
// Positions are taken from the template alone, so substituted text is never
// scanned for placeholders.
func substitute(tmpl, above, below string) string {
	type slot struct {
		at    int
		width int
		value string
	}
	var slots []slot
	if i := strings.Index(tmpl, PlaceholderAbove); i >= 0 {
		slots = append(slots, slot{i, len(PlaceholderAbove), above})
	}
	if i := strings.Index(tmpl, PlaceholderBelow); i >= 0 {
		slots = append(slots, slot{i, len(PlaceholderBelow), below})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].at < slots[j].at })

	var sb strings.Builder
	sb.Grow(len(tmpl) + len(above) + len(below))
	prev := 0
	for _, s := range slots {
		sb.WriteString(tmpl[prev:s.at])
		sb.WriteString(s.value)
		prev = s.at + s.width
	}
	sb.WriteString(tmpl[prev:])
	return sb.String()
}

// HasPlaceholders reports which placeholders tmpl contains.
func HasPlaceholders(tmpl string) (above, below bool) {
	return strings.Contains(tmpl, PlaceholderAbove), strings.Contains(tmpl, PlaceholderBelow)
}
