// Package buffer models the editor document seen by the completion core:
// positions, ranges and the text around the cursor.
package buffer

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Position is a zero-based line/character location in a document.
// Character is counted in the document's position encoding.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Document is the editor collaborator consumed by the completion core.
type Document interface {
	// TextInRange returns the text between start (inclusive) and end (exclusive).
	TextInRange(start, end Position) string
	// CursorPosition returns the current cursor position.
	CursorPosition() Position
	// End returns the position just past the last character of the document.
	End() Position
}

// LanguageIdentifier is implemented by documents that know their language.
type LanguageIdentifier interface {
	LanguageID() string
}

// Encoding is the unit Position.Character is counted in.
type Encoding string

const (
	// UTF8 counts bytes.
	UTF8 Encoding = "utf-8"
	// UTF16 counts UTF-16 code units, as LSP clients and VS Code do.
	UTF16 Encoding = "utf-16"
)

// ParseEncoding maps a wire value to an Encoding. Unknown or empty values
// fall back to UTF8.
func ParseEncoding(s string) Encoding {
	switch strings.ToLower(s) {
	case "utf-16", "utf16":
		return UTF16
	default:
		return UTF8
	}
}

// NormalizeNewlines converts CRLF line endings to LF.
func NormalizeNewlines(s string) string {
	if !strings.Contains(s, "\r\n") {
		return s
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// TextAround reads the text above and below the cursor of doc with line
// endings normalized. This is the only place document text enters the core.
func TextAround(doc Document) (above, below string) {
	cursor := doc.CursorPosition()
	above = doc.TextInRange(Position{}, cursor)
	below = doc.TextInRange(cursor, doc.End())
	return NormalizeNewlines(above), NormalizeNewlines(below)
}

// Snapshot is an immutable Document over a full text string.
type Snapshot struct {
	text       string
	lineStarts []int // byte offset of each line start
	cursor     Position
	encoding   Encoding
	language   string
}

// NewSnapshot creates a snapshot of text with the cursor at pos.
// The cursor is clamped into the document.
func NewSnapshot(text string, pos Position, enc Encoding) *Snapshot {
	s := &Snapshot{
		text:       text,
		lineStarts: []int{0},
		encoding:   enc,
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			s.lineStarts = append(s.lineStarts, i+1)
		}
	}
	s.cursor = s.clamp(pos)
	return s
}

// WithLanguage sets the language identifier reported by LanguageID.
func (s *Snapshot) WithLanguage(lang string) *Snapshot {
	s.language = lang
	return s
}

// LanguageID returns the document language, or "" if unknown.
func (s *Snapshot) LanguageID() string { return s.language }

// Text returns the full document text.
func (s *Snapshot) Text() string { return s.text }

// LineCount returns the number of lines in the document.
func (s *Snapshot) LineCount() int { return len(s.lineStarts) }

// CursorPosition implements Document.
func (s *Snapshot) CursorPosition() Position { return s.cursor }

// End implements Document.
func (s *Snapshot) End() Position {
	last := len(s.lineStarts) - 1
	return Position{Line: last, Character: s.unitsIn(s.line(last))}
}

// TextInRange implements Document.
func (s *Snapshot) TextInRange(start, end Position) string {
	from, to := s.Offset(start), s.Offset(end)
	if to < from {
		return ""
	}
	return s.text[from:to]
}

// Offset converts a position into a byte offset into the text.
func (s *Snapshot) Offset(pos Position) int {
	pos = s.clamp(pos)
	line := s.line(pos.Line)
	return s.lineStarts[pos.Line] + s.byteIndex(line, pos.Character)
}

// line returns the content of line n without its terminating "\n" or
// "\r\n", so no position can fall between the two.
func (s *Snapshot) line(n int) string {
	start := s.lineStarts[n]
	if n+1 == len(s.lineStarts) {
		return s.text[start:]
	}
	return strings.TrimSuffix(s.text[start:s.lineStarts[n+1]-1], "\r")
}

func (s *Snapshot) clamp(pos Position) Position {
	if pos.Line < 0 {
		return Position{}
	}
	if pos.Line >= len(s.lineStarts) {
		return s.End()
	}
	if pos.Character < 0 {
		pos.Character = 0
	}
	if max := s.unitsIn(s.line(pos.Line)); pos.Character > max {
		pos.Character = max
	}
	return pos
}

// unitsIn returns the length of line in encoding units.
func (s *Snapshot) unitsIn(line string) int {
	if s.encoding != UTF16 {
		return len(line)
	}
	n := 0
	for _, r := range line {
		n += utf16.RuneLen(r)
	}
	return n
}

// byteIndex converts a character count in the snapshot encoding into a
// byte index within line. Offsets that fall inside a multi-unit character
// are rounded down to its start.
func (s *Snapshot) byteIndex(line string, character int) int {
	if s.encoding != UTF16 {
		for character > 0 && character < len(line) && !utf8.RuneStart(line[character]) {
			character--
		}
		return character
	}
	units := 0
	for i, r := range line {
		w := utf16.RuneLen(r)
		if units+w > character {
			return i
		}
		units += w
	}
	return len(line)
}
