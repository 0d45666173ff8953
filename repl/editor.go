package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/Paranoid-AF/fimlet/buffer"
)

// Editor is a minimal multi-line editor with cursor tracking and ghost text.
// It reads from /dev/tty so it works even when stdout is redirected.
//
// Committed lines are immutable; only the current line is edited. A hint is
// drawn dimmed at the cursor and Tab inserts it.
type Editor struct {
	in       io.Reader
	out      io.Writer
	tty      *os.File
	oldState *term.State

	mu      sync.Mutex
	lines   []string // committed lines
	buf     []byte   // current line
	pos     int      // cursor byte offset into buf
	hint    string
	version int
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	e := newEditor(tty, tty)
	e.tty = tty
	e.oldState = old
	return e, nil
}

func newEditor(in io.Reader, out io.Writer) *Editor {
	return &Editor{in: in, out: out}
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	if e.tty == nil {
		return
	}
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the writer for prompts and UI.
func (e *Editor) Tty() io.Writer {
	return e.out
}

// Lines returns the committed lines.
func (e *Editor) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.lines...)
}

// Document returns the document as the editor shows it, without the hint.
func (e *Editor) Document() *buffer.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.document()
}

func (e *Editor) document() *buffer.Snapshot {
	all := make([]string, 0, len(e.lines)+1)
	all = append(all, e.lines...)
	all = append(all, string(e.buf))
	return buffer.NewSnapshot(strings.Join(all, "\n"),
		buffer.Position{Line: len(e.lines), Character: e.pos},
		buffer.UTF8,
	)
}

// SetHint shows text as ghost text if the document is still at version.
// It reports whether the hint was shown.
func (e *Editor) SetHint(version int, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if version != e.version {
		return false
	}
	e.hint = text
	e.redraw()
	return true
}

// Hint returns the hint currently shown.
func (e *Editor) Hint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hint
}

// Notice prints msg above the current line.
func (e *Editor) Notice(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "\r\x1b[K\x1b[33m%s\x1b[0m\r\n", msg)
	e.redraw()
}

// Run reads keys until Ctrl-D on an empty line (io.EOF), Ctrl-C
// (ErrInterrupt) or a read error. After every edit or cursor move it calls
// onChange with the new document and its version, outside the editor lock.
func (e *Editor) Run(onChange func(doc *buffer.Snapshot, version int)) error {
	e.mu.Lock()
	e.redraw()
	e.mu.Unlock()

	for {
		b, err := e.readByte()
		if err != nil {
			return err
		}

		e.mu.Lock()
		changed, err := e.handleKey(b)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		if !changed {
			e.mu.Unlock()
			continue
		}
		e.version++
		e.hint = ""
		e.redraw()
		doc, version := e.document(), e.version
		e.mu.Unlock()

		if onChange != nil {
			onChange(doc, version)
		}
	}
}

func (e *Editor) readByte() (byte, error) {
	var b [1]byte
	for {
		n, err := e.in.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// handleKey applies one key and reports whether the document or cursor
// changed. Called with e.mu held.
func (e *Editor) handleKey(b byte) (bool, error) {
	switch b {
	case 3: // Ctrl-C
		fmt.Fprintf(e.out, "\r\n")
		return false, ErrInterrupt

	case 4: // Ctrl-D
		if len(e.buf) == 0 {
			fmt.Fprintf(e.out, "\r\n")
			return false, io.EOF
		}
		return false, nil

	case 9: // Tab
		if e.hint == "" {
			return false, nil
		}
		e.accept()

	case 13, 10: // Enter
		e.hint = ""
		e.redraw()
		fmt.Fprintf(e.out, "\r\n")
		e.lines = append(e.lines, string(e.buf))
		e.buf = nil
		e.pos = 0

	case 127, 8: // Backspace / Ctrl-H
		switch {
		case e.pos > 0:
			_, size := prevRune(e.buf, e.pos)
			copy(e.buf[e.pos-size:], e.buf[e.pos:])
			e.buf = e.buf[:len(e.buf)-size]
			e.pos -= size
		case len(e.lines) > 0:
			// Join with the previous line.
			prev := e.lines[len(e.lines)-1]
			e.lines = e.lines[:len(e.lines)-1]
			e.buf = append([]byte(prev), e.buf...)
			e.pos = len(prev)
			fmt.Fprintf(e.out, "\r\x1b[K\x1b[A")
		default:
			return false, nil
		}

	case 1: // Ctrl-A (Home)
		e.pos = 0

	case 5: // Ctrl-E (End)
		e.pos = len(e.buf)

	case 21: // Ctrl-U (clear line)
		e.buf = e.buf[:0]
		e.pos = 0

	case 27: // Escape sequence
		return e.handleEscape()

	default: // Printable character
		if b < 32 {
			return false, nil
		}
		// Determine full UTF-8 sequence length
		ch := []byte{b}
		for extra := utf8RuneLen(b) - 1; extra > 0; extra-- {
			next, err := e.readByte()
			if err != nil {
				return false, err
			}
			ch = append(ch, next)
		}
		e.insert(ch)
	}
	return true, nil
}

func (e *Editor) handleEscape() (bool, error) {
	b, err := e.readByte()
	if err != nil || b != '[' {
		return false, err
	}
	b, err = e.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 'D': // Left
		if e.pos == 0 {
			return false, nil
		}
		_, size := prevRune(e.buf, e.pos)
		e.pos -= size
	case 'C': // Right
		if e.pos == len(e.buf) {
			return false, nil
		}
		_, size := utf8.DecodeRune(e.buf[e.pos:])
		e.pos += size
	case 'H': // Home
		e.pos = 0
	case 'F': // End
		e.pos = len(e.buf)
	case '3': // Delete key: \x1b[3~
		e.readByte() // consume '~'
		if e.pos == len(e.buf) {
			return false, nil
		}
		_, size := utf8.DecodeRune(e.buf[e.pos:])
		copy(e.buf[e.pos:], e.buf[e.pos+size:])
		e.buf = e.buf[:len(e.buf)-size]
	case '1': // Home: \x1b[1~
		e.readByte()
		e.pos = 0
	case '4': // End: \x1b[4~
		e.readByte()
		e.pos = len(e.buf)
	default:
		return false, nil
	}
	return true, nil
}

// insert puts ch at the cursor.
func (e *Editor) insert(ch []byte) {
	e.buf = append(e.buf, make([]byte, len(ch))...)
	copy(e.buf[e.pos+len(ch):], e.buf[e.pos:len(e.buf)-len(ch)])
	copy(e.buf[e.pos:], ch)
	e.pos += len(ch)
}

// accept inserts the hint at the cursor. Every hint line but the last is
// committed.
func (e *Editor) accept() {
	parts := strings.Split(e.hint, "\n")
	e.hint = ""
	if len(parts) == 1 {
		e.insert([]byte(parts[0]))
		return
	}

	tail := string(e.buf[e.pos:])
	parts[0] = string(e.buf[:e.pos]) + parts[0]
	for _, line := range parts[:len(parts)-1] {
		fmt.Fprintf(e.out, "\r\x1b[K%s%s\r\n", e.prompt(len(e.lines)), line)
		e.lines = append(e.lines, line)
	}
	last := parts[len(parts)-1]
	e.buf = []byte(last + tail)
	e.pos = len(last)
}

func (e *Editor) prompt(line int) string {
	return fmt.Sprintf("\x1b[2m%3d\x1b[0m  ", line+1)
}

// redraw clears the current line and redraws prompt, buffer and ghost text
// with the cursor in place. Called with e.mu held.
func (e *Editor) redraw() {
	ghost, _, more := strings.Cut(e.hint, "\n")
	if more {
		ghost += " ↵"
	}

	// \r = carriage return, \x1b[K = clear to end of line
	fmt.Fprintf(e.out, "\r\x1b[K%s%s", e.prompt(len(e.lines)), e.buf[:e.pos])
	if ghost != "" {
		fmt.Fprintf(e.out, "\x1b[2m%s\x1b[0m", ghost)
	}
	e.out.Write(e.buf[e.pos:])

	// Move cursor back to the correct position
	tailLen := utf8.RuneCountInString(ghost) + utf8.RuneCount(e.buf[e.pos:])
	if tailLen > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", tailLen)
	}
}

// prevRune returns the rune and byte size of the rune before pos.
func prevRune(buf []byte, pos int) (rune, int) {
	if pos <= 0 {
		return 0, 0
	}
	// Walk back to find the start of the rune
	i := pos - 1
	for i > 0 && !utf8.RuneStart(buf[i]) {
		i--
	}
	r, size := utf8.DecodeRune(buf[i:pos])
	return r, size
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	if lead < 0xC0 {
		return 1
	}
	if lead < 0xE0 {
		return 2
	}
	if lead < 0xF0 {
		return 3
	}
	return 4
}

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = fmt.Errorf("interrupted")
