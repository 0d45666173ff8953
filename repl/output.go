package main

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// event is one delivered completion or failure.
type event struct {
	Timestamp time.Time `toml:"timestamp"`
	Session   string    `toml:"session"`
	Version   int       `toml:"version"`
	Line      int       `toml:"line"`
	Character int       `toml:"character"`
	// LinePrefix is the current line up to the cursor.
	LinePrefix string `toml:"line_prefix"`
	ElapsedMs  int64  `toml:"elapsed_ms"`
	Shown      bool   `toml:"shown"`

	Completion *completionEvent `toml:"completion,omitempty"`
	Error      *errorEvent      `toml:"error,omitempty"`
}

type completionEvent struct {
	Text   string `toml:"text"`
	Source string `toml:"source"`
}

type errorEvent struct {
	Kind    string `toml:"kind"`
	Message string `toml:"message"`
}

// eventLog appends events to w as [[event]] tables, so the whole stream is
// one valid TOML document.
type eventLog struct {
	mu sync.Mutex
	w  io.Writer
}

func newEventLog(w io.Writer) *eventLog {
	return &eventLog{w: w}
}

func (l *eventLog) write(ev event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(struct {
		Event []event `toml:"event"`
	}{[]event{ev}}); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := l.w.Write(buf.Bytes())
	return err
}
