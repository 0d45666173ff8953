// Command fimlet-repl is an interactive tester for fimlet completions.
// It is a small raw-mode editor: every edit triggers the completion
// coordinator, the completion appears as dim ghost text at the cursor, Tab
// accepts it and Enter commits the line. Each delivered completion is
// written to stdout as a TOML [[event]] table.
//
// Usage:
//
//	./fimlet-repl               # interactive, TOML on screen
//	./fimlet-repl > log.toml    # editor on screen, TOML to file
//	./fimlet-repl -l bash       # shell document, secrets redacted in prompts
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/Paranoid-AF/fimlet/backend"
	"github.com/Paranoid-AF/fimlet/buffer"
	"github.com/Paranoid-AF/fimlet/generate"
)

func main() {
	language := flag.StringP("language", "l", "go", "language identifier of the edited document")
	verbose := flag.BoolP("verbose", "v", false, "log prompts and responses to stderr")
	flag.Parse()

	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()

	// Backend failures are shown as notices; the log is for debugging only.
	var handler slog.Handler = slog.DiscardHandler
	if *verbose {
		handler = slog.NewTextHandler(termWriter(os.Stderr), &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))

	engine := generate.NewEngine()
	defer engine.Close()

	session := uuid.NewString()
	coord := engine.Coordinator(session)
	cfg := engine.Config()

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "fimlet repl\r\n")
	fmt.Fprintf(tty, "model: %s  multiline: %v  language: %s\r\n", cfg.Generation.Model, cfg.Completion.Multiline, *language)
	fmt.Fprintf(tty, "\r\nkeys:\r\n")
	fmt.Fprintf(tty, "  Tab     accept completion\r\n")
	fmt.Fprintf(tty, "  Enter   commit line\r\n")
	fmt.Fprintf(tty, "  Ctrl-D  exit on an empty line\r\n\r\n")

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	r := &repl{
		editor:  editor,
		coord:   coord,
		log:     newEventLog(termWriter(os.Stdout)),
		session: session,
		baseURL: fimlet.ResolveGenerationBaseURL(cfg),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = editor.Run(func(doc *buffer.Snapshot, version int) {
		go r.complete(ctx, doc.WithLanguage(*language), version)
	})
	if err != nil && err != io.EOF && err != ErrInterrupt {
		fmt.Fprintf(tty, "read error: %v\r\n", err)
	}
}

// repl connects the editor to one coordinator session.
type repl struct {
	editor  *Editor
	coord   *generate.Coordinator
	log     *eventLog
	session string
	baseURL string
}

// complete runs one trigger, shows the completion as a hint and logs the
// outcome. Superseded triggers are dropped silently.
func (r *repl) complete(ctx context.Context, doc *buffer.Snapshot, version int) {
	start := time.Now()
	c, err := r.coord.Trigger(ctx, doc)
	if errors.Is(err, generate.ErrSuperseded) || ctx.Err() != nil {
		return
	}

	pos := doc.CursorPosition()
	ev := event{
		Timestamp:  time.Now(),
		Session:    r.session,
		Version:    version,
		Line:       pos.Line,
		Character:  pos.Character,
		LinePrefix: doc.TextInRange(buffer.Position{Line: pos.Line}, pos),
		ElapsedMs:  time.Since(start).Milliseconds(),
	}

	switch {
	case err != nil:
		ev.Error = &errorEvent{Kind: string(backend.KindOf(err)), Message: err.Error()}
		r.editor.Notice(backend.UserMessage(err, r.baseURL))
	case c != nil:
		ev.Completion = &completionEvent{Text: c.Text, Source: c.Source}
		ev.Shown = c.Text != "" && r.editor.SetHint(version, c.Text)
	}

	if err := r.log.write(ev); err != nil {
		slog.Warn("failed to write event", "error", err)
	}
}
