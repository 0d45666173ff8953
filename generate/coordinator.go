package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/Paranoid-AF/fimlet/backend"
	"github.com/Paranoid-AF/fimlet/buffer"
	"github.com/Paranoid-AF/fimlet/prompt"
	"github.com/Paranoid-AF/fimlet/speculate"
)

// ErrSuperseded is returned by Trigger when a newer trigger replaced this
// one, either while it was waiting out the debounce interval or while its
// backend call was in flight.
var ErrSuperseded = errors.New("generate: trigger superseded by a newer one")

// Stop sequences sent to the backend.
const (
	stopSingleLine = "\n"
	stopMultiline  = "\n\n"
)

// Backend performs one text completion.
type Backend interface {
	Complete(ctx context.Context, req *backend.Request) (string, error)
}

// Reporter receives backend failures for display.
type Reporter interface {
	Report(err error)
}

// State is the coordinator's debounce/fetch state.
type State int

const (
	Idle State = iota
	Waiting
	Fetching
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Fetching:
		return "fetching"
	default:
		return "idle"
	}
}

// Options configures a Coordinator.
type Options struct {
	Debounce  time.Duration
	Multiline bool
	Window    prompt.Window
	MaxTokens int
	Model     string
	// RedactShell rewrites secrets in the prompt context of shell documents.
	RedactShell bool
}

// Completion is the insertable result of one trigger.
type Completion struct {
	Text   string
	Source string // fimlet.SourceCache or fimlet.SourceBackend
}

// Coordinator turns a stream of cursor triggers into completions: it
// debounces triggers, serves lines from its speculative cache when the user
// is typing through a previous prediction, and otherwise calls the backend.
//
// Coordinator is safe for concurrent use. Its cache is never exposed.
type Coordinator struct {
	opts     Options
	backend  Backend
	reporter Reporter

	mu         sync.Mutex
	cache      speculate.Cache
	pending    *trigger
	generation uint64
	inflight   int
}

// trigger is one armed debounce timer.
type trigger struct {
	timer      *time.Timer
	fired      chan struct{}
	superseded chan struct{}
}

// NewCoordinator creates a coordinator. reporter may be nil.
func NewCoordinator(opts Options, b Backend, reporter Reporter) *Coordinator {
	return &Coordinator{
		opts:     opts,
		backend:  b,
		reporter: reporter,
	}
}

// State reports whether a trigger is waiting out the debounce interval, a
// fetch is running, or neither.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pending != nil:
		return Waiting
	case c.inflight > 0:
		return Fetching
	default:
		return Idle
	}
}

// Trigger handles one cursor-affecting edit of doc. It blocks for the
// debounce interval, then returns the completion for the document state at
// that time. A nil Completion with a nil error means there is nothing to
// insert. Trigger returns ErrSuperseded when a newer trigger replaced it,
// and the backend error when the backend call failed.
func (c *Coordinator) Trigger(ctx context.Context, doc buffer.Document) (*Completion, error) {
	t := c.arm()

	select {
	case <-t.superseded:
		return nil, ErrSuperseded
	case <-t.fired:
	case <-ctx.Done():
		if c.withdraw(t) {
			return nil, ctx.Err()
		}
		// Lost the race with the timer; the fetch slot is already ours.
		select {
		case <-t.fired:
			c.finish()
			return nil, ctx.Err()
		case <-t.superseded:
			return nil, ErrSuperseded
		}
	}

	defer c.finish()
	return c.fetch(ctx, doc)
}

// arm replaces any waiting trigger with a new one.
func (c *Coordinator) arm() *trigger {
	t := &trigger{
		fired:      make(chan struct{}),
		superseded: make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.pending; prev != nil {
		prev.timer.Stop()
		close(prev.superseded)
	}
	c.pending = t
	t.timer = time.AfterFunc(c.opts.Debounce, func() { c.fire(t) })
	return t
}

// fire moves t from Waiting to Fetching unless it was superseded or
// withdrawn first.
func (c *Coordinator) fire(t *trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != t {
		return
	}
	c.pending = nil
	c.inflight++
	close(t.fired)
}

// withdraw removes t if it is still waiting and reports whether it did.
func (c *Coordinator) withdraw(t *trigger) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != t {
		return false
	}
	t.timer.Stop()
	c.pending = nil
	return true
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

// fetch runs the completion protocol for one settled trigger.
func (c *Coordinator) fetch(ctx context.Context, doc buffer.Document) (*Completion, error) {
	above, below := buffer.TextAround(doc)

	c.mu.Lock()
	c.generation++
	gen := c.generation
	line, hit := c.cache.Query(above)
	c.mu.Unlock()

	if hit {
		slog.Debug("speculative cache hit", "line", line)
		return &Completion{Text: line, Source: fimlet.SourceCache}, nil
	}

	// The cache is keyed by the unredacted text the user sees.
	base := above
	if c.opts.RedactShell && isShellDocument(doc) {
		above, below = prompt.RedactShellContext(above, below)
	}
	req := &backend.Request{
		Prompt:    prompt.Build(above, below, c.opts.Window),
		Stop:      stopSingleLine,
		MaxTokens: c.opts.MaxTokens,
		Model:     c.opts.Model,
	}
	if c.opts.Multiline {
		req.Stop = stopMultiline
	}
	slog.Debug("prompt", "generation", gen, "prompt", req.Prompt, "stop", req.Stop)

	text, err := c.backend.Complete(ctx, req)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		slog.Debug("discarding stale completion", "generation", gen, "latest", c.generation)
		return nil, ErrSuperseded
	}
	if err != nil && ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ctx.Err()
	}
	if err != nil {
		c.cache.Clear()
		c.mu.Unlock()
		if c.reporter != nil {
			c.reporter.Report(err)
		}
		return nil, err
	}
	text = buffer.NormalizeNewlines(text)
	slog.Debug("response", "generation", gen, "text", text)

	if c.opts.Multiline {
		c.mu.Unlock()
		return &Completion{Text: text, Source: fimlet.SourceBackend}, nil
	}
	first, _, more := strings.Cut(text, "\n")
	if more {
		c.cache.Store(base, text)
	}
	c.mu.Unlock()
	return &Completion{Text: first, Source: fimlet.SourceBackend}, nil
}

func isShellDocument(doc buffer.Document) bool {
	l, ok := doc.(buffer.LanguageIdentifier)
	return ok && prompt.IsShell(l.LanguageID())
}
