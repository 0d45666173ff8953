// Package generate turns editor triggers into fill-in-the-middle completions.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	fimlet "github.com/Paranoid-AF/fimlet"
	"github.com/Paranoid-AF/fimlet/backend"
	"github.com/Paranoid-AF/fimlet/buffer"
	"github.com/Paranoid-AF/fimlet/prompt"
)

// DefaultSessionID is used for requests that carry no session id.
const DefaultSessionID = "default"

// Engine owns one Coordinator per editor session. Idle sessions expire
// after the configured TTL, taking their speculative cache with them.
type Engine struct {
	config   *fimlet.Config
	backend  Backend
	baseURL  string
	opts     Options
	sessions *ttlcache.Cache[string, *Coordinator]
}

// NewEngine creates an engine from the user's configuration.
func NewEngine() *Engine {
	cfg, err := fimlet.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = fimlet.DefaultConfig()
	}
	for _, w := range fimlet.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	return NewEngineWithConfig(cfg, nil)
}

// NewEngineWithConfig creates an engine for cfg. When b is nil an HTTP
// backend is built from cfg.
func NewEngineWithConfig(cfg *fimlet.Config, b Backend) *Engine {
	baseURL := fimlet.ResolveGenerationBaseURL(cfg)
	if b == nil {
		b = backend.NewClient(backend.Options{
			BaseURL:           baseURL,
			APIKey:            fimlet.ResolveGenerationAPIKey(cfg),
			APIType:           cfg.Generation.APIType,
			Temperature:       cfg.Generation.Temperature,
			Seed:              cfg.Generation.Seed,
			Timeout:           time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Generation.RequestsPerSecond,
		})
	}

	sessions := ttlcache.New[string, *Coordinator](
		ttlcache.WithTTL[string, *Coordinator](cfg.SessionTTL()),
	)
	sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Coordinator]) {
		if reason == ttlcache.EvictionReasonExpired {
			slog.Debug("session expired", "session", item.Key())
		}
	})
	go sessions.Start()

	return &Engine{
		config:  cfg,
		backend: b,
		baseURL: baseURL,
		opts: Options{
			Debounce:  cfg.Debounce(),
			Multiline: cfg.Completion.Multiline,
			Window: prompt.Window{
				MaxLinesAbove: cfg.Completion.MaxLinesAbove,
				MaxLinesBelow: cfg.Completion.MaxLinesBelow,
				Template:      fimlet.ResolvePromptTemplate(cfg),
			},
			MaxTokens:   cfg.Generation.MaxTokens,
			Model:       fimlet.ResolveGenerationModel(cfg),
			RedactShell: fimlet.ShellRedactionEnabled(cfg),
		},
		sessions: sessions,
	}
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *fimlet.Config {
	return e.config
}

// Close stops session expiry.
func (e *Engine) Close() {
	e.sessions.Stop()
}

// Coordinator returns the coordinator for a session, creating it on first use.
func (e *Engine) Coordinator(sessionID string) *Coordinator {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	item, _ := e.sessions.GetOrSetFunc(sessionID, func() *Coordinator {
		slog.Debug("session started", "session", sessionID)
		return NewCoordinator(e.opts, e.backend, LogReporter{BaseURL: e.baseURL})
	})
	return item.Value()
}

// EndSession drops a session's coordinator and cache. Dropping an unknown
// session is not an error.
func (e *Engine) EndSession(sessionID string) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	e.sessions.Delete(sessionID)
}

// Sessions reports the number of live sessions.
func (e *Engine) Sessions() int {
	return e.sessions.Len()
}

// Complete processes a completion request. It returns nil when a newer
// request for the same session superseded this one or ctx was cancelled;
// nothing should be sent back in that case.
func (e *Engine) Complete(ctx context.Context, req *fimlet.Request) *fimlet.Response {
	if req.Line < 0 || req.Character < 0 {
		return &fimlet.Response{
			RequestID:   req.RequestID,
			Completions: []fimlet.Completion{},
			Error: &fimlet.Error{
				Code:    fimlet.CodeInvalidRequest,
				Message: "line and character must not be negative",
			},
		}
	}

	doc := buffer.NewSnapshot(req.Text,
		buffer.Position{Line: req.Line, Character: req.Character},
		buffer.ParseEncoding(req.PositionEncoding),
	).WithLanguage(req.Language)

	c, err := e.Coordinator(req.SessionID).Trigger(ctx, doc)
	switch {
	case errors.Is(err, ErrSuperseded), ctx.Err() != nil:
		slog.Debug("request dropped", "session", req.SessionID, "request_id", req.RequestID, "error", err)
		return nil
	case err != nil:
		return &fimlet.Response{
			RequestID:   req.RequestID,
			Completions: []fimlet.Completion{},
			Error: &fimlet.Error{
				Code:    string(backend.KindOf(err)),
				Message: backend.UserMessage(err, e.baseURL),
			},
		}
	}

	resp := &fimlet.Response{RequestID: req.RequestID, Completions: []fimlet.Completion{}}
	if c != nil && c.Text != "" {
		resp.Completions = append(resp.Completions, fimlet.Completion{Text: c.Text, Source: c.Source})
	}
	return resp
}
