package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	fimlet "github.com/Paranoid-AF/fimlet"
	defaults "github.com/Paranoid-AF/fimlet/default"
	"github.com/Paranoid-AF/fimlet/generate"
)

// Completer processes a completion request and returns a response. A nil
// response means the request was superseded and nothing is sent back.
type Completer interface {
	Complete(ctx context.Context, req *fimlet.Request) *fimlet.Response
	EndSession(sessionID string)
	Close()
}

// Server listens on a Unix domain socket for requests from editor clients.
type Server struct {
	listener net.Listener
	sockPath string
	ctx      context.Context
	cancel   context.CancelFunc

	// newEngine builds the completer used after a reload.
	newEngine func() Completer

	mu     sync.Mutex
	engine Completer
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	srv, err := NewServerWithCompleter(sockPath, generate.NewEngine())
	if err != nil {
		return nil, err
	}
	srv.newEngine = func() Completer { return generate.NewEngine() }
	return srv, nil
}

// NewServerWithCompleter creates a new IPC server with a custom Completer.
// A reload request keeps using completer.
func NewServerWithCompleter(sockPath string, completer Completer) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		listener: listener,
		sockPath: sockPath,
		ctx:      ctx,
		cancel:   cancel,
		engine:   completer,
	}, nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, abandons pending requests, closes the engine,
// and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	s.completer().Close()
	s.listener.Close()
	os.Remove(s.sockPath)
}

func (s *Server) completer() Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// envelope holds the fields that tell request kinds apart.
type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("failed to read request", "error", err)
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "data", string(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, fimlet.Response{
			Completions: []fimlet.Completion{},
			Error:       &fimlet.Error{Code: fimlet.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	switch {
	case env.Type == "end_session":
		var req fimlet.SessionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid session request", "error", err)
			writeJSON(conn, fimlet.SessionResponse{
				Error: &fimlet.Error{Code: fimlet.CodeInvalidRequest, Message: err.Error()},
			})
			return
		}
		s.handleSessionRequest(conn, &req)
		return
	case env.Type != "":
		writeJSON(conn, fimlet.SessionResponse{
			Error: &fimlet.Error{Code: fimlet.CodeInvalidRequest, Message: "unknown request type: " + env.Type},
		})
		return
	case env.Action != "":
		s.handleConfigRequest(conn, &fimlet.ConfigRequest{Action: env.Action})
		return
	}

	var req fimlet.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, fimlet.Response{
			Completions: []fimlet.Completion{},
			Error:       &fimlet.Error{Code: fimlet.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	resp := s.completer().Complete(s.ctx, &req)

	// Superseded or shutting down: the client has already moved on.
	if resp == nil {
		return
	}
	resp.RequestID = req.RequestID
	writeJSON(conn, resp)
}

// maxRequestBytes bounds one request line; requests carry whole documents.
const maxRequestBytes = 16 << 20

func (s *Server) handleSessionRequest(conn net.Conn, req *fimlet.SessionRequest) {
	resp := fimlet.SessionResponse{OK: true}
	if req.SessionID == "" {
		resp.OK = false
		resp.Error = &fimlet.Error{Code: fimlet.CodeInvalidRequest, Message: "session_id is required"}
	} else {
		s.completer().EndSession(req.SessionID)
		slog.Debug("session ended", "session", req.SessionID)
	}
	writeJSON(conn, resp)
}

func (s *Server) handleConfigRequest(conn net.Conn, req *fimlet.ConfigRequest) {
	var resp fimlet.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := fimlet.LoadConfig()
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    fimlet.CodeConfigError,
				Message: err.Error(),
			}
		} else {
			resp.Config = cfg
		}

	case "reload":
		// Respond immediately; pending requests finish on the old engine.
		go s.reloadEngine()
		cfg, _ := fimlet.LoadConfig()
		resp.Config = cfg

	case "defaults":
		resp.Config = fimlet.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := fimlet.LoadConfig()
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    fimlet.CodeConfigError,
				Message: err.Error(),
			}
		} else {
			resp.Warnings = fimlet.ValidateConfig(cfg)
		}

	default:
		resp.Error = &fimlet.Error{
			Code:    fimlet.CodeUnknownAction,
			Message: "unknown config action: " + req.Action,
		}
	}

	writeJSON(conn, resp)
}

func (s *Server) reloadEngine() {
	if s.newEngine == nil {
		slog.Debug("reload ignored, engine is fixed")
		return
	}
	next := s.newEngine()

	s.mu.Lock()
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	prev.Close()
	slog.Info("engine reloaded")
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
