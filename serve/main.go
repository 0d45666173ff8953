// Command fimletd is the fimlet daemon.
// It listens on a Unix domain socket for completion requests from editor
// clients, debounces them per session, and answers with fill-in-the-middle
// completions from the speculative cache or the model backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"

	fimlet "github.com/Paranoid-AF/fimlet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.BoolP("verbose", "v", false, "log every request, prompt and response to stderr")
	socket := flag.String("socket", "", "socket path (default $FIMLET_SOCKET, $XDG_RUNTIME_DIR/fimlet.sock)")
	flag.Parse()

	if *showVersion {
		fmt.Println("fimletd", Version)
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, socketPath(*socket)); err != nil {
		slog.Error("fimletd stopped", "error", err)
		os.Exit(1)
	}
}

// run serves sockPath until ctx is done. Sessions and their speculative
// caches live only as long as the daemon; nothing is persisted on shutdown.
func run(ctx context.Context, sockPath string) error {
	if err := os.MkdirAll(filepath.Dir(sockPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	srv, err := NewServer(sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	slog.Info("ready", "socket", sockPath, "config", fimlet.ConfigPath())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down, abandoning pending completions")
		srv.Close()
		if err := <-served; err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	case err := <-served:
		srv.Close()
		return fmt.Errorf("serve: %w", err)
	}
}

// socketPath picks the socket: flag, then $FIMLET_SOCKET, then the user's
// runtime dir, then a per-uid path in /tmp.
func socketPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("FIMLET_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "fimlet.sock")
	}
	return fmt.Sprintf("/tmp/fimlet-%d.sock", os.Getuid())
}
