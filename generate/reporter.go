package generate

import (
	"log/slog"

	"github.com/Paranoid-AF/fimlet/backend"
)

// LogReporter reports backend failures through slog with the message a user
// should see.
type LogReporter struct {
	// BaseURL is named in not-found and connection-error messages.
	BaseURL string
}

// Report logs err at error level.
func (r LogReporter) Report(err error) {
	slog.Error(backend.UserMessage(err, r.BaseURL), "kind", backend.KindOf(err), "error", err)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }
