// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Options controls logger construction.
type Options struct {
	Debug bool
	Quiet bool
	// Info lowers the baseline from warn to info. Long-running commands
	// set it so request logs are kept.
	Info bool
	// JSON forces the JSON handler. When false the handler is picked from
	// the output: text on a terminal, JSON otherwise.
	JSON bool
}

// Level maps the CLI verbosity flags to a slog level.
func (o Options) Level() slog.Level {
	switch {
	case o.Debug:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelError
	case o.Info:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// New returns a logger writing to w.
func New(w io.Writer, o Options) *slog.Logger {
	opts := &slog.HandlerOptions{Level: o.Level(), AddSource: o.Debug}
	var h slog.Handler
	if !o.JSON && isTerminal(w) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// Setup builds a stderr logger and installs it as the slog default.
func Setup(o Options) *slog.Logger {
	l := New(os.Stderr, o)
	slog.SetDefault(l)
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
