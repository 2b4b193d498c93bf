package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

// Options selects level, console format and an optional JSON log file.
// Format is "text", "json" or "auto" (text on a terminal, JSON otherwise).
type Options struct {
	Level   string
	Format  string
	File    string
	Console io.Writer
}

// Setup builds the process logger. When File is set, records are fanned out
// to the console and to the file as JSON. The returned cleanup closes the file.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(opts.Level)}
	consoleHandler := newConsoleHandler(console, opts.Format, handlerOpts)

	noop := func() error { return nil }
	if opts.File == "" {
		return slog.New(consoleHandler), noop, nil
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(consoleHandler)
		return logger, noop, fmt.Errorf("open log file %s: %w", opts.File, err)
	}

	fileHandler := slog.NewJSONHandler(file, handlerOpts)
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), file.Close, nil
}

func newConsoleHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		if isTerminal(w) {
			return slog.NewTextHandler(w, opts)
		}
		return slog.NewJSONHandler(w, opts)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
