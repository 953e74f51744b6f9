package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger builds the CLI logger: text on w, plus JSON lines appended to
// logFile when one is given. The returned close func releases the file.
func newLogger(w io.Writer, verbose bool, logFile string) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	text := slog.NewTextHandler(w, opts)
	if logFile == "" {
		return slog.New(text), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	// The file always gets Debug records; the terminal follows --verbose.
	jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(slogmulti.Fanout(text, jsonHandler)), f.Close, nil
}
