// Package logging builds the slog loggers used by burrow's binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New returns a logger writing to stderr. verbose enables Debug level,
// which is where per-connection errors are logged. format is "text" or
// "json".
func New(verbose bool, format string) (*slog.Logger, error) {
	return NewWriter(os.Stderr, verbose, format)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	switch format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(h), nil
}
