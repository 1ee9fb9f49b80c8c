// Package observability builds the logger and metrics of the validatecache
// command. Neither ever writes to stdout, which carries only the OK marker.
package observability

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jacoelho/validatecache/internal/config"
)

// NewLogger returns a slog logger writing to w in the given format.
func NewLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
