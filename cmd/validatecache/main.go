package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/jacoelho/validatecache"
	"github.com/jacoelho/validatecache/engine"
	"github.com/jacoelho/validatecache/errors"
	"github.com/jacoelho/validatecache/internal/cachestore"
	"github.com/jacoelho/validatecache/internal/config"
	"github.com/jacoelho/validatecache/internal/history"
	"github.com/jacoelho/validatecache/internal/libxml"
	"github.com/jacoelho/validatecache/internal/observability"
	"github.com/jacoelho/validatecache/internal/schemaloc"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 255
)

func main() {
	code := run()
	libxml.Cleanup()
	os.Exit(code)
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	return runWithEngine(args, stdout, stderr, newLibxmlEngine)
}

func newLibxmlEngine(cfg *config.Config, logger *slog.Logger) engine.Engine {
	opts := []libxml.Option{
		libxml.WithLogger(logger),
		libxml.WithResolver(schemaloc.DefaultResolver{
			HTTPClient: &http.Client{Timeout: cfg.Schema.HTTPTimeout},
		}),
	}
	if cfg.Cache.HugeDocuments {
		opts = append(opts, libxml.WithHugeDocuments())
	}
	return libxml.New(opts...)
}

// runWithEngine runs one validation with the engine built by newEngine.
// Argument errors are reported before any file is touched.
func runWithEngine(args []string, stdout, stderr io.Writer, newEngine func(*config.Config, *slog.Logger) engine.Engine) int {
	runCfg, err := validatecache.ResolveArgs(args)
	if err != nil {
		return usage(stderr, err)
	}

	cfg, applied, err := config.LoadFromEnv()
	if err != nil {
		_ = writef(stderr, "error: %v\n", err)
		return exitFail
	}
	logger, err := observability.NewLogger(stderr, cfg.Log)
	if err != nil {
		_ = writef(stderr, "error: %v\n", err)
		return exitFail
	}
	if len(applied) > 0 {
		logger.Debug("environment overrides applied", "keys", applied)
	}

	mode, err := cfg.Cache.Mode()
	if err != nil {
		_ = writef(stderr, "error: %v\n", err)
		return exitFail
	}

	opts := []validatecache.Option{
		validatecache.WithOutput(stdout, stderr),
		validatecache.WithLogger(logger),
		validatecache.WithCacheStore(cachestore.New(cachestore.WithFileMode(mode))),
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Textfile != "" {
		metrics = observability.NewMetrics()
		opts = append(opts, validatecache.WithObservers(metrics))
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, cfg.History.BusyTimeout)
		if err != nil {
			logger.Warn("history disabled", "error", errors.Wrap(err, errors.CodeHistory, "open history", cfg.History.Path))
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("close history", "path", store.Path(), "error", err)
				}
			}()
			opts = append(opts, validatecache.WithObservers(history.NewRecorder(store)))
		}
	}

	orch := validatecache.New(newEngine(cfg, logger), opts...)
	outcome := orch.Run(runCfg)

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if !outcome.ValidationPassed {
		return exitFail
	}
	return exitOK
}

func usage(stderr io.Writer, err error) int {
	_ = writef(stderr, "error: %s\n", errors.Message(err))
	_ = writef(stderr, "%s\n", validatecache.Usage)
	return exitUsage
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
