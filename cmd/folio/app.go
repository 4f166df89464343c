package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/eringen/folio"
	"github.com/eringen/folio/internal/logging"
)

// openApp builds a fully wired App without starting the HTTP server. The
// one-shot commands log to stderr so their stdout stays machine readable.
func openApp() (*folio.App, error) {
	cfg, err := folio.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel)}))
	app := folio.New(cfg, folio.WithLogger(logger))
	if err := app.Setup(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
