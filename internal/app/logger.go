package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production ships JSON lines; any
// other environment gets the text handler at debug level so local runs
// show repository-level detail.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	format := "text"
	if cfg != nil {
		format = cfg.LogFormat
		if !cfg.IsProduction() {
			opts.Level = slog.LevelDebug
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "tindahan"))
}
