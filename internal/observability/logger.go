package observability

import (
	"context"
	"io"
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/gfs-grid-etl/internal/config"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and sets
// it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// NewLoggerTo is NewLogger writing to w. Level and format are resolved by the
// shared logger so LOG_LEVEL and LOG_FORMAT mean the same thing on every path.
func NewLoggerTo(w io.Writer, cfg *config.Config) *slog.Logger {
	ref := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).Handler()
	opts := &slog.HandlerOptions{Level: lowestEnabled(ref)}

	var logger *slog.Logger
	if _, ok := ref.(*slog.TextHandler); ok {
		logger = slog.New(slog.NewTextHandler(w, opts))
	} else {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	}
	slog.SetDefault(logger)
	return logger
}

func lowestEnabled(h slog.Handler) slog.Level {
	for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if h.Enabled(context.Background(), lvl) {
			return lvl
		}
	}
	return slog.LevelError
}
