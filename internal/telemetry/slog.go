package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the global slog logger from the logging section of the
// service config. Everything downstream (request logging, the economy
// services, the stats job) logs through slog.Default, so this runs before
// anything else in cmd/server.
//
// format "json" selects the JSON handler for log aggregation; anything else
// falls back to the text handler for local runs. Levels are "debug", "info",
// "warn"/"warning", "error" (case-insensitive), defaulting to info.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, format, level)))
	slog.Info("logger initialised", "format", format, "level", parseLogLevel(level).String())
}

// newLogHandler builds the slog handler SetupLogger installs. Source
// locations are attached only at debug level; they are noise in production
// and cost a runtime.Caller per record.
func newLogHandler(w io.Writer, format, level string) slog.Handler {
	lvl := parseLogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
