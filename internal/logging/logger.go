package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/wire"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
)

// LogLevelEnv overrides the log level; --debug always wins
const LogLevelEnv = "TREB_STATE_LOG_LEVEL"

var LoggingSet = wire.NewSet(
	NewLogger,
)

// NewLogger creates a new logger based on runtime configuration
func NewLogger(cfg *config.RuntimeConfig) *slog.Logger {
	return newLogger(os.Stderr, cfg.Debug, os.Getenv(LogLevelEnv))
}

func newLogger(w io.Writer, debug bool, levelEnv string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelEnv),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Timestamps only in debug mode
			if a.Key == slog.TimeKey && !debug && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					source.File = shortPath(source.File)
				}
			}
			return a
		},
	}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to warn so
// routine store activity stays out of command output
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// shortPath trims source paths to be relative to the module root
func shortPath(file string) string {
	const marker = "treb-state/"
	if idx := strings.LastIndex(file, marker); idx != -1 {
		return file[idx+len(marker):]
	}
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		return file[idx+1:]
	}
	return file
}
