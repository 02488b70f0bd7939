package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/envio-core/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "envio"

// Logger is the slog logger shared by every Envío component. It satisfies
// the small Logger interfaces that packages such as item declare.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml, writing to
// stdout unless output is "stderr".
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter builds a Logger that writes to w. Level and format still
// come from cfg; tests use it with a buffer or io.Discard.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	handler := handlerFor(cfg.Format, w, opts).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// handlerFor returns a text handler for "text" and JSON for anything else.
func handlerFor(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, warn/warning and error; anything else is info.
func parseLevel(level string) slog.Level {
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

// With returns a child Logger that adds args to every entry.
//
//	storeLog := logger.With("component", "item_store")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before config.yaml has been read: JSON on
// stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
