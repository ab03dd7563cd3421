package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "perimeter"

// Logger wraps slog.Logger with Perimeter-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination (stdout or stderr)
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	bridgeLog := logger.With("component", "vendor")
//	bridgeLog.Info("subscribed") // Includes component=vendor
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a default logger for use before configuration is loaded.
// It outputs JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
