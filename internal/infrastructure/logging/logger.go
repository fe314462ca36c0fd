package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "verabridge"

// Logger wraps slog.Logger with bridge-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	// file is the log file opened for a path Output, or nil.
	file *os.File
}

// New creates a Logger from the logging configuration.
//
// Output is "stdout", "stderr" or a file path. A path is opened for
// appending (parent directories are created) and entries go to both stdout
// and the file.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for the default field
//
// Returns:
//   - *Logger: Configured logger ready for use; call Close when done
//   - error: If the log file cannot be opened
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return NewWithWriter(cfg, version, os.Stdout), nil
	case "stderr":
		return NewWithWriter(cfg, version, os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := NewWithWriter(cfg, version, io.MultiWriter(os.Stdout, f))
	l.file = f
	return l, nil
}

// Close releases the log file, if any. Only the Logger returned by New owns
// the file; loggers derived with With keep writing to it until then.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
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

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Unrecognised values default to info.
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
//	pollLogger := logger.With("component", "poller")
//	pollLogger.Info("directory built") // Includes component=poller
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON at info level to stdout.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, "dev", os.Stdout)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
