package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
)

// serviceName is the value of the "service" field on every entry.
const serviceName = "deckscan"

// Logger is the service-wide slog logger. Every entry carries the service
// name and build version.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds the logger described by the logging config section.
//
// Output "file" writes to cfg.File.Path, "both" to stdout and the file
// through a slog-multi fanout, "stderr" to stderr, anything else to
// stdout. Format "text" selects the text handler, anything else JSON.
//
// Returns:
//   - *Logger: call Close to release the log file
//   - error: the log file or its directory cannot be created
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	writers, file, err := sinks(cfg)
	if err != nil {
		return nil, err
	}
	l := newLogger(cfg, version, writers...)
	if file != nil {
		l.closer = file
	}
	return l, nil
}

func sinks(cfg config.LoggingConfig) ([]io.Writer, *os.File, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return []io.Writer{os.Stderr}, nil, nil
	case "file":
		f, err := openLogFile(cfg.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return []io.Writer{f}, f, nil
	case "both":
		f, err := openLogFile(cfg.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return []io.Writer{os.Stdout, f}, f, nil
	default:
		return []io.Writer{os.Stdout}, nil, nil
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// newLogger builds one handler per writer and fans out to all of them.
func newLogger(cfg config.LoggingConfig, version string, writers ...io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	text := strings.EqualFold(cfg.Format, "text")

	handlers := make([]slog.Handler, len(writers))
	for i, w := range writers {
		if text {
			handlers[i] = slog.NewTextHandler(w, opts)
		} else {
			handlers[i] = slog.NewJSONHandler(w, opts)
		}
	}
	handler := handlers[0]
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// parseLevel maps debug, warn (or warning) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry, e.g.
// logger.With("component", "motion").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close releases the log file, if any. Loggers derived with With share
// the file and must not be used afterwards.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the JSON info logger used until the configuration is loaded.
func Default() *Logger {
	return newLogger(config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, "dev", os.Stdout)
}
