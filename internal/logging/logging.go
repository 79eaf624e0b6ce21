// Package logging builds instance-scoped slog loggers from a YAML logging
// configuration. Each classifier instance owns its logger and log files;
// nothing is installed process-wide.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// infoHandlerKey and errorHandlerKey are the two handler entries a logging
// config must define; their filenames are overwritten with per-component
// paths under the logging root at startup.
const (
	infoHandlerKey  = "info_file_handler"
	errorHandlerKey = "error_file_handler"
)

// Config mirrors the YAML logging configuration file.
type Config struct {
	Level    string                   `yaml:"level"`
	Handlers map[string]HandlerConfig `yaml:"handlers"`
}

// HandlerConfig describes one output handler.
type HandlerConfig struct {
	Level    string `yaml:"level"`
	Filename string `yaml:"filename"`
	Format   string `yaml:"format"` // "json" (default) or "text"
}

// Logger is an instance-scoped slog.Logger plus the file handles backing it.
type Logger struct {
	*slog.Logger
	files []*os.File
}

// Close releases the logger's file handles.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

// New creates the log directory rootDir/component, loads the YAML config at
// configPath, rewrites the info/error file handler filenames to live under
// that directory, and returns a logger fanning out to every configured
// handler. A missing config file degrades to a basic stderr logger with a
// warning rather than failing.
func New(configPath, rootDir, component string) (*Logger, error) {
	dir := filepath.Join(rootDir, component)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create %s: %w", dir, err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("logging: read %s: %w", configPath, err)
		}
		l := &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))}
		l.Warn("logging config file does not exist; using basic logging", "path", configPath)
		return l, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("logging: parse %s: %w", configPath, err)
	}
	if cfg.Handlers == nil {
		cfg.Handlers = map[string]HandlerConfig{}
	}
	for key, name := range map[string]string{infoHandlerKey: "info.log", errorHandlerKey: "error.log"} {
		h, ok := cfg.Handlers[key]
		if !ok {
			return nil, fmt.Errorf("logging: config %s does not define handlers.%s", configPath, key)
		}
		h.Filename = filepath.Join(dir, name)
		cfg.Handlers[key] = h
	}

	l := &Logger{}
	var handlers []slog.Handler
	for name, h := range cfg.Handlers {
		built, f, err := buildHandler(name, h, cfg.Level)
		if err != nil {
			l.Close()
			return nil, err
		}
		if built == nil {
			continue
		}
		handlers = append(handlers, built)
		if f != nil {
			l.files = append(l.files, f)
		}
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))
	}
	l.Logger = slog.New(newMultiHandler(handlers...)).With("component", component)
	return l, nil
}

// buildHandler turns one config entry into a slog handler. The error handler
// defaults to error level even when no level is given; everything else
// defaults to the top-level config level.
func buildHandler(name string, h HandlerConfig, defaultLevel string) (slog.Handler, *os.File, error) {
	level := h.Level
	if level == "" {
		if name == errorHandlerKey {
			level = "error"
		} else {
			level = defaultLevel
		}
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if h.Filename == "" {
		if name == "console" {
			return slog.NewTextHandler(os.Stderr, opts), nil, nil
		}
		// A handler with neither a filename nor a known role is skipped.
		return nil, nil, nil
	}

	f, err := os.OpenFile(h.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", h.Filename, err)
	}
	if h.Format == "text" {
		return slog.NewTextHandler(f, opts), f, nil
	}
	return slog.NewJSONHandler(f, opts), f, nil
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to
// slog.Level. Unknown or empty strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Discard returns a logger that drops everything; the default for library
// callers that did not configure logging.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
