// Package logging provides component loggers with file rotation for the
// implementation store. The library packages and the CLI share it.
//
// Basic usage:
//
//	cfg := logging.Config{
//	    Level: "info",
//	    Path:  logging.DefaultLogPath(),
//	}
//	if err := logging.Init(cfg); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Close()
//
//	logger := logging.Get("store")
//	logger.Info("entry committed", "id", id)
//
// Loggers obtained before Init are valid and start writing once Init runs.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a charm log level.
type Level = log.Level

// Log levels from least to most severe.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level name. The empty string means info and
// "warning" is accepted for warn.
func ParseLevel(s string) (Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(s)); name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	case "debug", "info", "warn", "error":
		return log.ParseLevel(name)
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation bounds the log file and its backups.
	Rotation RotationConfig

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Console overrides the console destination. Nil means os.Stderr.
	Console io.Writer
}

// sink is one Init's worth of configuration plus the charm loggers built
// from it, one pair per component.
type sink struct {
	writer       *RotatingWriter
	level        Level
	components   map[string]Level
	console      io.Writer
	consoleLevel Level

	backends sync.Map // component -> *backend
}

type backend struct {
	file    *log.Logger
	console *log.Logger
}

func (s *sink) backend(component string) *backend {
	if b, ok := s.backends.Load(component); ok {
		return b.(*backend)
	}

	level, ok := s.components[component]
	if !ok {
		level = s.level
	}
	b := &backend{
		file: log.NewWithOptions(s.writer, log.Options{
			Level:           level,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if s.console != nil {
		b.console = log.NewWithOptions(s.console, log.Options{
			Level:           s.consoleLevel,
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	actual, _ := s.backends.LoadOrStore(component, b)
	return actual.(*backend)
}

var (
	current atomic.Pointer[sink]
	// initMu serialises Init and Close; logging itself never takes it.
	initMu  sync.Mutex
	loggers sync.Map // component -> *Logger
)

// Logger is a component logger. It looks up the active configuration on
// every call, so a package-level logger created before Init follows later
// reconfiguration.
type Logger struct {
	component string
	fields    []interface{}
}

// Get returns the logger for component. Repeated calls return the same
// logger.
func Get(component string) *Logger {
	l, _ := loggers.LoadOrStore(component, &Logger{component: component})
	return l.(*Logger)
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

// With returns a logger that adds args to every message.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(append(fields, l.fields...), args...)
	return &Logger{component: l.component, fields: fields}
}

func (l *Logger) log(level Level, msg string, args []interface{}) {
	s := current.Load()
	if s == nil {
		return
	}
	if len(l.fields) > 0 {
		args = append(append([]interface{}{}, l.fields...), args...)
	}
	b := s.backend(l.component)
	b.file.Log(level, msg, args...)
	if b.console != nil {
		b.console.Log(level, msg, args...)
	}
}

// Init installs cfg, replacing and closing any earlier configuration.
// Nothing changes when cfg is invalid.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	s := &sink{level: level, components: make(map[string]Level, len(cfg.Components))}
	for comp, name := range cfg.Components {
		if s.components[comp], err = ParseLevel(name); err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
	}
	if cfg.ConsoleLevel != "" {
		if s.consoleLevel, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		s.console = cfg.Console
		if s.console == nil {
			s.console = os.Stderr
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	if s.writer, err = NewRotatingWriter(path, cfg.Rotation); err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	initMu.Lock()
	defer initMu.Unlock()
	if old := current.Swap(s); old != nil {
		if err := old.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the log file. Loggers go silent until the next
// Init. Closing when not initialised is a no-op.
func Close() error {
	initMu.Lock()
	defer initMu.Unlock()
	return closeCurrent()
}

func closeCurrent() error {
	s := current.Swap(nil)
	if s == nil {
		return nil
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/implstore/implstore.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "implstore", "implstore.log")
}

// DefaultConfig returns the logging setup used without a config file.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
