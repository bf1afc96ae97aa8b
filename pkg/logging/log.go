// Package logging builds per-subsystem slog loggers over a shared
// backend, echoing to stdout and optionally to a rotated log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig configures a LogBackend.
type LogConfig struct {
	// LogFile is the rotated log file path. Empty logs to stdout only.
	LogFile string

	// DebugLevel is either a single level name applied to every
	// subsystem ("info", "debug", ...) or a comma-separated
	// subsystem=level spec such as "TABL=debug,SRVR=warn".
	DebugLevel string

	// MaxLogFiles bounds how many rotated files are kept. Zero keeps
	// them all.
	MaxLogFiles int
}

// LogBackend hands out subsystem loggers sharing one output. The zero
// value is usable and logs to stdout at the info level.
type LogBackend struct {
	mu           sync.Mutex
	backend      *slog.Backend
	rotator      *rotator.Rotator
	defaultLevel slog.Level
	levels       map[string]slog.Level
	loggers      map[string]slog.Logger
}

// NewLogBackend creates a LogBackend from cfg, creating the log file's
// directory if needed.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	defaultLevel, levels, err := parseDebugLevel(cfg.DebugLevel)
	if err != nil {
		return nil, err
	}

	lb := &LogBackend{
		defaultLevel: defaultLevel,
		levels:       levels,
		loggers:      make(map[string]slog.Logger),
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		r, err := rotator.New(cfg.LogFile, 1024, false, cfg.MaxLogFiles)
		if err != nil {
			return nil, fmt.Errorf("create log rotator: %w", err)
		}
		lb.rotator = r
	}

	lb.backend = slog.NewBackend(&logWriter{lb: lb})
	return lb, nil
}

// Logger returns the logger for a subsystem tag, creating it at the
// configured level on first use. Loggers stay valid after Close; their
// output simply stops reaching the rotated file.
func (lb *LogBackend) Logger(tag string) slog.Logger {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.loggers == nil {
		lb.loggers = make(map[string]slog.Logger)
	}
	if logger, ok := lb.loggers[tag]; ok {
		return logger
	}
	if lb.backend == nil {
		lb.backend = slog.NewBackend(&logWriter{lb: lb})
		lb.defaultLevel = slog.LevelInfo
	}

	logger := lb.backend.Logger(tag)
	level := lb.defaultLevel
	if l, ok := lb.levels[tag]; ok {
		level = l
	}
	logger.SetLevel(level)
	lb.loggers[tag] = logger
	return logger
}

// Close flushes and closes the rotated log file, if any.
func (lb *LogBackend) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.rotator == nil {
		return nil
	}
	err := lb.rotator.Close()
	lb.rotator = nil
	return err
}

// logWriter tees log output to stdout and the rotator. It rereads
// lb.rotator on every write so Close can detach the file.
type logWriter struct {
	lb *LogBackend
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	w.lb.mu.Lock()
	r := w.lb.rotator
	w.lb.mu.Unlock()
	if r != nil {
		return r.Write(p)
	}
	return len(p), nil
}

func parseDebugLevel(spec string) (slog.Level, map[string]slog.Level, error) {
	if spec == "" {
		return slog.LevelInfo, nil, nil
	}

	if !strings.Contains(spec, "=") {
		level, ok := slog.LevelFromString(spec)
		if !ok {
			return 0, nil, fmt.Errorf("invalid debug level %q", spec)
		}
		return level, nil, nil
	}

	levels := make(map[string]slog.Level)
	for _, pair := range strings.Split(spec, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return 0, nil, fmt.Errorf("invalid debug level pair %q", pair)
		}
		level, ok := slog.LevelFromString(fields[1])
		if !ok {
			return 0, nil, fmt.Errorf("invalid debug level %q in %q", fields[1], pair)
		}
		levels[fields[0]] = level
	}
	return slog.LevelInfo, levels, nil
}
