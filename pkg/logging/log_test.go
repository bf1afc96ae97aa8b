package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogBackendWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "tablesrv.log")
	lb, err := NewLogBackend(LogConfig{
		LogFile:     logFile,
		DebugLevel:  "debug",
		MaxLogFiles: 2,
	})
	require.NoError(t, err)

	log := lb.Logger("TEST")
	log.Infof("hello from the backend")
	require.NoError(t, lb.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the backend")
	assert.Contains(t, string(data), "TEST")
}

func TestDebugLevelSpec(t *testing.T) {
	lb, err := NewLogBackend(LogConfig{DebugLevel: "TABL=debug,SRVR=warn"})
	require.NoError(t, err)
	defer lb.Close()

	assert.Equal(t, slog.LevelDebug, lb.Logger("TABL").Level())
	assert.Equal(t, slog.LevelWarn, lb.Logger("SRVR").Level())
	// Unlisted subsystems fall back to info.
	assert.Equal(t, slog.LevelInfo, lb.Logger("OTHR").Level())
}

func TestDebugLevelInvalid(t *testing.T) {
	_, err := NewLogBackend(LogConfig{DebugLevel: "nonsense"})
	require.Error(t, err)

	_, err = NewLogBackend(LogConfig{DebugLevel: "TABL=nonsense"})
	require.Error(t, err)
}

func TestZeroValueBackend(t *testing.T) {
	var lb LogBackend
	log := lb.Logger("ZERO")
	assert.Equal(t, slog.LevelInfo, log.Level())
	log.Infof("zero value logs fine")
	require.NoError(t, lb.Close())
}

func TestLoggerReuse(t *testing.T) {
	lb, err := NewLogBackend(LogConfig{DebugLevel: "info"})
	require.NoError(t, err)
	defer lb.Close()

	first := lb.Logger("SAME")
	second := lb.Logger("SAME")
	first.SetLevel(slog.LevelTrace)
	assert.Equal(t, slog.LevelTrace, second.Level())
}
