package testing

import (
	"io"
	"testing"

	"denticheck-server/internal/platform/config"
	"denticheck-server/internal/platform/logging"
)

// SetupTestConfig returns the default configuration with logs and temp files
// pointed at per-test directories.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = t.TempDir()
	cfg.Log.File = "test.log"
	cfg.Acquisition.TempDir = t.TempDir()
	cfg.Journal.SQLite.DSN = ""
	cfg.Observability.Enabled = false
	return cfg
}

// SetupTestLogger returns a logger that writes its file under t.TempDir and
// discards console output.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.NewWithConsole(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	}, io.Discard)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}
