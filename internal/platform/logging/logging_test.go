package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected level error")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dataplane.log")
	logger, err := New(Config{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("cache swept")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"cache swept"`) {
		t.Fatalf("log output = %q, want message field", string(data))
	}
}

func TestOrNopHandlesNil(t *testing.T) {
	t.Parallel()

	if OrNop(nil) == nil {
		t.Fatal("expected a logger")
	}
}
