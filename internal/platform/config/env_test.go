package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Timeout time.Duration `env:"TEST_TIMEOUT" envDefault:"30s"`
	Retries int           `env:"TEST_RETRIES" envDefault:"3"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Fatalf("expected default retries 3, got %d", cfg.Retries)
	}
}

func TestParseEnvUsesPrefix(t *testing.T) {
	t.Setenv("DATAPLANE_TEST_RETRIES", "5")

	cfg, err := Load[envTestConfig]()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retries != 5 {
		t.Fatalf("expected retries 5, got %d", cfg.Retries)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DATAPLANE_TEST_RETRIES", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadFromExplicitVars(t *testing.T) {
	cfg, err := LoadFrom[envTestConfig](map[string]string{"TEST_TIMEOUT": "250ms"})
	if err != nil {
		t.Fatalf("load from: %v", err)
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("expected timeout 250ms, got %v", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Fatalf("expected default retries 3, got %d", cfg.Retries)
	}
}
