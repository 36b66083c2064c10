package otel_test

import (
	"context"
	"testing"

	"github.com/louisbranch/dataplane/internal/platform/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Config{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), otel.Config{
		Enabled:  false,
		Endpoint: "http://localhost:4318",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Use a non-routable address so no actual export happens.
	shutdown, err := otel.Setup(context.Background(), otel.Config{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "test-service",
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Shutdown should flush cleanly even though the endpoint is unreachable.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupFromEnv_ReadsPrefixedVariables(t *testing.T) {
	t.Setenv("DATAPLANE_OTEL_ENDPOINT", "")
	t.Setenv("DATAPLANE_OTEL_ENABLED", "false")

	shutdown, err := otel.SetupFromEnv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupFromEnv_RejectsInvalidRatio(t *testing.T) {
	t.Setenv("DATAPLANE_OTEL_SAMPLE_RATIO", "lots")

	if _, err := otel.SetupFromEnv(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}
