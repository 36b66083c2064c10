package requestctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), " user-42 ")
	if got := UserID(ctx); got != "user-42" {
		t.Fatalf("UserID = %q, want %q", got, "user-42")
	}
}

func TestUserIDOrPrefersExplicit(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserIDOr(ctx, "user-7"); got != "user-7" {
		t.Fatalf("UserIDOr = %q, want explicit", got)
	}
	if got := UserIDOr(ctx, "  "); got != "user-42" {
		t.Fatalf("UserIDOr = %q, want context user", got)
	}
	if got := UserIDOr(context.Background(), ""); got != "" {
		t.Fatalf("UserIDOr = %q, want empty", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("RequestID = %q, want req-1", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("RequestID = %q, want empty", got)
	}
}

func TestNilContext(t *testing.T) {
	if got := UserID(nil); got != "" {
		t.Fatalf("UserID(nil) = %q", got)
	}
	ctx := WithRequestID(nil, "req-2")
	if got := RequestID(ctx); got != "req-2" {
		t.Fatalf("RequestID = %q, want req-2", got)
	}
}
