package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestFromStatusClassifiesRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{name: "bad request", status: http.StatusBadRequest, want: KindClient},
		{name: "not found", status: http.StatusNotFound, want: KindClient},
		{name: "conflict", status: http.StatusConflict, want: KindClient},
		{name: "too many requests", status: http.StatusTooManyRequests, want: KindRateLimited},
		{name: "internal", status: http.StatusInternalServerError, want: KindServer},
		{name: "bad gateway", status: http.StatusBadGateway, want: KindServer},
		{name: "continue", status: http.StatusContinue, want: KindServer},
		{name: "not modified", status: http.StatusNotModified, want: KindServer},
		{name: "found", status: http.StatusFound, want: KindServer},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := FromStatus(tc.status, "", nil, 0)
			if err == nil {
				t.Fatalf("FromStatus(%d) = nil, want error", tc.status)
			}
			if err.Kind != tc.want {
				t.Fatalf("FromStatus(%d).Kind = %q, want %q", tc.status, err.Kind, tc.want)
			}
			if err.StatusCode != tc.status {
				t.Fatalf("FromStatus(%d).StatusCode = %d", tc.status, err.StatusCode)
			}
		})
	}
}

func TestFromStatusNamesUnexpectedStatus(t *testing.T) {
	t.Parallel()

	err := FromStatus(http.StatusNotModified, "", nil, 0)
	if err.Message != "unexpected status 304" {
		t.Fatalf("message = %q, want %q", err.Message, "unexpected status 304")
	}
}

func TestFromStatusReturnsNilForSuccess(t *testing.T) {
	t.Parallel()

	if err := FromStatus(http.StatusNoContent, "", nil, 0); err != nil {
		t.Fatalf("FromStatus(204) = %v, want nil", err)
	}
}

func TestRateLimitedCarriesWaitHint(t *testing.T) {
	t.Parallel()

	err := FromStatus(http.StatusTooManyRequests, "slow down", nil, 2*time.Second)
	if err.RetryAfter != 2*time.Second {
		t.Fatalf("RetryAfter = %v, want 2s", err.RetryAfter)
	}
}

func TestClientErrorKeepsDetails(t *testing.T) {
	t.Parallel()

	details := []FieldDetail{{Field: "title", Message: "required"}}
	err := fmt.Errorf("create: %w", Client(http.StatusUnprocessableEntity, "invalid", details))

	got := Details(err)
	if len(got) != 1 || got[0].Field != "title" {
		t.Fatalf("Details() = %+v, want title detail", got)
	}
	if KindOf(err) != KindClient {
		t.Fatalf("KindOf() = %q, want %q", KindOf(err), KindClient)
	}
	if StatusCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("StatusCode() = %d", StatusCode(err))
	}
}

func TestIsMatchesByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("list: %w", Server(http.StatusBadGateway, "upstream"))
	if !stderrors.Is(err, ErrServer) {
		t.Fatal("expected server error to match ErrServer")
	}
	if stderrors.Is(err, ErrClient) {
		t.Fatal("server error must not match ErrClient")
	}
	if !stderrors.Is(err, &Error{Kind: KindServer, StatusCode: http.StatusBadGateway}) {
		t.Fatal("expected match on kind and status")
	}
	if stderrors.Is(err, &Error{Kind: KindServer, StatusCode: http.StatusServiceUnavailable}) {
		t.Fatal("status mismatch must not match")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	t.Parallel()

	if got := KindOf(stderrors.New("boom")); got != KindUnknown {
		t.Fatalf("KindOf(plain) = %q, want %q", got, KindUnknown)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q, want empty", got)
	}
}

func TestErrorStringIncludesStatusAndMessage(t *testing.T) {
	t.Parallel()

	err := Client(http.StatusNotFound, "notification not found", nil)
	if got, want := err.Error(), "client (404): notification not found"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	wrapped := Network(stderrors.New("dial tcp: refused"))
	if got, want := wrapped.Error(), "network: dial tcp: refused"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(wrapped, wrapped.Cause) {
		t.Fatal("expected Unwrap to expose cause")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: Network(stderrors.New("reset")), want: true},
		{err: Server(http.StatusBadGateway, ""), want: true},
		{err: RateLimited(time.Second, ""), want: true},
		{err: Client(http.StatusNotFound, "", nil), want: false},
		{err: Timeout(time.Second, nil), want: false},
		{err: Canceled(nil), want: false},
		{err: stderrors.New("plain"), want: false},
	}
	for _, tc := range tests {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
