// Package errors defines the classified failure taxonomy returned by the data
// plane. Every remote call resolves to either a value or an *Error carrying a
// Kind, so callers switch on the kind instead of inspecting response bodies.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies why a remote call failed.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindNetwork     Kind = "network"
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindClient      Kind = "client"
	KindServer      Kind = "server"
	KindCanceled    Kind = "canceled"
)

// FieldDetail is a field-level validation message from the error envelope.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified remote-call failure.
type Error struct {
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Details    []FieldDetail
	Cause      error
}

// Error renders the human-readable message.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.StatusCode == 0 || e.StatusCode == t.StatusCode)
}

// Sentinel values for errors.Is comparisons by kind.
var (
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrClient      = &Error{Kind: KindClient}
	ErrServer      = &Error{Kind: KindServer}
	ErrCanceled    = &Error{Kind: KindCanceled}
)

// Network builds a failure for calls that never produced a response.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Cause: cause}
}

// Timeout builds a failure for calls that exceeded their deadline.
func Timeout(after time.Duration, cause error) *Error {
	msg := "request timed out"
	if after > 0 {
		msg = fmt.Sprintf("request timed out after %s", after)
	}
	return &Error{Kind: KindTimeout, Message: msg, Cause: cause}
}

// Canceled builds a failure for calls aborted by the caller.
func Canceled(cause error) *Error {
	return &Error{Kind: KindCanceled, Message: "request canceled", Cause: cause}
}

// RateLimited builds a 429 failure. A zero wait means the server did not send
// a usable Retry-After hint.
func RateLimited(wait time.Duration, message string) *Error {
	return &Error{Kind: KindRateLimited, StatusCode: http.StatusTooManyRequests, RetryAfter: wait, Message: message}
}

// Client builds a 4xx failure with optional field details.
func Client(status int, message string, details []FieldDetail) *Error {
	return &Error{Kind: KindClient, StatusCode: status, Message: message, Details: details}
}

// Server builds a 5xx failure.
func Server(status int, message string) *Error {
	return &Error{Kind: KindServer, StatusCode: status, Message: message}
}

// FromStatus classifies a non-2xx HTTP status. It returns nil for 2xx.
// Informational and redirect statuses that reach the caller are server
// faults: the API never answers with them.
func FromStatus(status int, message string, details []FieldDetail, retryAfter time.Duration) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status < 400:
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", status)
		}
		return Server(status, message)
	case status == http.StatusTooManyRequests:
		return RateLimited(retryAfter, message)
	case status >= 500:
		return Server(status, message)
	default:
		if message == "" {
			message = strings.ToLower(http.StatusText(status))
		}
		return Client(status, message, details)
	}
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if !stderrors.As(err, &classified) {
		return KindUnknown
	}
	return classified.Kind
}

// IsRetryable reports whether err is a network, server or rate-limit
// failure.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status carried by a classified error, or zero.
func StatusCode(err error) int {
	var classified *Error
	if !stderrors.As(err, &classified) {
		return 0
	}
	return classified.StatusCode
}

// Details returns field-level details of a client error.
func Details(err error) []FieldDetail {
	var classified *Error
	if !stderrors.As(err, &classified) {
		return nil
	}
	return classified.Details
}

// As reports whether err carries a classified *Error and returns it.
func As(err error) (*Error, bool) {
	var classified *Error
	if !stderrors.As(err, &classified) {
		return nil, false
	}
	return classified, true
}
