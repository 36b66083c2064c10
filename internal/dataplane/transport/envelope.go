package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/dataplane/internal/platform/errors"
)

// Response is a successful (2xx) HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Attempts   int
}

// PageMeta is the pagination block of list envelopes.
type PageMeta struct {
	CurrentPage     int  `json:"currentPage"`
	PerPage         int  `json:"perPage"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Envelope is the success body shape `{data, meta?}`.
type Envelope[T any] struct {
	Data T         `json:"data"`
	Meta *PageMeta `json:"meta,omitempty"`
}

// DecodeEnvelope decodes a success envelope. An empty body yields the zero
// envelope.
func DecodeEnvelope[T any](resp *Response) (Envelope[T], error) {
	var env Envelope[T]
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return env, decodeError(resp, err)
	}
	return env, nil
}

// Decode decodes a bare JSON body into T.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, decodeError(resp, err)
	}
	return out, nil
}

func decodeError(resp *Response, err error) error {
	return &apperrors.Error{
		Kind:       apperrors.KindServer,
		StatusCode: resp.StatusCode,
		Message:    "decode response body",
		Cause:      err,
	}
}

// errorBody accepts `{error:{message,details}}`, `{error:"..."}` and the
// legacy bare `{message}`.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorObject struct {
	Message string                  `json:"message"`
	Details []apperrors.FieldDetail `json:"details"`
}

func parseErrorBody(body []byte) (string, []apperrors.FieldDetail) {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil
	}
	if len(parsed.Error) > 0 {
		var obj errorObject
		if err := json.Unmarshal(parsed.Error, &obj); err == nil {
			return strings.TrimSpace(obj.Message), obj.Details
		}
		var text string
		if err := json.Unmarshal(parsed.Error, &text); err == nil {
			return strings.TrimSpace(text), nil
		}
	}
	return strings.TrimSpace(parsed.Message), nil
}

// classifyResponse turns a non-2xx response into a classified error.
func classifyResponse(status int, header http.Header, body []byte) *apperrors.Error {
	message, details := parseErrorBody(body)
	var wait time.Duration
	if status == http.StatusTooManyRequests {
		wait, _ = ParseRetryAfter(header.Get("Retry-After"))
	}
	return apperrors.FromStatus(status, message, details, wait)
}
