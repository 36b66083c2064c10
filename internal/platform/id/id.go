// Package id generates identifiers for requests and pending mutations.
package id

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewRequestID returns a canonical UUID string for X-Request-ID headers.
func NewRequestID() string {
	return uuid.NewString()
}

// NewMutationID returns a time-sortable ULID so log lines for concurrent
// mutations order by creation.
func NewMutationID() string {
	return ulid.Make().String()
}
