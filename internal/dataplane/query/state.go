package query

import (
	"context"
	"time"
)

// Status is the lifecycle of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchFunc loads the data for one key.
type FetchFunc func(ctx context.Context) (any, error)

// State is an immutable view of an entry handed to observers.
type State struct {
	Key           Key
	Data          any
	HasData       bool
	Status        Status
	Err           error
	LastFetchedAt time.Time
	// Stale is set once the entry has been invalidated or its last fetch
	// failed, until the next successful fetch.
	Stale bool
	// Fetching reports whether a flight is pending.
	Fetching bool
}

// DataAs returns the state's data asserted to T.
func DataAs[T any](s State) (T, bool) {
	var zero T
	if !s.HasData {
		return zero, false
	}
	v, ok := s.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Snapshot captures an entry so it can be restored after a failed mutation.
type Snapshot struct {
	key       Key
	present   bool
	data      any
	hasData   bool
	status    Status
	err       error
	fetchedAt time.Time
	stale     bool
}

// Key returns the key the snapshot belongs to.
func (s Snapshot) Key() Key { return s.key }

// Data returns the captured data and whether any was cached.
func (s Snapshot) Data() (any, bool) { return s.data, s.hasData }

// Present reports whether the entry existed when captured.
func (s Snapshot) Present() bool { return s.present }
