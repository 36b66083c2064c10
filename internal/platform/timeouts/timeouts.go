// Package timeouts defines shared durations used across the data plane.
// Centralizing these values keeps transport, cache and binding defaults in
// agreement and makes them discoverable.
package timeouts

import "time"

// Request caps a single transport attempt when no per-call timeout is set.
const Request = 30 * time.Second

// CacheIdle is how long an unobserved cache entry survives before eviction.
const CacheIdle = 5 * time.Minute

// Dial limits TCP connection establishment for the default HTTP transport.
const Dial = 5 * time.Second

// TLSHandshake limits TLS negotiation for the default HTTP transport.
const TLSHandshake = 5 * time.Second

// Shutdown limits how long telemetry exporters may flush on close.
const Shutdown = 5 * time.Second
