// Package metrics provides Prometheus collectors for the data plane.
//
// # Metric Categories
//
//   - Transport: attempts and retries by method, outcome and failure kind,
//     plus end-to-end call latency including backoff waits
//   - Cache: lookups by result (hit, miss, dedup, revalidate), live entries,
//     evictions and discarded out-of-order responses
//   - Mutations: settled mutations by outcome (committed, rolled_back)
//
// # Registration
//
// Collectors are registered on the prometheus.Registerer passed to New, never
// on the global default registry, so several data planes can live in one
// process. A nil *Metrics is valid and records nothing.
package metrics
