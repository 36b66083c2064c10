package mutation

import "github.com/louisbranch/dataplane/internal/dataplane/query"

// Patch adapts a typed patch. Snapshots of another type pass through
// unchanged.
func Patch[T any](fn func(T) T) PatchFunc {
	return func(_ query.Key, snapshot any) any {
		v, ok := snapshot.(T)
		if !ok {
			return snapshot
		}
		return fn(v)
	}
}

// Reconcile adapts a typed reconcile function for Options.Reconcile.
func Reconcile[T, R any](fn func(current T, result R) T) func(query.Key, any, R) any {
	return func(_ query.Key, current any, result R) any {
		v, ok := current.(T)
		if !ok {
			return current
		}
		return fn(v, result)
	}
}
