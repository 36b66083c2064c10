// Package mutation runs writes against remote resources with optimistic
// updates of the query cache.
//
// A mutation pins every cached entry it affects, applies a pure patch so
// observers see the write at once, runs the remote call, and then either
// reconciles and invalidates (success) or restores the captured snapshots
// (failure). Mutations touching overlapping keys are serialized.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/louisbranch/dataplane/internal/dataplane/query"
	apperrors "github.com/louisbranch/dataplane/internal/platform/errors"
	"github.com/louisbranch/dataplane/internal/platform/id"
	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
	"go.uber.org/zap"
)

// Status is the lifecycle of a pending mutation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// PatchFunc derives the optimistic data for key from its captured snapshot.
// It must not modify snapshot.
type PatchFunc func(key query.Key, snapshot any) any

// Options configure one mutation.
type Options[R any] struct {
	// Affects selects the cache entries the write changes. It is resolved
	// once the mutation holds the key locks, so entries are seen after any
	// earlier overlapping mutation has settled.
	Affects query.Predicate
	// Prepare receives the snapshot of every affected entry after they are
	// pinned and before Optimistic runs. Patches that depend on more than
	// one entry derive their inputs here rather than before Mutate.
	Prepare    func(snapshots []query.Snapshot)
	Optimistic PatchFunc
	// Reconcile replaces an affected entry's data with the authoritative
	// server result. Without it the optimistic state stands.
	Reconcile func(key query.Key, current any, result R) any
	// Invalidate selects entries to refetch after success. Nil means Affects.
	Invalidate query.Predicate
	OnSuccess  func(R)
	OnError    func(error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine executes mutations against one cache.
type Engine struct {
	cache   *query.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	locks   map[string]*keyLock
	pending map[string]*pending
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

type pending struct {
	id        string
	keys      []query.Key
	patch     PatchFunc
	snapshots []query.Snapshot
	status    Status
}

// New builds an Engine over cache.
func New(cache *query.Cache, opts ...Option) (*Engine, error) {
	if cache == nil {
		return nil, errors.New("mutation: cache is required")
	}
	e := &Engine{
		cache:   cache,
		logger:  zap.NewNop(),
		locks:   make(map[string]*keyLock),
		pending: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Pending returns the number of mutations that have not settled.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Mutate runs fn as a write. It never retries: a failure rolls back every
// optimistic change, is reported to OnError and returned.
func Mutate[R any](ctx context.Context, e *Engine, fn func(context.Context) (R, error), opts Options[R]) (R, error) {
	var zero R
	if e == nil {
		return zero, errors.New("mutation: engine is required")
	}
	if fn == nil {
		return zero, errors.New("mutation: write function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p := &pending{id: id.NewMutationID(), patch: opts.Optimistic, status: StatusPending}
	log := e.logger.With(zap.String("mutation_id", p.id))

	keys, unlock, err := e.acquire(ctx, opts.Affects)
	if err != nil {
		err = lockError(ctx, err)
		log.Warn("mutation aborted before write", zap.Error(err))
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return zero, err
	}
	defer unlock()
	p.keys = keys
	log = log.With(zap.Int("keys", len(keys)))
	e.track(p)
	defer e.untrack(p)

	if p.patch != nil || opts.Prepare != nil {
		e.apply(p, opts.Prepare)
		log.Debug("optimistic patch applied")
	}

	result, err := fn(ctx)
	if err != nil {
		e.rollback(p)
		e.metrics.Mutation(metrics.MutationRolledBack)
		log.Warn("mutation rolled back",
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return zero, err
	}

	if opts.Reconcile != nil {
		for _, key := range keys {
			e.cache.Patch(key, func(current any) any {
				return opts.Reconcile(key, current, result)
			})
		}
	}
	invalidate := opts.Invalidate
	if invalidate == nil {
		invalidate = opts.Affects
	}
	refetched := 0
	if invalidate != nil {
		refetched = e.cache.Invalidate(invalidate)
	}
	e.commit(p)
	e.metrics.Mutation(metrics.MutationCommitted)
	log.Debug("mutation committed", zap.Int("invalidated", refetched))

	if opts.OnSuccess != nil {
		opts.OnSuccess(result)
	}
	return result, nil
}

// apply captures and pins every affected entry, hands the snapshots to
// prepare, then patches those holding data.
func (e *Engine) apply(p *pending, prepare func([]query.Snapshot)) {
	p.snapshots = make([]query.Snapshot, 0, len(p.keys))
	for _, key := range p.keys {
		p.snapshots = append(p.snapshots, e.cache.Hold(key))
	}
	if prepare != nil {
		prepare(slices.Clone(p.snapshots))
	}
	if p.patch == nil {
		return
	}
	for _, snap := range p.snapshots {
		if !snap.Present() {
			continue
		}
		key := snap.Key()
		e.cache.Patch(key, func(current any) any {
			return p.patch(key, current)
		})
	}
}

func (e *Engine) rollback(p *pending) {
	for _, snap := range p.snapshots {
		e.cache.Restore(snap)
	}
	e.releaseHolds(p)
	p.status = StatusRolledBack
}

// commit releases holds after invalidation so pinned entries refetch once.
func (e *Engine) commit(p *pending) {
	e.releaseHolds(p)
	p.status = StatusCommitted
}

func (e *Engine) releaseHolds(p *pending) {
	for _, snap := range p.snapshots {
		if snap.Present() {
			e.cache.Release(snap.Key())
		}
	}
}

func (e *Engine) track(p *pending) {
	e.mu.Lock()
	e.pending[p.id] = p
	e.mu.Unlock()
}

func (e *Engine) untrack(p *pending) {
	e.mu.Lock()
	delete(e.pending, p.id)
	e.mu.Unlock()
}

// relockAttempts bounds how often acquire resolves Affects again when
// matching entries appear while it waits for the key locks.
const relockAttempts = 3

// acquire locks the keys selected by pred. The selection is resolved again
// once the locks are held: keys that appeared meanwhile are locked on the
// next attempt, and after the last attempt only locked keys that still exist
// are returned.
func (e *Engine) acquire(ctx context.Context, pred query.Predicate) ([]query.Key, func(), error) {
	if pred == nil {
		return nil, func() {}, nil
	}
	keys := e.cache.Match(pred)
	for attempt := 1; ; attempt++ {
		unlock, err := e.lock(ctx, keys)
		if err != nil {
			return nil, nil, err
		}
		current := e.cache.Match(pred)
		held := within(current, keys)
		if len(held) == len(current) || attempt == relockAttempts {
			return held, unlock, nil
		}
		unlock()
		keys = current
	}
}

// within returns the keys of current that are also in locked, keeping
// current's order.
func within(current, locked []query.Key) []query.Key {
	set := make(map[string]struct{}, len(locked))
	for _, key := range locked {
		set[key.String()] = struct{}{}
	}
	out := make([]query.Key, 0, len(current))
	for _, key := range current {
		if _, ok := set[key.String()]; ok {
			out = append(out, key)
		}
	}
	return out
}

// lock acquires the per-key locks in keys' canonical order, which Match
// already guarantees. It returns a func releasing them all.
func (e *Engine) lock(ctx context.Context, keys []query.Key) (func(), error) {
	held := make([]string, 0, len(keys))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			e.unlockKey(held[i])
		}
	}
	for _, key := range keys {
		k := key.String()
		if err := e.lockKey(ctx, k); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, k)
	}
	return unlock, nil
}

func (e *Engine) lockKey(ctx context.Context, key string) error {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		e.locks[key] = l
	}
	l.refs++
	e.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		e.drop(key, l)
		e.mu.Unlock()
		return ctx.Err()
	}
}

func (e *Engine) unlockKey(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		return
	}
	<-l.ch
	e.drop(key, l)
}

// drop releases one reference. Callers hold e.mu.
func (e *Engine) drop(key string, l *keyLock) {
	l.refs--
	if l.refs == 0 {
		delete(e.locks, key)
	}
}

func lockError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(0, fmt.Errorf("mutation: wait for key lock: %w", context.Cause(ctx)))
	}
	return apperrors.Canceled(fmt.Errorf("mutation: wait for key lock: %w", context.Cause(ctx)))
}
