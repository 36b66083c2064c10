// Package query caches keyed remote reads for the dashboard.
//
// Each Key owns at most one entry and at most one in-flight fetch.
// Observers attach through Fetch and receive a Subscription; concurrent
// requests for an equal key share the pending flight, and a settled fetch is
// applied only when it is still the entry's newest generation. Entries nobody
// observes are evicted after an idle window.
package query

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
	"github.com/louisbranch/dataplane/internal/platform/timeouts"
	"go.uber.org/zap"
)

// Config is the environment-driven cache configuration.
type Config struct {
	IdleTimeout time.Duration `env:"CACHE_IDLE_TIMEOUT" envDefault:"5m"`
	// GCInterval defaults to half the idle timeout.
	GCInterval time.Duration `env:"CACHE_GC_INTERVAL"`
	StaleTime  time.Duration `env:"CACHE_STALE_TIME" envDefault:"0s"`
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the clock used for freshness and idle tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithoutJanitor disables the background eviction loop. Collect can still
// be called directly.
func WithoutJanitor() Option {
	return func(c *Cache) { c.janitor = false }
}

// Cache stores query entries. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	idleTimeout time.Duration
	gcInterval  time.Duration
	staleTime   time.Duration
	janitor     bool

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	id  string
	key Key

	data      any
	hasData   bool
	status    Status
	err       error
	fetchedAt time.Time
	stale     bool

	flight *flight
	gen    uint64

	subs      map[*Subscription]struct{}
	idleSince time.Time

	fn        FetchFunc
	fetchCtx  context.Context
	staleTime time.Duration
	holds     int

	// seq numbers the entry's notices so subscribers can drop stale ones.
	seq uint64
}

type flight struct {
	gen    uint64
	done   chan struct{}
	cancel context.CancelFunc
}

// New builds a Cache and starts its janitor.
func New(cfg Config, opts ...Option) *Cache {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = timeouts.CacheIdle
	}
	gc := cfg.GCInterval
	if gc <= 0 {
		gc = idle / 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:     make(map[string]*entry),
		idleTimeout: idle,
		gcInterval:  gc,
		staleTime:   max(cfg.StaleTime, 0),
		janitor:     true,
		logger:      zap.NewNop(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.janitor {
		c.wg.Add(1)
		go c.sweep()
	}
	return c
}

// FetchOption customizes one Fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	staleTime       time.Duration
	subscriber      func(State)
	refetchInterval time.Duration
}

// WithStaleTime serves a successful entry younger than d without fetching.
func WithStaleTime(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.staleTime = max(d, 0) }
}

// WithSubscriber registers fn for every state transition of the entry.
func WithSubscriber(fn func(State)) FetchOption {
	return func(o *fetchOptions) { o.subscriber = fn }
}

// WithRefetchInterval revalidates the entry every d while the subscription
// stays open.
func WithRefetchInterval(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.refetchInterval = d }
}

// Fetch observes key. It starts fn when the entry has no fresh data and no
// pending flight, and returns immediately; use Subscription.Wait to block on
// the result. ctx values reach fn but its cancellation does not: a flight
// outlives the observer that started it and stops only when the cache closes
// or a newer fetch supersedes it.
func (c *Cache) Fetch(ctx context.Context, key Key, fn FetchFunc, opts ...FetchOption) *Subscription {
	if ctx == nil {
		ctx = context.Background()
	}
	fo := fetchOptions{staleTime: c.staleTime}
	for _, opt := range opts {
		opt(&fo)
	}

	c.mu.Lock()
	e, created := c.lookup(key)
	if fn != nil {
		e.fn = fn
	}
	e.fetchCtx = context.WithoutCancel(ctx)
	e.staleTime = fo.staleTime

	sub := &Subscription{cache: c, entry: e, onChange: fo.subscriber, done: make(chan struct{})}
	e.subs[sub] = struct{}{}
	e.idleSince = time.Time{}

	var n *notice
	switch {
	case e.flight != nil:
		c.metrics.CacheRequest(metrics.CacheDedup)
		c.logger.Debug("fetch deduplicated", zap.String("key", e.id))
	case e.holds > 0 || c.fresh(e):
		c.metrics.CacheRequest(metrics.CacheHit)
	default:
		if e.hasData {
			c.metrics.CacheRequest(metrics.CacheRevalidate)
		} else {
			c.metrics.CacheRequest(metrics.CacheMiss)
		}
		n = c.start(e)
	}
	if created {
		c.metrics.CacheEntries(len(c.entries))
	}
	if fo.refetchInterval > 0 && !c.closed {
		c.wg.Add(1)
		go sub.poll(fo.refetchInterval)
	}
	c.mu.Unlock()

	n.deliver()
	return sub
}

// Prefetch loads key without keeping it observed. It returns the settled
// state and the fetch error, if any.
func (c *Cache) Prefetch(ctx context.Context, key Key, fn FetchFunc, opts ...FetchOption) (State, error) {
	sub := c.Fetch(ctx, key, fn, opts...)
	defer sub.Close()
	st, err := sub.Wait(ctx)
	if err != nil {
		return st, err
	}
	return st, st.Err
}

// Peek returns the current state of key without observing it.
func (c *Cache) Peek(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{}, false
	}
	return e.state(), true
}

// SetData seeds key with data as a successful fetch. A pending flight for the
// key is superseded.
func (c *Cache) SetData(key Key, data any) {
	c.mu.Lock()
	e, created := c.lookup(key)
	c.supersede(e)
	e.data = data
	e.hasData = true
	e.status = StatusSuccess
	e.err = nil
	e.fetchedAt = c.now()
	e.stale = false
	if created {
		c.metrics.CacheEntries(len(c.entries))
	}
	n := c.notice(e)
	c.mu.Unlock()
	n.deliver()
}

// Invalidate marks every entry selected by pred stale. Observed entries
// refetch at once, superseding any pending flight; unobserved entries
// refetch on their next observation. It returns the number of entries
// matched.
func (c *Cache) Invalidate(pred Predicate) int {
	if pred == nil {
		return 0
	}
	var ns notices
	matched := 0

	c.mu.Lock()
	for _, e := range c.entries {
		if !pred(e.key) {
			continue
		}
		matched++
		e.stale = true
		if len(e.subs) > 0 && e.holds == 0 {
			ns = append(ns, c.start(e))
		}
	}
	c.mu.Unlock()

	ns.deliver()
	c.logger.Debug("invalidated cache entries", zap.Int("matched", matched))
	return matched
}

// Collect evicts entries with no subscribers, no pending flight and no
// mutation hold that have been idle for at least the idle timeout. It
// returns the number evicted.
func (c *Cache) Collect() int {
	now := c.now()
	evicted := 0

	c.mu.Lock()
	for id, e := range c.entries {
		if len(e.subs) > 0 || e.flight != nil || e.holds > 0 {
			continue
		}
		if now.Sub(e.idleSince) < c.idleTimeout {
			continue
		}
		delete(c.entries, id)
		evicted++
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if evicted > 0 {
		c.metrics.CacheEvicted(evicted)
		c.metrics.CacheEntries(remaining)
		c.logger.Info("evicted idle cache entries", zap.Int("evicted", evicted), zap.Int("remaining", remaining))
	}
	return evicted
}

// Keys returns every cached key in canonical order.
func (c *Cache) Keys() []Key {
	return c.Match(MatchAll())
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels pending flights, stops background work and waits for it to
// exit. Results arriving afterwards are discarded.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Cache) sweep() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// lookup returns the entry for key, creating it idle. Callers hold c.mu.
func (c *Cache) lookup(key Key) (*entry, bool) {
	id := key.String()
	if e, ok := c.entries[id]; ok {
		return e, false
	}
	e := &entry{
		id:        id,
		key:       key.Clone(),
		status:    StatusIdle,
		subs:      make(map[*Subscription]struct{}),
		idleSince: c.now(),
		fetchCtx:  context.Background(),
	}
	c.entries[id] = e
	return e, true
}

func (c *Cache) fresh(e *entry) bool {
	if e.status != StatusSuccess || e.stale || e.staleTime <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) < e.staleTime
}

// start launches a flight for e, superseding any pending one. Callers hold
// c.mu.
func (c *Cache) start(e *entry) *notice {
	if c.closed || e.fn == nil {
		return nil
	}
	c.supersede(e)

	ctx, cancel := context.WithCancel(e.fetchCtx)
	stop := context.AfterFunc(c.ctx, cancel)
	fl := &flight{
		gen:  e.gen,
		done: make(chan struct{}),
		cancel: func() {
			stop()
			cancel()
		},
	}
	e.flight = fl
	e.status = StatusLoading

	c.wg.Add(1)
	go c.run(ctx, e, fl, e.fn)
	c.logger.Debug("fetch started", zap.String("key", e.id), zap.Uint64("generation", fl.gen))
	return c.notice(e)
}

// supersede bumps the generation so any pending flight is discarded when it
// settles. Callers hold c.mu.
func (c *Cache) supersede(e *entry) {
	e.gen++
	if e.flight != nil {
		e.flight.cancel()
		e.flight = nil
	}
}

func (c *Cache) run(ctx context.Context, e *entry, fl *flight, fn FetchFunc) {
	defer c.wg.Done()
	defer close(fl.done)

	data, err := invoke(ctx, fn)
	fl.cancel()

	c.mu.Lock()
	if e.flight != fl || e.gen != fl.gen || c.closed {
		if e.flight == fl {
			e.flight = nil
		}
		c.mu.Unlock()
		c.metrics.CacheDiscarded()
		c.logger.Debug("fetch result discarded", zap.String("key", e.id), zap.Uint64("generation", fl.gen))
		return
	}
	e.flight = nil
	if err != nil {
		e.status = StatusError
		e.err = err
		e.stale = true
	} else {
		e.data = data
		e.hasData = true
		e.status = StatusSuccess
		e.err = nil
		e.fetchedAt = c.now()
		e.stale = false
	}
	n := c.notice(e)
	c.mu.Unlock()

	n.deliver()
}

func invoke(ctx context.Context, fn FetchFunc) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetch panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (e *entry) state() State {
	return State{
		Key:           e.key.Clone(),
		Data:          e.data,
		HasData:       e.hasData,
		Status:        e.status,
		Err:           e.err,
		LastFetchedAt: e.fetchedAt,
		Stale:         e.stale,
		Fetching:      e.flight != nil,
	}
}

type notice struct {
	seq   uint64
	state State
	subs  []*Subscription
}

// notice captures e's current state for its subscribers. Callers hold c.mu
// and deliver after releasing it.
func (c *Cache) notice(e *entry) *notice {
	e.seq++
	n := &notice{seq: e.seq, state: e.state()}
	for sub := range e.subs {
		if sub.onChange != nil {
			n.subs = append(n.subs, sub)
		}
	}
	return n
}

func (n *notice) deliver() {
	if n == nil {
		return
	}
	for _, sub := range n.subs {
		sub.notify(n.seq, n.state)
	}
}

type notices []*notice

func (ns notices) deliver() {
	for _, n := range ns {
		n.deliver()
	}
}

// Match returns the keys of cached entries selected by pred in canonical
// order.
func (c *Cache) Match(pred Predicate) []Key {
	if pred == nil {
		return nil
	}
	c.mu.Lock()
	keys := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		if pred(e.key) {
			keys = append(keys, e.key.Clone())
		}
	}
	c.mu.Unlock()
	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}
