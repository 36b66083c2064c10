package query

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
)

// Subscription is one observer of a cache entry.
//
// Its subscriber sees the entry's transitions in order, one call at a time.
// A notice that reaches it after a newer one has been queued or delivered
// is dropped.
type Subscription struct {
	cache    *Cache
	entry    *entry
	onChange func(State)
	once     sync.Once
	done     chan struct{}

	deliverMu sync.Mutex
	queue     []update
	delivered uint64
	draining  bool
}

type update struct {
	seq   uint64
	state State
}

// Key returns the observed key.
func (s *Subscription) Key() Key {
	return s.entry.key.Clone()
}

// State returns the entry's current state.
func (s *Subscription) State() State {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	return s.entry.state()
}

// Wait blocks until the entry has no pending flight and returns the settled
// state. A superseding flight extends the wait. The returned error is ctx's
// error; fetch failures are reported in State.Err.
func (s *Subscription) Wait(ctx context.Context) (State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.cache.mu.Lock()
		fl := s.entry.flight
		if fl == nil {
			st := s.entry.state()
			s.cache.mu.Unlock()
			return st, nil
		}
		s.cache.mu.Unlock()

		select {
		case <-fl.done:
		case <-ctx.Done():
			return s.State(), ctx.Err()
		}
	}
}

// Refetch revalidates the entry now. It attaches to a pending flight instead
// of starting a second one, and does nothing while a mutation holds the
// entry.
func (s *Subscription) Refetch() {
	c := s.cache
	c.mu.Lock()
	e := s.entry
	_, open := e.subs[s]
	var n *notice
	if open && e.flight == nil && e.holds == 0 {
		c.metrics.CacheRequest(metrics.CacheRevalidate)
		n = c.start(e)
	}
	c.mu.Unlock()
	n.deliver()
}

// Close stops observing the entry. It is idempotent and never aborts a
// pending flight other observers may share. Closing the last subscription
// starts the entry's idle window.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.cache
		c.mu.Lock()
		delete(s.entry.subs, s)
		if len(s.entry.subs) == 0 {
			s.entry.idleSince = c.now()
		}
		c.mu.Unlock()
		close(s.done)
	})
}

// notify queues st for the subscriber. The first caller to find the queue
// idle drains it; others return at once, so a subscriber that calls back
// into the cache never deadlocks.
func (s *Subscription) notify(seq uint64, st State) {
	select {
	case <-s.done:
		return
	default:
	}
	s.deliverMu.Lock()
	last := s.delivered
	if n := len(s.queue); n > 0 {
		last = s.queue[n-1].seq
	}
	if seq <= last {
		s.deliverMu.Unlock()
		return
	}
	s.queue = append(s.queue, update{seq: seq, state: st})
	if s.draining {
		s.deliverMu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		u := s.queue[0]
		s.queue = s.queue[1:]
		s.delivered = u.seq
		s.deliverMu.Unlock()
		s.onChange(u.state)
		s.deliverMu.Lock()
	}
	s.draining = false
	s.deliverMu.Unlock()
}

func (s *Subscription) poll(every time.Duration) {
	defer s.cache.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.cache.ctx.Done():
			return
		case <-ticker.C:
			s.Refetch()
		}
	}
}
