package transport

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/dataplane/internal/platform/errors"
)

// maxDelay caps a single exponential step so large attempt counts cannot
// overflow the shift.
const maxDelay = 5 * time.Minute

// Classification is the retry decision for one failure.
type Classification struct {
	Retryable bool
	// WaitHint, when positive, replaces the exponential delay for the next
	// attempt.
	WaitHint time.Duration
}

// RetryPolicy is immutable once owned by a Client.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      func(base time.Duration) time.Duration
	Classify    func(error) Classification
}

// DefaultClassify retries network failures, server errors and rate limits.
// Client errors, timeouts and cancellations surface immediately.
func DefaultClassify(err error) Classification {
	classified, ok := apperrors.As(err)
	if !ok {
		return Classification{}
	}
	switch classified.Kind {
	case apperrors.KindNetwork, apperrors.KindServer:
		return Classification{Retryable: true}
	case apperrors.KindRateLimited:
		return Classification{Retryable: true, WaitHint: classified.RetryAfter}
	default:
		return Classification{}
	}
}

// UniformJitter returns a random duration in [0, base).
func UniformJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return rand.N(base)
}

// NoJitter disables jitter.
func NoJitter(time.Duration) time.Duration { return 0 }

// ParseRetryAfter reads a Retry-After header as integer seconds. HTTP-date
// values and anything else unparseable report false, which sends the retry
// loop back to the exponential schedule.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Jitter == nil {
		p.Jitter = UniformJitter
	}
	if p.Classify == nil {
		p.Classify = DefaultClassify
	}
	return p
}

// schedule returns a fresh backoff for one call.
func (p RetryPolicy) schedule() *exponential {
	return &exponential{base: p.BaseDelay, jitter: p.Jitter}
}

// Delay is the wait before the attempt following failed attempt n (1-based),
// without jitter.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

// exponential implements backoff.BackOff as base*2^(n-1) + jitter. A pending
// server hint replaces the computed step once.
type exponential struct {
	base    time.Duration
	jitter  func(time.Duration) time.Duration
	attempt int
	hint    time.Duration
}

var _ backoff.BackOff = (*exponential)(nil)

func (e *exponential) NextBackOff() time.Duration {
	e.attempt++
	if e.hint > 0 {
		d := e.hint
		e.hint = 0
		return d
	}
	policy := RetryPolicy{BaseDelay: e.base}
	return policy.Delay(e.attempt) + e.jitter(e.base)
}

func (e *exponential) Reset() {
	e.attempt = 0
	e.hint = 0
}
