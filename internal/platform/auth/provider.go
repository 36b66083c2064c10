// Package auth supplies bearer tokens to the transport client. Token
// acquisition itself (login, refresh grants) belongs to the embedding
// application; this package only adapts and caches what it hands over.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// TokenProvider yields the bearer token for the next request. An empty token
// with a nil error means the request goes out unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by providers that can drop a cached token after
// the server rejects it.
type Invalidator interface {
	Invalidate()
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx)
}

// Static returns a provider that always yields token.
func Static(token string) TokenProvider {
	token = strings.TrimSpace(token)
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// None returns a provider that never yields a token.
func None() TokenProvider {
	return TokenFunc(func(context.Context) (string, error) { return "", nil })
}

// DefaultLeeway is subtracted from a JWT exp claim before the cached token is
// considered expired.
const DefaultLeeway = 30 * time.Second

// Refreshing caches the token returned by a source until its JWT exp claim
// (minus a leeway) passes, and coalesces concurrent refreshes into one source
// call. Opaque non-JWT tokens are cached until Invalidate.
type Refreshing struct {
	source TokenFunc
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
	group  singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// RefreshOption customizes a Refreshing provider.
type RefreshOption func(*Refreshing)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) RefreshOption {
	return func(r *Refreshing) {
		if d >= 0 {
			r.leeway = d
		}
	}
}

// WithClock overrides the wall clock used for expiry checks.
func WithClock(now func() time.Time) RefreshOption {
	return func(r *Refreshing) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRefreshing wraps source.
func NewRefreshing(source TokenFunc, opts ...RefreshOption) *Refreshing {
	r := &Refreshing{
		source: source,
		leeway: DefaultLeeway,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Token returns the cached token or refreshes it from the source.
func (r *Refreshing) Token(ctx context.Context) (string, error) {
	if token, ok := r.cached(); ok {
		return token, nil
	}
	v, err, _ := r.group.Do("token", func() (any, error) {
		if token, ok := r.cached(); ok {
			return token, nil
		}
		token, err := r.source.Token(ctx)
		if err != nil {
			return "", err
		}
		token = strings.TrimSpace(token)
		expiresAt := r.expiry(token)
		if !expiresAt.IsZero() && !r.now().Add(r.leeway).Before(expiresAt) {
			// Already expired: send the request unauthenticated rather than
			// with a token the server will reject.
			return "", nil
		}
		r.mu.Lock()
		r.token = token
		r.expiresAt = expiresAt
		r.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (r *Refreshing) Invalidate() {
	r.mu.Lock()
	r.token = ""
	r.expiresAt = time.Time{}
	r.mu.Unlock()
}

func (r *Refreshing) cached() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token == "" {
		return "", false
	}
	if !r.expiresAt.IsZero() && !r.now().Add(r.leeway).Before(r.expiresAt) {
		return "", false
	}
	return r.token, true
}

// expiry reads the exp claim without verifying the signature; the server is
// the verifier, this is only a freshness hint.
func (r *Refreshing) expiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	parsed, _, err := r.parser.ParseUnverified(token, &jwt.RegisteredClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
