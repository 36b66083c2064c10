package transport

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/louisbranch/dataplane/internal/platform/auth"
	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
	"github.com/louisbranch/dataplane/internal/platform/timeouts"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config is the environment-driven transport configuration.
type Config struct {
	BaseURL     string        `env:"API_BASE_URL"`
	Timeout     time.Duration `env:"API_TIMEOUT" envDefault:"30s"`
	MaxAttempts int           `env:"API_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"API_RETRY_BASE_DELAY" envDefault:"1s"`
	Locale      string        `env:"API_LOCALE"`
	UserAgent   string        `env:"API_USER_AGENT" envDefault:"dashboard-dataplane"`
}

// Option customizes a Client beyond Config.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenProvider sets the bearer token source.
func WithTokenProvider(p auth.TokenProvider) Option {
	return func(c *Client) {
		if p != nil {
			c.tokens = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithJitter overrides the retry jitter function.
func WithJitter(fn func(base time.Duration) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.policy.Jitter = fn
		}
	}
}

// WithClassifier overrides how failures map to retry decisions.
func WithClassifier(fn func(error) Classification) Option {
	return func(c *Client) {
		if fn != nil {
			c.policy.Classify = fn
		}
	}
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// CallOption customizes a single request.
type CallOption func(*call)

type call struct {
	timeout time.Duration
	header  http.Header
	query   url.Values
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) CallOption {
	return func(c *call) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a header to this call. It overrides defaults of the same name.
func WithHeader(key, value string) CallOption {
	return func(c *call) {
		c.header.Set(key, value)
	}
}

// WithQuery appends query parameters to this call.
func WithQuery(values url.Values) CallOption {
	return func(c *call) {
		for k, vs := range values {
			c.query[k] = append(c.query[k], vs...)
		}
	}
}

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: timeouts.Dial,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeouts.TLSHandshake,
			MaxIdleConnsPerHost: 8,
		},
	}
}
