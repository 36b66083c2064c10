// Package dataplane assembles the transport client, query cache, mutation
// engine and resource bindings from one environment-driven Config.
package dataplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/louisbranch/dataplane/internal/bindings/notifications"
	"github.com/louisbranch/dataplane/internal/dataplane/mutation"
	"github.com/louisbranch/dataplane/internal/dataplane/query"
	"github.com/louisbranch/dataplane/internal/dataplane/transport"
	"github.com/louisbranch/dataplane/internal/platform/auth"
	"github.com/louisbranch/dataplane/internal/platform/config"
	"github.com/louisbranch/dataplane/internal/platform/logging"
	"github.com/louisbranch/dataplane/internal/platform/otel"
	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
	"github.com/louisbranch/dataplane/internal/platform/timeouts"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config aggregates every component's settings.
type Config struct {
	Transport transport.Config
	Cache     query.Config
	Logging   logging.Config
	Telemetry otel.Config
	// ShutdownTimeout bounds how long Close waits for span export.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads Config from DATAPLANE_* environment variables.
func LoadConfig() (Config, error) {
	return config.Load[Config]()
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	tokens     auth.TokenProvider
	httpClient *http.Client
	notifier   notifications.Notifier
}

// WithLogger uses l instead of building one from Config.Logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers data plane collectors on reg. Without it no
// metrics are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTokenProvider sets the bearer token source.
func WithTokenProvider(p auth.TokenProvider) Option {
	return func(o *options) { o.tokens = p }
}

// WithHTTPClient replaces the transport's HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithNotifier receives user-facing write outcome notices.
func WithNotifier(n notifications.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Plane is a running data plane.
type Plane struct {
	Logger        *zap.Logger
	Client        *transport.Client
	Cache         *query.Cache
	Engine        *mutation.Engine
	Notifications *notifications.Binding

	shutdownTimeout time.Duration
	shutdown        func(context.Context) error
	ownsLogger      bool
}

// New builds a Plane from cfg. Close must be called to stop the cache
// janitor and flush telemetry.
func New(ctx context.Context, cfg Config, opts ...Option) (*Plane, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Plane{
		Logger:          o.logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if p.Logger == nil {
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("dataplane: logger: %w", err)
		}
		p.Logger = logger
		p.ownsLogger = true
	}

	var m *metrics.Metrics
	if o.registerer != nil {
		var err error
		m, err = metrics.New(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("dataplane: metrics: %w", err)
		}
	}

	shutdown, err := otel.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("dataplane: telemetry: %w", err)
	}
	p.shutdown = shutdown

	clientOpts := []transport.Option{
		transport.WithLogger(p.Logger.Named("transport")),
		transport.WithMetrics(m),
	}
	if o.tokens != nil {
		clientOpts = append(clientOpts, transport.WithTokenProvider(o.tokens))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, transport.WithHTTPClient(o.httpClient))
	}
	p.Client, err = transport.New(cfg.Transport, clientOpts...)
	if err != nil {
		return nil, errors.Join(err, p.stopTelemetry())
	}

	p.Cache = query.New(cfg.Cache,
		query.WithLogger(p.Logger.Named("query")),
		query.WithMetrics(m),
	)
	p.Engine, err = mutation.New(p.Cache,
		mutation.WithLogger(p.Logger.Named("mutation")),
		mutation.WithMetrics(m),
	)
	if err != nil {
		p.Cache.Close()
		return nil, errors.Join(err, p.stopTelemetry())
	}

	bindingOpts := []notifications.Option{
		notifications.WithLogger(p.Logger.Named("notifications")),
		notifications.WithLocale(cfg.Transport.Locale),
	}
	if o.notifier != nil {
		bindingOpts = append(bindingOpts, notifications.WithNotifier(o.notifier))
	}
	p.Notifications, err = notifications.New(p.Client, p.Cache, p.Engine, bindingOpts...)
	if err != nil {
		p.Cache.Close()
		return nil, errors.Join(err, p.stopTelemetry())
	}

	p.Logger.Debug("data plane ready",
		zap.Duration("timeout", cfg.Transport.Timeout),
		zap.Int("max_attempts", p.Client.Policy().MaxAttempts),
		zap.Duration("cache_idle_timeout", cfg.Cache.IdleTimeout),
	)
	return p, nil
}

// Close stops background work and flushes telemetry.
func (p *Plane) Close() error {
	p.Cache.Close()
	err := p.stopTelemetry()
	if p.ownsLogger {
		// Sync fails on stderr for some platforms; nothing useful to report.
		_ = p.Logger.Sync()
	}
	return err
}

func (p *Plane) stopTelemetry() error {
	if p.shutdown == nil {
		return nil
	}
	timeout := p.shutdownTimeout
	if timeout <= 0 {
		timeout = timeouts.Shutdown
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("dataplane: telemetry shutdown: %w", err)
	}
	return nil
}
