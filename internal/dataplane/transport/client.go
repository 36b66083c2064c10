// Package transport issues JSON-over-HTTP calls for the dashboard data plane.
//
// A Client owns an immutable RetryPolicy: network failures, 5xx responses and
// 429 rate limits are retried with exponential backoff (or the server's
// Retry-After hint), while client errors and timeouts surface immediately as
// classified *errors.Error values.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/dataplane/internal/platform/auth"
	apperrors "github.com/louisbranch/dataplane/internal/platform/errors"
	"github.com/louisbranch/dataplane/internal/platform/id"
	"github.com/louisbranch/dataplane/internal/platform/requestctx"
	"github.com/louisbranch/dataplane/internal/platform/telemetry/metrics"
	"github.com/louisbranch/dataplane/internal/platform/timeouts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const tracerName = "github.com/louisbranch/dataplane/internal/dataplane/transport"

// Header names set on every request.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderRequestTimestamp = "X-Request-Timestamp"
)

// maxBodyBytes bounds how much of a response body is buffered.
const maxBodyBytes = 16 << 20

var errAttemptTimeout = errors.New("transport: attempt deadline exceeded")

// Client performs remote calls. It is safe for concurrent use and holds no
// per-call state.
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	userAgent  string
	language   string
	policy     RetryPolicy
	http       *http.Client
	tokens     auth.TokenProvider
	logger     *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	now        func() time.Time
}

// New builds a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("transport: base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if !baseURL.IsAbs() {
		return nil, fmt.Errorf("transport: base url %q must be absolute", base)
	}

	var lang string
	if locale := strings.TrimSpace(cfg.Locale); locale != "" {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("transport: parse locale %q: %w", locale, err)
		}
		lang = tag.String()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.Request
	}

	c := &Client{
		baseURL:   baseURL,
		timeout:   timeout,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		language:  lang,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
		},
		http:       defaultHTTPClient(),
		tokens:     auth.None(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.policy.normalized()
	return c, nil
}

// Policy returns the retry policy in effect.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

type request struct {
	method      string
	endpoint    string
	payload     []byte
	contentType string
	call        call
}

// Execute sends method to endpoint with an optional JSON body and returns the
// 2xx response, or a classified *errors.Error after retries are exhausted.
func (c *Client) Execute(ctx context.Context, method, endpoint string, body any, opts ...CallOption) (*Response, error) {
	req := request{
		method:      strings.ToUpper(strings.TrimSpace(method)),
		endpoint:    endpoint,
		contentType: "application/json",
		call:        c.newCall(opts),
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode request body: %w", err)
		}
		req.payload = payload
	}
	return c.do(ctx, req)
}

func (c *Client) newCall(opts []CallOption) call {
	cl := call{timeout: c.timeout, header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(&cl)
	}
	return cl
}

func (c *Client) do(ctx context.Context, req request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	requestID := requestctx.RequestID(ctx)
	if requestID == "" {
		requestID = id.NewRequestID()
	}

	target, err := c.resolve(req.endpoint, req.call.query)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "transport.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.method),
			attribute.String("url.path", req.endpoint),
			attribute.String("dataplane.request_id", requestID),
		),
	)
	defer span.End()

	log := c.logger.With(
		zap.String("method", req.method),
		zap.String("endpoint", req.endpoint),
		zap.String("request_id", requestID),
	)

	attempts := 0
	schedule := c.policy.schedule()
	operation := func() (*Response, error) {
		attempts++
		resp, err := c.attempt(ctx, req, target, requestID)
		if err == nil {
			c.metrics.TransportAttempt(req.method, "success")
			resp.Attempts = attempts
			return resp, nil
		}
		kind := apperrors.KindOf(err)
		c.metrics.TransportAttempt(req.method, string(kind))
		log.Debug("attempt failed", zap.Int("attempt", attempts), zap.String("kind", string(kind)), zap.Error(err))

		decision := c.policy.Classify(err)
		if !decision.Retryable {
			return nil, backoff.Permanent(err)
		}
		schedule.hint = decision.WaitHint
		return nil, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			kind := apperrors.KindOf(err)
			c.metrics.TransportRetry(string(kind))
			log.Warn("retrying request",
				zap.Int("attempt", attempts),
				zap.Duration("delay", next),
				zap.String("kind", string(kind)),
				zap.Int("status", apperrors.StatusCode(err)),
			)
		}),
	)
	span.SetAttributes(attribute.Int("dataplane.attempts", attempts))

	if err != nil {
		err = c.settle(ctx, err)
		kind := apperrors.KindOf(err)
		span.SetAttributes(attribute.String("dataplane.error_kind", string(kind)))
		if status := apperrors.StatusCode(err); status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.TransportCall(req.method, string(kind), time.Since(started))
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.metrics.TransportCall(req.method, "success", time.Since(started))
	return resp, nil
}

// settle maps whatever the retry loop returned to the last classified error.
// The loop itself reports context causes when the caller aborts between
// attempts.
func (c *Client) settle(ctx context.Context, err error) error {
	if classified, ok := apperrors.As(err); ok {
		return classified
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperrors.Timeout(0, context.Cause(ctx))
		}
		return apperrors.Canceled(context.Cause(ctx))
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

func (c *Client) attempt(ctx context.Context, req request, target, requestID string) (*Response, error) {
	timeout := req.call.timeout
	attemptCtx, cancel := context.WithTimeoutCause(ctx, timeout, errAttemptTimeout)
	defer cancel()

	var body io.Reader
	if req.payload != nil {
		body = bytes.NewReader(req.payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, target, body)
	if err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindClient, Message: "build request", Cause: err}
	}
	if err := c.applyHeaders(attemptCtx, httpReq, req, requestID); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, timeout, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, timeout, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       data,
			RequestID:  requestID,
		}, nil
	}

	failure := classifyResponse(resp.StatusCode, resp.Header, data)
	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(auth.Invalidator); ok {
			inv.Invalidate()
		}
	}
	return nil, failure
}

func (c *Client) transportError(ctx, attemptCtx context.Context, timeout time.Duration, err error) error {
	if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
		return apperrors.Timeout(timeout, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperrors.Timeout(0, err)
		}
		return apperrors.Canceled(err)
	}
	return apperrors.Network(err)
}

func (c *Client) applyHeaders(ctx context.Context, httpReq *http.Request, req request, requestID string) error {
	h := httpReq.Header
	h.Set("Accept", "application/json")
	if req.contentType != "" {
		h.Set("Content-Type", req.contentType)
	}
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	if c.language != "" {
		h.Set("Accept-Language", c.language)
	}
	h.Set(HeaderRequestID, requestID)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &apperrors.Error{Kind: apperrors.KindClient, Message: "resolve auth token", Cause: err}
	}
	if token = strings.TrimSpace(token); token != "" {
		h.Set("Authorization", "Bearer "+token)
		h.Set(HeaderRequestTimestamp, c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}

	for key, values := range req.call.header {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(h))
	return nil
}

func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", &apperrors.Error{Kind: apperrors.KindClient, Message: "invalid endpoint", Cause: err}
	}
	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.baseURL.JoinPath(ref.Path)
		u.RawQuery = ref.RawQuery
	}
	if len(query) > 0 {
		merged := u.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u.String(), nil
}
