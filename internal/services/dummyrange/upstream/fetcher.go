package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/dummyrange/internal/platform/timeouts"
)

const (
	tracerName      = "github.com/louisbranch/dummyrange/internal/services/dummyrange/upstream"
	maxResponseBody = 1 << 20
)

// RetryPolicy bounds the retry loop of a Fetcher.
type RetryPolicy struct {
	// MaxRetries is the number of retries per proxy after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps every backoff delay.
	MaxDelay time.Duration
	// NetworkBackoffFactor is the growth factor for transport failures; rate
	// limits always double.
	NetworkBackoffFactor float64
	// RequestTimeout caps each attempt.
	RequestTimeout time.Duration
}

// DefaultRetryPolicy returns the production retry settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           3,
		BaseDelay:            time.Second,
		MaxDelay:             10 * time.Second,
		NetworkBackoffFactor: 1.5,
		RequestTimeout:       timeouts.UpstreamRequest,
	}
}

// RateLimitDelay is min(BaseDelay*2^attempt, MaxDelay).
func (p RetryPolicy) RateLimitDelay(attempt int) time.Duration {
	return p.backoff(2, attempt)
}

// NetworkDelay is min(BaseDelay*NetworkBackoffFactor^attempt, MaxDelay).
func (p RetryPolicy) NetworkDelay(attempt int) time.Duration {
	factor := p.NetworkBackoffFactor
	if factor < 1 {
		factor = 1
	}
	return p.backoff(factor, attempt)
}

func (p RetryPolicy) backoff(factor float64, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// StatusKind classifies a progress notification.
type StatusKind string

const (
	// StatusRetrying is reported before each backoff wait.
	StatusRetrying StatusKind = "retrying"
	// StatusFailover is reported when the fetcher moves to the next proxy.
	StatusFailover StatusKind = "failover"
)

// Retry reasons.
const (
	ReasonRateLimited = "rate-limited"
	ReasonNetwork     = "network"
)

// Status is a user-facing progress report emitted while a request waits.
type Status struct {
	Kind    StatusKind
	Reason  string
	Attempt int
	Delay   time.Duration
	Proxy   string
}

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Body   []byte
}

// Response is a successful upstream reply.
type Response struct {
	StatusCode int
	Body       []byte
	Proxy      string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the outbound client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithSleep overrides how backoff waits are performed.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// WithStatusFunc registers a callback for retry and failover progress.
func WithStatusFunc(fn func(Status)) Option {
	return func(f *Fetcher) {
		f.onStatus = fn
	}
}

// WithTracer overrides the span tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Fetcher) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// Fetcher performs upstream calls with bounded retries and proxy failover.
type Fetcher struct {
	resolver *Resolver
	policy   RetryPolicy
	client   *http.Client
	sleep    func(ctx context.Context, d time.Duration) error
	onStatus func(Status)
	tracer   trace.Tracer
}

// NewFetcher builds a fetcher over resolver.
func NewFetcher(resolver *Resolver, policy RetryPolicy, opts ...Option) *Fetcher {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	f := &Fetcher{
		resolver: resolver,
		policy:   policy,
		client:   http.DefaultClient,
		sleep:    sleepContext,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Do executes req. Rate limits and transport failures are retried with
// backoff on the current proxy; once retries run out the proxy is marked
// failed and the sequence restarts on the next one. Any other non-2xx status
// fails immediately. Cancellation of ctx aborts with ctx.Err().
func (f *Fetcher) Do(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var lastErr error
	for tried := 0; tried < f.resolver.Len(); tried++ {
		proxy := f.resolver.Resolve()
		resp, err := f.throughProxy(ctx, proxy, req)
		if err == nil {
			return resp, nil
		}
		if !failsOver(err) {
			return Response{}, err
		}
		lastErr = err
		f.resolver.MarkFailed(proxy)
		if f.resolver.Remaining() == 0 {
			break
		}
		f.report(Status{Kind: StatusFailover, Reason: reasonFor(err), Proxy: proxy.Name()})
	}
	return Response{}, lastErr
}

func (f *Fetcher) throughProxy(ctx context.Context, proxy Proxy, req Request) (Response, error) {
	for attempt := 0; ; attempt++ {
		status, body, err := f.attempt(ctx, proxy, req, attempt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}

		var delay time.Duration
		var reason string
		switch {
		case err != nil:
			if attempt >= f.policy.MaxRetries {
				return Response{}, networkError(proxy.Name(), err)
			}
			delay, reason = f.policy.NetworkDelay(attempt), ReasonNetwork
		case status == http.StatusTooManyRequests:
			if attempt >= f.policy.MaxRetries {
				return Response{}, rateLimitedError(proxy.Name())
			}
			delay, reason = f.policy.RateLimitDelay(attempt), ReasonRateLimited
		case status < 200 || status > 299:
			return Response{}, httpStatusError(status)
		default:
			return Response{StatusCode: status, Body: body, Proxy: proxy.Name()}, nil
		}

		f.report(Status{Kind: StatusRetrying, Reason: reason, Attempt: attempt + 1, Delay: delay, Proxy: proxy.Name()})
		if err := f.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
}

// attempt performs one HTTP exchange. A non-nil error means the exchange
// itself failed (transport error or per-attempt timeout).
func (f *Fetcher) attempt(ctx context.Context, proxy Proxy, req Request, attempt int) (int, []byte, error) {
	ctx, span := f.tracer.Start(ctx, "upstream.fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(req.Method),
		attribute.String("upstream.proxy", proxy.Name()),
		attribute.Int("upstream.attempt", attempt),
	)

	if f.policy.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.policy.RequestTimeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, proxy.Wrap(req.URL), body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return 0, nil, err
	}
	defer resp.Body.Close()
	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp.StatusCode, payload, nil
}

func (f *Fetcher) report(status Status) {
	if f.onStatus != nil {
		f.onStatus(status)
	}
}

func failsOver(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}

func reasonFor(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return ReasonRateLimited
	}
	return ReasonNetwork
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
