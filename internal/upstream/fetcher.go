// Package upstream performs the single outbound GET each provider endpoint
// needs and classifies what went wrong when it fails.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
)

const (
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies the proxy to providers.
	DefaultUserAgent = "KLIMA-Weather/1.0"

	maxBodyBytes = 4 << 20
	// maxDetailBytes caps how much of an error body is echoed back to clients.
	maxDetailBytes = 2048
)

// Options configures a Fetcher. Zero values use package defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Breaker   BreakerConfig
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Fetcher issues single-attempt GET requests. There is no retry: a failed
// call is reported to the caller, who decides what to serve.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	breakers  *breakers
	logger    *zap.Logger
}

// New creates a Fetcher. TLS verification is always on.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	client := &http.Client{Timeout: opts.Timeout}
	if opts.Transport != nil {
		client.Transport = opts.Transport
	}
	f := &Fetcher{
		client:    client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
	if opts.Breaker.Enabled {
		f.breakers = newBreakers(opts.Breaker)
	}
	return f
}

// BreakerState reports the circuit state for provider, or "disabled".
func (f *Fetcher) BreakerState(provider string) string {
	if f.breakers == nil {
		return "disabled"
	}
	return f.breakers.State(provider)
}

// Get fetches url on behalf of provider and returns the response body.
// Failures are returned as *Error.
func (f *Fetcher) Get(ctx context.Context, provider, url string) ([]byte, error) {
	if f.breakers == nil {
		body, err := f.do(ctx, provider, url)
		return f.finish(ctx, provider, body, err)
	}

	// Provider-side 4xx replies are returned as results, not failures,
	// so that a bad key or unknown location does not trip the breaker.
	res, err := f.breakers.get(provider).Execute(func() (interface{}, error) {
		body, err := f.do(ctx, provider, url)
		var upErr *Error
		if errors.As(err, &upErr) && upErr.Status >= 400 && upErr.Status < 500 && upErr.Status != http.StatusTooManyRequests {
			return upErr, nil
		}
		return body, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return f.finish(ctx, provider, nil, &Error{Provider: provider, Detail: err.Error(), err: ErrCircuitOpen})
	}
	if err != nil {
		return f.finish(ctx, provider, nil, err)
	}
	if upErr, ok := res.(*Error); ok {
		return f.finish(ctx, provider, nil, upErr)
	}
	body, _ := res.([]byte)
	return f.finish(ctx, provider, body, nil)
}

func (f *Fetcher) finish(ctx context.Context, provider string, body []byte, err error) ([]byte, error) {
	if err != nil {
		category := CategorizeError(err)
		observability.UpstreamErrorsTotal.WithLabelValues(provider, string(category)).Inc()
		observability.LoggerFromContext(ctx, f.logger).Debug("upstream call failed",
			zap.String("provider", provider),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, provider, url string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(provider, "error").Inc()
		return nil, &Error{Provider: provider, Detail: err.Error(), err: fmt.Errorf("%w: build request: %v", ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(provider, "error").Inc()
		observability.UpstreamDurationSeconds.WithLabelValues(provider, "error").Observe(time.Since(start).Seconds())
		cause := ErrTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			cause = fmt.Errorf("%w: request timeout: %w", ErrTransport, err)
		}
		return nil, &Error{Provider: provider, Detail: err.Error(), err: cause}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(provider, status).Inc()
	observability.UpstreamDurationSeconds.WithLabelValues(provider, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Provider: provider,
			Status:   resp.StatusCode,
			Detail:   truncate(body, maxDetailBytes),
			Body:     body,
			err:      statusError(resp.StatusCode),
		}
	}
	if readErr != nil {
		return nil, &Error{Provider: provider, Detail: readErr.Error(), err: fmt.Errorf("%w: read body: %v", ErrTransport, readErr)}
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
