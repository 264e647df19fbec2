// Package source implements the upstream clients: the BCB reference-rate
// series, Open-Meteo geocoding and forecasts, Yahoo Finance futures quotes,
// RSS feeds and HTML commodity-exchange pages.
//
// Clients never return errors out-of-band. Every fetch yields a Result that
// carries either records or the failure, so one flaky upstream never aborts
// an aggregation pass.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/infra"
)

// --- Sentinel errors ---

var (
	// ErrUpstreamUnavailable covers network failures and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrParseFailure covers malformed or unexpected upstream payloads.
	ErrParseFailure = errors.New("upstream payload could not be parsed")
)

// FetchError describes a failed upstream call.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Status     string
	Body       string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Source, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Source, e.URL, e.Cause)
}

// Unwrap exposes both the taxonomy sentinel and the transport cause.
func (e *FetchError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrUpstreamUnavailable, e.Cause}
	}
	return []error{ErrUpstreamUnavailable}
}

func parseError(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, ErrParseFailure, err)
}

// Result is the outcome of one source fetch.
type Result[T any] struct {
	Source  string
	Records []T
	Err     error
	Elapsed time.Duration
}

// OK reports whether the fetch succeeded. Zero records is still a success.
func (r Result[T]) OK() bool { return r.Err == nil }

// --- Shared HTTP plumbing ---

// DefaultUserAgent identifies the service to upstreams that require it.
const DefaultUserAgent = "agrodash/1.0 (+https://github.com/geraldosnetto/agro-sub002)"

// maxBody bounds how much of a response is read into memory.
const maxBody = 8 << 20

// base holds what every client shares.
type base struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	logger    zerolog.Logger
	limiter   *infra.HostLimiter
}

// Option configures a source client.
type Option func(*base)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(b *base) { b.http = c } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(b *base) { b.userAgent = ua } }

// WithTimeout bounds every fetch.
func WithTimeout(d time.Duration) Option { return func(b *base) { b.timeout = d } }

// WithLogger sets the logger used for fetch warnings.
func WithLogger(l zerolog.Logger) Option { return func(b *base) { b.logger = l } }

// WithLimiter throttles requests per upstream host.
func WithLimiter(l *infra.HostLimiter) Option { return func(b *base) { b.limiter = l } }

// FromConfig returns the options implied by the sources config section.
func FromConfig(cfg config.SourcesConfig) []Option {
	var opts []Option
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.UserAgent))
	}
	return opts
}

func newBase(opts []Option) base {
	b := base{
		http:      &http.Client{},
		userAgent: DefaultUserAgent,
		timeout:   10 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// withTimeout derives the per-call context.
func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// get performs a GET and returns the body of a 2xx response.
func (b *base) get(ctx context.Context, source, url, accept string) ([]byte, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, url); err != nil {
			return nil, &FetchError{Source: source, URL: url, Cause: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: source, URL: url, Cause: err}
	}
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &FetchError{Source: source, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{
			Source:     source,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &FetchError{Source: source, URL: url, Cause: err}
	}
	return body, nil
}

// finish builds the Result and logs failures at warn level.
func finish[T any](b *base, source, kind string, start time.Time, records []T, err error) Result[T] {
	r := Result[T]{Source: source, Elapsed: time.Since(start)}
	if err != nil {
		r.Err = err
		b.logger.Warn().Err(err).
			Str("source", source).
			Str("kind", kind).
			Dur("elapsed", r.Elapsed).
			Msg("source fetch failed")
		return r
	}
	r.Records = records
	return r
}
