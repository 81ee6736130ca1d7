package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/maltedev/amazon-search-scraper/internal/ratelimit"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.5"
	fallbackUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrPermanent        = errors.New("permanent failure")
)

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Permanent reports whether retrying the same URL cannot succeed.
func (e *StatusError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Response is the raw outcome of a single request attempt.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs one GET request. Implementations must honour ctx
// and apply their own per-request timeout.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
}

type Options struct {
	MaxRetries int
	UserAgents []string
	Limiter    ratelimit.RateLimiter
	Logger     *slog.Logger
}

// Fetcher issues paced, retried GET requests with randomized headers.
type Fetcher struct {
	transport  Transport
	limiter    ratelimit.RateLimiter
	maxRetries int
	userAgents []string
	pick       func(n int) int
	logger     *slog.Logger
}

func New(t Transport, opts Options) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{fallbackUserAgent}
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewPacer(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Fetcher{
		transport:  t,
		limiter:    opts.Limiter,
		maxRetries: opts.MaxRetries,
		userAgents: opts.UserAgents,
		pick:       rand.Intn,
		logger:     opts.Logger.With("component", "fetcher"),
	}
}

// Fetch returns the body of url. Every attempt is preceded by the limiter's
// pause. Failures are retried up to MaxRetries times, except 404 and 410
// which stop immediately. The returned error means "no document for this URL".
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pacing interrupted: %w", err)
		}

		body, err := f.attempt(ctx, url)
		if err == nil {
			f.logger.Debug("fetched", "url", url, "attempt", attempt, "bytes", len(body))
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Permanent() {
			f.logger.Warn("permanent failure, not retrying", "url", url, "status", statusErr.StatusCode)
			return nil, fmt.Errorf("fetch %s: %w: %w", url, ErrPermanent, err)
		}

		f.logger.Warn("fetch attempt failed", "url", url, "attempt", attempt, "max_retries", f.maxRetries, "error", err)
	}

	f.logger.Error("failed to fetch", "url", url, "attempts", f.maxRetries, "error", lastErr)
	return nil, fmt.Errorf("fetch %s after %d attempts: %w: %w", url, f.maxRetries, ErrRetriesExhausted, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.transport.Get(ctx, url, f.Headers())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}

// Headers builds a fresh header set with a randomly chosen user agent.
func (f *Fetcher) Headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", f.userAgents[f.pick(len(f.userAgents))])
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Language", acceptLanguageHeader)
	h.Set("Connection", "keep-alive")
	return h
}
