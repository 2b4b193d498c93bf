package paging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

const (
	defaultUserAgent = "MDMWatch/1.0"
	maxPageBytes     = 32 << 20
	maxErrorSnippet  = 512
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Fetcher. A zero PageDelay disables pacing.
type Options struct {
	Client    *http.Client
	BaseURL   string
	Format    PageFormat
	PageDelay time.Duration
	Retry     RetryPolicy
	UserAgent string
	Logger    *slog.Logger
	Sleep     SleepFunc
}

// Fetcher walks next-link paginated collections, absorbing rate limiting.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	format    PageFormat
	limiter   *rate.Limiter
	retry     RetryPolicy
	userAgent string
	logger    *slog.Logger
	sleep     SleepFunc
}

var _ ports.CollectionFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a 60s timeout default.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	var limiter *rate.Limiter
	if opts.PageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.PageDelay), 1)
	}

	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Fetcher{
		client:    client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		format:    opts.Format.withDefaults(),
		limiter:   limiter,
		retry:     retry,
		userAgent: userAgent,
		logger:    logger,
		sleep:     sleep,
	}
}

// WithFormat returns a fetcher sharing client and pacing but decoding pages
// with another envelope layout.
func (f *Fetcher) WithFormat(pf PageFormat) *Fetcher {
	clone := *f
	clone.format = pf.withDefaults()
	return &clone
}

// Fetch returns every entity reachable from startURI in page arrival order.
// On an unrecoverable error it returns the entities gathered so far together
// with a *FetchError; the result is then marked incomplete.
func (f *Fetcher) Fetch(ctx context.Context, startURI string) (domain.FetchResult, error) {
	result := domain.FetchResult{Entities: []domain.Entity{}}
	cursor := strings.TrimSpace(startURI)
	seen := map[string]struct{}{}
	bo := f.retry.newBackOff()

	fail := func(kind Kind, status int, err error) (domain.FetchResult, error) {
		result.Complete = false
		return result, &FetchError{
			Kind:       kind,
			Cursor:     cursor,
			StatusCode: status,
			Partial:    result,
			Err:        err,
		}
	}

	for cursor != "" {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return fail(KindCanceled, 0, err)
			}
		}

		result.Requests++
		page, err := f.fetchPage(ctx, cursor)

		var throttled *throttledError
		if errors.As(err, &throttled) {
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				f.logger.Error("rate limit retries exhausted",
					"cursor", cursor,
					"requests", result.Requests,
					"entities", len(result.Entities))
				return fail(KindRateLimitExhausted, throttled.status, ErrRateLimitExhausted)
			}
			if f.retry.HonorRetryAfter && throttled.retryAfter > wait {
				wait = throttled.retryAfter
			}
			f.logger.Warn("rate limited, backing off",
				"cursor", cursor,
				"status", throttled.status,
				"wait", wait.String())
			if err := f.sleep(ctx, wait); err != nil {
				return fail(KindCanceled, 0, err)
			}
			continue
		}
		if err != nil {
			kind, status := classify(ctx, err)
			return fail(kind, status, err)
		}

		bo.Reset()
		seen[cursor] = struct{}{}
		result.Pages++
		result.Entities = append(result.Entities, page.Entities...)

		f.logger.Debug("page fetched",
			"page", result.Pages,
			"entities", len(page.Entities),
			"total", len(result.Entities),
			"terminal", page.Terminal())

		if page.Terminal() {
			break
		}
		if _, dup := seen[page.Next]; dup {
			cursor = page.Next
			return fail(KindCursorCycle, 0, fmt.Errorf("next cursor repeats an earlier page"))
		}
		cursor = page.Next
	}

	result.Complete = true
	return result, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, cursor string) (domain.Page, error) {
	target, err := f.resolve(cursor)
	if err != nil {
		return domain.Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return domain.Page{}, fmt.Errorf("read page: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if isThrottled(resp.StatusCode, body) {
			return domain.Page{}, &throttledError{
				status:     resp.StatusCode,
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		return domain.Page{}, &statusError{status: resp.StatusCode, body: snippet(body)}
	}

	return f.format.Decode(body)
}

func (f *Fetcher) resolve(cursor string) (string, error) {
	parsed, err := url.Parse(cursor)
	if err != nil {
		return "", &decodeError{err: fmt.Errorf("invalid cursor %q: %w", cursor, err)}
	}
	if parsed.IsAbs() {
		return cursor, nil
	}
	if f.baseURL == "" {
		return "", &decodeError{err: fmt.Errorf("relative cursor %q without base url", cursor)}
	}
	return f.baseURL + "/" + strings.TrimLeft(cursor, "/"), nil
}

func classify(ctx context.Context, err error) (Kind, int) {
	if ctx.Err() != nil {
		return KindCanceled, 0
	}
	var se *statusError
	if errors.As(err, &se) {
		return KindStatus, se.status
	}
	var de *decodeError
	if errors.As(err, &de) {
		return KindDecode, 0
	}
	return KindTransport, 0
}

var throttleMarkers = []string{"toomanyrequests", "throttl", "activitylimitreached"}

// isThrottled recognises 429 and error bodies carrying a throttling code.
func isThrottled(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status < 400 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range throttleMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet]
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
