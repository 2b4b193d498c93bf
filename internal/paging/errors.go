package paging

import (
	"errors"
	"fmt"
	"time"

	"MDMWatch/internal/domain"
)

// ErrRateLimitExhausted matches a FetchError raised after the retry ceiling.
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// Kind classifies unrecoverable fetch failures.
type Kind string

const (
	KindTransport          Kind = "transport"
	KindStatus             Kind = "status"
	KindDecode             Kind = "decode"
	KindCursorCycle        Kind = "cursor_cycle"
	KindRateLimitExhausted Kind = "rate_limit_exhausted"
	KindCanceled           Kind = "canceled"
)

// FetchError reports why a walk stopped early. Partial holds every entity
// accumulated before the failure, in arrival order.
type FetchError struct {
	Kind       Kind
	Cursor     string
	StatusCode int
	Partial    domain.FetchResult
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s after %d entities", e.Kind, len(e.Partial.Entities))
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers test for ErrRateLimitExhausted without unpacking the kind.
func (e *FetchError) Is(target error) bool {
	return target == ErrRateLimitExhausted && e.Kind == KindRateLimitExhausted
}

// PartialResult extracts the partial result carried by a FetchError.
func PartialResult(err error) (domain.FetchResult, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Partial, true
	}
	return domain.FetchResult{}, false
}

// throttledError signals a rate-limited response; it never leaves the package.
type throttledError struct {
	status     int
	retryAfter time.Duration
}

func (e *throttledError) Error() string {
	return fmt.Sprintf("throttled with status %d", e.status)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "decode page: " + e.err.Error()
}

func (e *decodeError) Unwrap() error {
	return e.err
}
