package paging

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRateLimitBackoff = 60 * time.Second
)

// RetryPolicy controls how rate-limited requests are retried on the same
// cursor. The zero MaxAttempts retries forever; Multiplier 1 with Jitter 0
// gives a fixed interval.
type RetryPolicy struct {
	Initial         time.Duration
	Multiplier      float64
	Max             time.Duration
	Jitter          float64
	MaxAttempts     int
	HonorRetryAfter bool
}

// DefaultRetryPolicy waits a fixed 60s and never gives up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    defaultRateLimitBackoff,
		Multiplier: 1,
		Max:        defaultRateLimitBackoff,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Initial <= 0 {
		p.Initial = defaultRateLimitBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	p = p.normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.Multiplier = p.Multiplier
	exp.MaxInterval = p.Max
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	if p.MaxAttempts > 0 {
		return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts))
	}
	return exp
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
