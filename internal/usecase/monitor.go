package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/gate"
	"MDMWatch/internal/paging"
	"MDMWatch/internal/ports"
)

// Check is one monitored collection and the alert channel it feeds.
type Check struct {
	Name       string
	Title      string
	URI        string
	Fetcher    ports.CollectionFetcher
	Classifier ports.Classifier
	Policy     domain.EscalationPolicy
}

// MonitorDeps wires the driven adapters into the run loop.
type MonitorDeps struct {
	Fetcher ports.CollectionFetcher
	Gate    *gate.Gate
	Checks  []Check
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Monitor executes every configured check once per run.
type Monitor struct {
	fetcher ports.CollectionFetcher
	gate    *gate.Gate
	checks  []Check
	logger  *slog.Logger
	now     func() time.Time
}

// RunOptions narrows or forces a run.
type RunOptions struct {
	Only  []string
	Force bool
}

// CheckResult summarises one check of one run.
type CheckResult struct {
	Name        string
	Fetched     int
	Interesting int
	Complete    bool
	Reason      domain.Reason
	Sent        bool
	Err         error
}

// Summary is the outcome of a run.
type Summary struct {
	RunID   string
	Started time.Time
	Checks  []CheckResult
}

// NewMonitor constructs the orchestration component.
func NewMonitor(deps MonitorDeps) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		fetcher: deps.Fetcher,
		gate:    deps.Gate,
		checks:  deps.Checks,
		logger:  logger,
		now:     now,
	}
}

// Checks returns the configured checks.
func (m *Monitor) Checks() []Check {
	return m.checks
}

// RunOnce processes checks sequentially. A failing check never stops the
// others; dispatch failures are joined into the returned error.
func (m *Monitor) RunOnce(ctx context.Context, opts RunOptions) (Summary, error) {
	if m.gate == nil {
		return Summary{}, errors.New("monitor has no notification gate")
	}

	selected, err := m.selectChecks(opts.Only)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{RunID: uuid.NewString(), Started: m.now()}
	log := m.logger.With("run_id", summary.RunID)
	log.Info("run started", "checks", len(selected), "force", opts.Force)

	var errs []error
	for _, check := range selected {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := m.runCheck(ctx, check, opts, log.With("check", check.Name))
		summary.Checks = append(summary.Checks, res)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", check.Name, res.Err))
		}
	}

	log.Info("run finished", "duration", m.now().Sub(summary.Started).String(), "failed", len(errs))
	return summary, errors.Join(errs...)
}

func (m *Monitor) runCheck(ctx context.Context, check Check, opts RunOptions, log *slog.Logger) CheckResult {
	res := CheckResult{Name: check.Name}

	fetcher := check.Fetcher
	if fetcher == nil {
		fetcher = m.fetcher
	}
	if fetcher == nil {
		res.Err = errors.New("no fetcher configured")
		return res
	}

	fetched, err := fetcher.Fetch(ctx, check.URI)
	if err != nil {
		if partial, ok := paging.PartialResult(err); ok {
			fetched = partial
		}
		if ctx.Err() != nil {
			res.Err = err
			return res
		}
		log.Warn("collection incomplete, alerting on partial data",
			"error", err,
			"entities", len(fetched.Entities),
			"pages", fetched.Pages)
	}
	res.Fetched = len(fetched.Entities)
	res.Complete = err == nil && fetched.Complete

	now := m.now()
	classified := domain.Classification{Entities: fetched.Entities}
	if check.Classifier != nil {
		classified = check.Classifier.Classify(fetched.Entities, now)
	}
	res.Interesting = len(classified.Entities)

	policy := check.Policy
	policy.ExpiringSoon = classified.ExpiringSoon
	policy.ForceNotification = policy.ForceNotification || opts.Force

	log.Info("check evaluated",
		"fetched", res.Fetched,
		"interesting", res.Interesting,
		"pages", fetched.Pages,
		"requests", fetched.Requests,
		"complete", res.Complete)

	out, err := m.gate.Process(ctx, gate.Request{
		Channel:  check.Name,
		Title:    check.Title,
		Entities: classified.Entities,
		Policy:   policy,
		Partial:  !res.Complete,
	})
	res.Reason = out.Decision.Reason
	res.Sent = out.Sent
	res.Err = err
	return res
}

func (m *Monitor) selectChecks(only []string) ([]Check, error) {
	if len(only) == 0 {
		return m.checks, nil
	}
	byName := make(map[string]Check, len(m.checks))
	for _, c := range m.checks {
		byName[c.Name] = c
	}
	selected := make([]Check, 0, len(only))
	for _, name := range only {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}
