package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"MDMWatch/internal/classifier"
	"MDMWatch/internal/config"
	"MDMWatch/internal/domain"
	"MDMWatch/internal/gate"
	"MDMWatch/internal/infrastructure/graph"
	"MDMWatch/internal/infrastructure/scheduler"
	"MDMWatch/internal/paging"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/usecase"
	"MDMWatch/internal/version"
)

// ErrNoCredentials is returned by Run and Watch when Graph is not configured.
var ErrNoCredentials = errors.New("graph credentials are not configured")

// Options adjusts wiring for a single invocation.
type Options struct {
	DryRun bool
	// HTTPClient replaces the OAuth2 client, e.g. behind a token-injecting proxy.
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	store   ports.StateStore
	monitor *usecase.Monitor
	checks  []usecase.Check
	closers []func() error
}

// New builds the application. State storage is always opened; the monitor is
// only wired when an authenticated Graph client is available.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	registry := classifier.Default()
	if err := cfg.Validate(registry.Has); err != nil {
		return nil, fmt.Errorf("invalid configuration (classifiers: %s): %w", strings.Join(registry.Names(), ", "), err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	store, closeStore, err := openStore(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	clock := opts.Clock
	if clock == nil {
		loc := cfg.Scheduler.Location()
		clock = func() time.Time { return time.Now().In(loc) }
	}

	client := opts.HTTPClient
	if client == nil {
		client, err = graph.NewHTTPClient(ctx, graph.Credentials{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Authority:    cfg.Graph.Authority,
		}, cfg.Graph.Timeout)
		if err != nil {
			baseLogger.Warn("graph client unavailable, runs are disabled", "error", err)
			client = nil
		}
	}

	fetcher := paging.NewFetcher(paging.Options{
		Client:    client,
		BaseURL:   cfg.Graph.BaseURL,
		PageDelay: cfg.Fetch.PageDelay,
		Retry:     retryPolicy(cfg.Fetch.Retry),
		UserAgent: userAgent(cfg.Fetch.UserAgent),
		Logger:    baseLogger.With("component", "paging"),
	})
	a.checks, err = buildChecks(registry, cfg.Checks, fetcher, baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if client == nil {
		return a, nil
	}

	notifier, closeNotifiers, err := buildNotifier(cfg, client, baseLogger.With("component", "notify"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifiers)

	g := gate.New(gate.Deps{
		Store:    store,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "gate"),
		Clock:    clock,
		DryRun:   opts.DryRun,
	})
	a.monitor = usecase.NewMonitor(usecase.MonitorDeps{
		Fetcher: fetcher,
		Gate:    g,
		Checks:  a.checks,
		Logger:  baseLogger.With("component", "monitor"),
		Clock:   clock,
	})
	return a, nil
}

// Run performs a single monitoring pass.
func (a *Application) Run(ctx context.Context, opts usecase.RunOptions) (usecase.Summary, error) {
	if a.monitor == nil {
		return usecase.Summary{}, ErrNoCredentials
	}
	return a.monitor.RunOnce(ctx, opts)
}

// Watch runs immediately and then on the configured interval until ctx ends.
func (a *Application) Watch(ctx context.Context) error {
	if a.monitor == nil {
		return ErrNoCredentials
	}

	driver := scheduler.NewTickerScheduler(a.cfg.Scheduler.Interval)
	sched := usecase.NewScheduler(driver, a.monitor, usecase.RunOptions{})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("watching", "interval", a.cfg.Scheduler.Interval.String(), "checks", len(a.checks))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Checks lists configured checks in execution order.
func (a *Application) Checks() []usecase.Check {
	return a.checks
}

// State returns the persisted notification state for a check.
func (a *Application) State(ctx context.Context, check string) (domain.NotificationState, error) {
	if !a.hasCheck(check) {
		return domain.NotificationState{}, fmt.Errorf("unknown check %q", check)
	}
	return a.store.Read(ctx, check)
}

// ResetState forgets what a check already notified, so the next run alerts again.
func (a *Application) ResetState(ctx context.Context, check string) error {
	if !a.hasCheck(check) {
		return fmt.Errorf("unknown check %q", check)
	}
	if eraser, ok := a.store.(ports.StateEraser); ok {
		return eraser.Delete(ctx, check)
	}
	return a.store.Write(ctx, check, domain.NotificationState{})
}

// Close releases storage and notifier connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) hasCheck(name string) bool {
	for _, c := range a.checks {
		if c.Name == name {
			return true
		}
	}
	return false
}

func retryPolicy(rc config.RetryConfig) paging.RetryPolicy {
	return paging.RetryPolicy{
		Initial:         rc.Initial,
		Multiplier:      rc.Multiplier,
		Max:             rc.Max,
		Jitter:          rc.Jitter,
		MaxAttempts:     rc.MaxAttempts,
		HonorRetryAfter: rc.HonorRetryAfter != nil && *rc.HonorRetryAfter,
	}
}

func userAgent(configured string) string {
	if configured != "" {
		return configured
	}
	return version.UserAgent()
}
