package usecase

import (
	"context"
	"time"

	"MDMWatch/internal/ports"
)

// Scheduler wires the interval driver with the monitor use case.
type Scheduler struct {
	driver  ports.Scheduler
	monitor *Monitor
	opts    RunOptions
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, monitor *Monitor, opts RunOptions) *Scheduler {
	return &Scheduler{driver: driver, monitor: monitor, opts: opts}
}

// Start registers the monitor with the provided scheduler. Run errors are
// already logged per check; the next tick retries.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.monitor == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.monitor.RunOnce(ctx, s.opts); err != nil {
			s.monitor.logger.Error("scheduled run failed", "trigger", trigger.Format(time.RFC3339), "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
