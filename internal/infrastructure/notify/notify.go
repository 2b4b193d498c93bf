package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/report"
)

// Target is a named delivery channel.
type Target struct {
	Name     string
	Notifier ports.Notifier
}

// Fanout delivers every alert to all targets. It fails if any target failed,
// so the gate keeps its state and every target is retried on the next run.
type Fanout struct {
	targets []Target
	logger  *slog.Logger
}

var _ ports.Notifier = (*Fanout)(nil)

// NewFanout builds a fan-out notifier.
func NewFanout(logger *slog.Logger, targets ...Target) *Fanout {
	return &Fanout{targets: targets, logger: logger}
}

// Targets lists the configured target names.
func (f *Fanout) Targets() []string {
	names := make([]string, len(f.targets))
	for i, t := range f.targets {
		names[i] = t.Name
	}
	return names
}

// Notify sends to every target even after a failure.
func (f *Fanout) Notify(ctx context.Context, alert domain.Alert) error {
	if len(f.targets) == 0 {
		return errors.New("no notification targets configured")
	}
	var errs []error
	for _, t := range f.targets {
		if err := t.Notifier.Notify(ctx, alert); err != nil {
			f.logger.Error("notification target failed", "target", t.Name, "channel", alert.Channel, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		f.logger.Info("alert delivered", "target", t.Name, "channel", alert.Channel)
	}
	return errors.Join(errs...)
}

// Log records alerts in the structured log. Used when no target is configured.
type Log struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*Log)(nil)

// NewLog builds a log-only notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the subject and every reported entity.
func (l *Log) Notify(_ context.Context, alert domain.Alert) error {
	d := alert.Decision
	l.logger.Warn(report.Subject(alert),
		"channel", alert.Channel,
		"reason", d.Reason,
		"new", d.NewIDs,
		"escalated", d.EscalatedIDs,
		"partial", alert.Partial)
	for _, e := range d.EntitiesToReport {
		l.logger.Info("reported entity",
			"channel", alert.Channel,
			"id", e.ID,
			"name", e.DisplayName(),
			"age", report.FormatAge(e.Age))
	}
	return nil
}
