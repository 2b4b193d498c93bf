package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

// Deps wires the gate to its state store and notifier.
type Deps struct {
	Store    ports.StateStore
	Notifier ports.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
	DryRun   bool
}

// Gate decides whether a channel must alert and owns its persisted state.
// Calls for the same channel must not overlap; the store has no locking.
type Gate struct {
	store    ports.StateStore
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
	dryRun   bool
}

// Request is one run's input for a single alert channel.
type Request struct {
	Channel  string
	Title    string
	Entities []domain.Entity
	Policy   domain.EscalationPolicy
	Partial  bool
}

// Outcome reports what the gate did. State is the state after the run,
// equal to the loaded state whenever nothing was committed.
type Outcome struct {
	Decision  domain.AlertDecision
	State     domain.NotificationState
	Sent      bool
	Persisted bool
}

// ErrDispatch wraps notifier failures returned from Process.
var ErrDispatch = errors.New("alert dispatch failed")

// New builds a gate; a nil clock uses time.Now.
func New(deps Deps) *Gate {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Gate{
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   logger,
		now:      now,
		dryRun:   deps.DryRun,
	}
}

// Process loads the channel state, decides, dispatches and commits. State is
// written only after the notifier succeeded; a failed send leaves it intact
// so the next run recomputes and resends the same alert.
func (g *Gate) Process(ctx context.Context, req Request) (Outcome, error) {
	log := g.logger.With("channel", req.Channel)
	now := g.now()

	state := g.load(ctx, req.Channel, log)
	decision := Decide(req.Entities, req.Policy, state)
	out := Outcome{Decision: decision, State: state}

	if !decision.ShouldSend {
		log.Debug("no alert required", "entities", len(req.Entities), "notified", len(state.NotifiedIDs))
		if req.Partial || g.dryRun {
			return out, nil
		}
		pruned, changed := Prune(state, req.Entities, now)
		if !changed {
			return out, nil
		}
		out.State = pruned
		out.Persisted = g.persist(ctx, req.Channel, pruned, log)
		log.Info("resolved entities forgotten",
			"before", len(state.NotifiedIDs),
			"after", len(pruned.NotifiedIDs))
		return out, nil
	}

	log.Info("alert required",
		"reason", decision.Reason,
		"reasons", decision.Reasons,
		"entities", len(decision.EntitiesToReport),
		"new", len(decision.NewIDs),
		"escalated", len(decision.EscalatedIDs),
		"urgent", decision.Urgent,
		"partial", req.Partial)

	if g.dryRun {
		log.Info("dry run, alert not sent")
		return out, nil
	}

	if g.notifier == nil {
		return out, fmt.Errorf("%w: channel %s: no notifier configured", ErrDispatch, req.Channel)
	}

	alert := domain.Alert{
		Channel:     req.Channel,
		Title:       req.Title,
		Decision:    decision,
		Partial:     req.Partial,
		GeneratedAt: now,
	}
	if err := g.notifier.Notify(ctx, alert); err != nil {
		log.Error("alert dispatch failed, state left unchanged", "error", err)
		return out, fmt.Errorf("%w: channel %s: %w", ErrDispatch, req.Channel, err)
	}

	out.Sent = true
	out.State = Commit(req.Entities, now)
	out.Persisted = g.persist(ctx, req.Channel, out.State, log)
	return out, nil
}

// load fails open: a missing, corrupt or unreadable state is treated as empty
// so the run over-notifies rather than never notifying again.
func (g *Gate) load(ctx context.Context, channel string, log *slog.Logger) domain.NotificationState {
	if g.store == nil {
		return domain.NotificationState{}
	}
	state, err := g.store.Read(ctx, channel)
	switch {
	case err == nil:
		return state
	case errors.Is(err, domain.ErrStateNotFound):
		log.Info("no notification state yet, starting empty")
	case errors.Is(err, domain.ErrStateCorrupt):
		log.Warn("notification state corrupt, starting empty", "error", err)
	default:
		log.Warn("notification state unreadable, starting empty", "error", err)
	}
	return domain.NotificationState{}
}

func (g *Gate) persist(ctx context.Context, channel string, state domain.NotificationState, log *slog.Logger) bool {
	if g.store == nil {
		return false
	}
	if err := g.store.Write(ctx, channel, state); err != nil {
		log.Error("persist notification state failed, next run may repeat this alert", "error", err)
		return false
	}
	return true
}
