package gate

import (
	"time"

	"MDMWatch/internal/domain"
)

// Decide evaluates every trigger against the current snapshot and the state
// persisted by the previous successful send. It has no side effects.
func Decide(entities []domain.Entity, policy domain.EscalationPolicy, state domain.NotificationState) domain.AlertDecision {
	notified := state.IDSet()

	var decision domain.AlertDecision
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}

		if _, ok := notified[e.ID]; !ok {
			decision.NewIDs = append(decision.NewIDs, e.ID)
		}
		if crossed(e.Age, policy.EscalationThreshold) {
			decision.EscalatedIDs = append(decision.EscalatedIDs, e.ID)
		}
		if crossed(e.Age, policy.UrgentThreshold) {
			decision.Urgent = true
		}
	}

	decision.Triggers = domain.Triggers{
		NewEntities:       len(decision.NewIDs) > 0,
		EscalationCrossed: len(decision.EscalatedIDs) > 0,
		ExpiringSoon:      policy.ExpiringSoon,
		Forced:            policy.ForceNotification,
	}
	decision.Reasons = decision.Triggers.Reasons()
	decision.Reason = decision.Triggers.Primary()
	decision.ShouldSend = decision.Triggers.Any()

	if decision.ShouldSend {
		decision.EntitiesToReport = append([]domain.Entity(nil), entities...)
	}
	return decision
}

// Commit is the state after a successful send: the notified set is replaced
// by the current snapshot, so entities absent from it are forgotten.
func Commit(entities []domain.Entity, now time.Time) domain.NotificationState {
	sentAt := now
	return domain.NotificationState{
		NotifiedIDs:      domain.SortedIDs(entities),
		LastRun:          now,
		LastNotification: &sentAt,
	}
}

// Prune drops notified IDs that are no longer present in a complete snapshot.
// It reports false when nothing was resolved and the state is unchanged.
func Prune(state domain.NotificationState, entities []domain.Entity, now time.Time) (domain.NotificationState, bool) {
	if len(state.NotifiedIDs) == 0 {
		return state, false
	}

	current := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		current[e.ID] = struct{}{}
	}

	kept := make([]string, 0, len(state.NotifiedIDs))
	for _, id := range state.NotifiedIDs {
		if _, ok := current[id]; ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(state.NotifiedIDs) {
		return state, false
	}

	return domain.NotificationState{
		NotifiedIDs:      kept,
		LastRun:          now,
		LastNotification: state.LastNotification,
	}, true
}

func crossed(age, threshold time.Duration) bool {
	return threshold > 0 && age > threshold
}
