package domain

import "time"

// Reason names why an alert is (or is not) sent.
type Reason string

const (
	ReasonNewEntities       Reason = "NewEntities"
	ReasonEscalationCrossed Reason = "EscalationCrossed"
	ReasonExpiringSoon      Reason = "ExpiringSoon"
	ReasonForced            Reason = "Forced"
	ReasonNone              Reason = "None"
)

// Triggers holds every independently evaluated alert condition.
type Triggers struct {
	NewEntities       bool
	EscalationCrossed bool
	ExpiringSoon      bool
	Forced            bool
}

// Any reports whether at least one trigger fired.
func (t Triggers) Any() bool {
	return t.NewEntities || t.EscalationCrossed || t.ExpiringSoon || t.Forced
}

// Reasons lists fired triggers in priority order.
func (t Triggers) Reasons() []Reason {
	var out []Reason
	if t.NewEntities {
		out = append(out, ReasonNewEntities)
	}
	if t.EscalationCrossed {
		out = append(out, ReasonEscalationCrossed)
	}
	if t.ExpiringSoon {
		out = append(out, ReasonExpiringSoon)
	}
	if t.Forced {
		out = append(out, ReasonForced)
	}
	return out
}

// Primary returns the highest-priority fired reason, or ReasonNone.
func (t Triggers) Primary() Reason {
	if reasons := t.Reasons(); len(reasons) > 0 {
		return reasons[0]
	}
	return ReasonNone
}

// EscalationPolicy parameterises one alert channel. ExpiringSoon is computed
// by the caller over the entity set; the gate only reads its truth value.
type EscalationPolicy struct {
	UrgentThreshold     time.Duration
	EscalationThreshold time.Duration
	ForceNotification   bool
	ExpiringSoon        bool
}

// AlertDecision is the gate's verdict for one run of one channel.
type AlertDecision struct {
	ShouldSend       bool
	Reason           Reason
	Reasons          []Reason
	Triggers         Triggers
	Urgent           bool
	NewIDs           []string
	EscalatedIDs     []string
	EntitiesToReport []Entity
}

// Alert is the message handed to notifiers once the gate decided to send.
type Alert struct {
	Channel     string
	Title       string
	Decision    AlertDecision
	Partial     bool
	GeneratedAt time.Time
}
