package report

import (
	"time"

	"MDMWatch/internal/domain"
)

// Message is the JSON shape published to webhooks and the event bus.
type Message struct {
	Channel      string          `json:"channel"`
	Title        string          `json:"title"`
	Subject      string          `json:"subject"`
	Reason       domain.Reason   `json:"reason"`
	Reasons      []domain.Reason `json:"reasons"`
	Urgent       bool            `json:"urgent"`
	Partial      bool            `json:"partial"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	NewIDs       []string        `json:"newIds"`
	EscalatedIDs []string        `json:"escalatedIds"`
	Entities     []MessageEntity `json:"entities"`
}

// MessageEntity is one reported entity.
type MessageEntity struct {
	ID       string  `json:"id"`
	Label    string  `json:"label,omitempty"`
	AgeHours float64 `json:"ageHours"`
}

// NewMessage flattens an alert for machine consumers.
func NewMessage(alert domain.Alert) Message {
	d := alert.Decision
	msg := Message{
		Channel:      alert.Channel,
		Title:        title(alert),
		Subject:      Subject(alert),
		Reason:       d.Reason,
		Reasons:      nonNil(d.Reasons),
		Urgent:       d.Urgent,
		Partial:      alert.Partial,
		GeneratedAt:  alert.GeneratedAt.UTC(),
		NewIDs:       nonNil(d.NewIDs),
		EscalatedIDs: nonNil(d.EscalatedIDs),
		Entities:     make([]MessageEntity, 0, len(d.EntitiesToReport)),
	}
	for _, e := range d.EntitiesToReport {
		msg.Entities = append(msg.Entities, MessageEntity{
			ID:       e.ID,
			Label:    e.Label,
			AgeHours: e.Age.Hours(),
		})
	}
	return msg
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
