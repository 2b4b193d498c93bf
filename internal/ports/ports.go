package ports

import (
	"context"
	"time"

	"MDMWatch/internal/domain"
)

// CollectionFetcher materialises every page of a cursor-paginated collection.
type CollectionFetcher interface {
	Fetch(ctx context.Context, startURI string) (domain.FetchResult, error)
}

// Classifier turns raw entities into the interesting ones using domain rules.
type Classifier interface {
	Classify(entities []domain.Entity, now time.Time) domain.Classification
}

// StateStore persists notification state per alert channel.
// Read returns domain.ErrStateNotFound for channels never written and
// domain.ErrStateCorrupt when the stored payload cannot be decoded.
type StateStore interface {
	Read(ctx context.Context, key string) (domain.NotificationState, error)
	Write(ctx context.Context, key string, state domain.NotificationState) error
}

// StateEraser is implemented by stores that can forget a channel.
type StateEraser interface {
	Delete(ctx context.Context, key string) error
}

// Notifier composes and transmits an alert (mail, chat, webhook, bus).
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

// Scheduler controls when monitoring runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
