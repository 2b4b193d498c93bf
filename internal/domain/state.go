package domain

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrStateNotFound is returned by state stores when a channel has never been persisted.
	ErrStateNotFound = errors.New("notification state not found")
	// ErrStateCorrupt is returned when persisted state cannot be decoded.
	ErrStateCorrupt = errors.New("notification state corrupt")
)

// NotificationState records which entities a channel already alerted on.
// NotifiedIDs is kept sorted and free of duplicates.
type NotificationState struct {
	NotifiedIDs      []string   `json:"notifiedIds"`
	LastRun          time.Time  `json:"lastRun"`
	LastNotification *time.Time `json:"lastNotification,omitempty"`
}

// IDSet returns NotifiedIDs as a lookup set.
func (s NotificationState) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.NotifiedIDs))
	for _, id := range s.NotifiedIDs {
		set[id] = struct{}{}
	}
	return set
}

// Empty reports whether the state has never been written.
func (s NotificationState) Empty() bool {
	return len(s.NotifiedIDs) == 0 && s.LastRun.IsZero() && s.LastNotification == nil
}

// SortedIDs returns the unique identifiers of entities in ascending order.
func SortedIDs(entities []Entity) []string {
	seen := make(map[string]struct{}, len(entities))
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}
