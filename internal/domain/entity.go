package domain

import "time"

// Entity is one record returned by a collection endpoint (device, token,
// certificate, approval request). The core only relies on ID being stable
// across runs for the same underlying object.
type Entity struct {
	ID         string
	Label      string
	Age        time.Duration
	Attributes map[string]any
}

// DisplayName prefers the human readable label and falls back to the ID.
func (e Entity) DisplayName() string {
	if e.Label != "" {
		return e.Label
	}
	return e.ID
}

// Page is one response unit of a cursor-paginated collection.
type Page struct {
	Entities []Entity
	Next     string
}

// Terminal reports whether the page carries no next cursor.
func (p Page) Terminal() bool {
	return p.Next == ""
}

// FetchResult is the ordered concatenation of every page of one query.
// Complete is false when the walk stopped early on an unrecoverable error;
// such a result must not be used to conclude that nothing is pending.
type FetchResult struct {
	Entities []Entity
	Pages    int
	Requests int
	Complete bool
}

// IDs returns entity identifiers in result order.
func (r FetchResult) IDs() []string {
	ids := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		ids[i] = e.ID
	}
	return ids
}

// Classification is what a classifier hands to the notification gate:
// the interesting subset plus the caller-computed secondary trigger.
type Classification struct {
	Entities     []Entity
	ExpiringSoon bool
}
