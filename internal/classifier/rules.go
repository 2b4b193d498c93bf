package classifier

import (
	"errors"
	"strings"
	"time"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

// Built-in rule names.
const (
	RuleStale    = "stale"
	RuleExpiring = "expiring"
	RuleMatch    = "match"
	RuleAll      = "all"
)

// stale keeps entities whose timestamp is older than the threshold.
// An entity without a readable timestamp never checked in and is stale.
type stale struct {
	field     string
	threshold time.Duration
}

func newStale(p Params) (ports.Classifier, error) {
	if p.TimeField == "" {
		return nil, errors.New("time_field is required")
	}
	if p.Threshold <= 0 {
		return nil, errors.New("threshold_hours must be positive")
	}
	return stale{field: p.TimeField, threshold: p.Threshold}, nil
}

func (s stale) Classify(entities []domain.Entity, now time.Time) domain.Classification {
	var out domain.Classification
	for _, e := range entities {
		ts, ok := TimeAttr(e, s.field)
		if !ok {
			out.Entities = append(out.Entities, e)
			continue
		}
		age := now.Sub(ts)
		if age > s.threshold {
			e.Age = age
			out.Entities = append(out.Entities, e)
		}
	}
	return out
}

// expiring keeps entities whose expiry lies within the threshold, already
// expired ones included. Age counts from the expiry instant.
type expiring struct {
	field     string
	window    time.Duration
	soonAfter time.Duration
}

func newExpiring(p Params) (ports.Classifier, error) {
	if p.TimeField == "" {
		return nil, errors.New("time_field is required")
	}
	if p.Threshold <= 0 {
		return nil, errors.New("threshold_hours must be positive")
	}
	return expiring{field: p.TimeField, window: p.Threshold, soonAfter: p.ExpiringSoonWindow}, nil
}

func (x expiring) Classify(entities []domain.Entity, now time.Time) domain.Classification {
	var out domain.Classification
	for _, e := range entities {
		ts, ok := TimeAttr(e, x.field)
		if !ok {
			continue
		}
		left := ts.Sub(now)
		if left > x.window {
			continue
		}
		e.Age = 0
		if left < 0 {
			e.Age = -left
		}
		if x.soonAfter > 0 && left <= x.soonAfter {
			out.ExpiringSoon = true
		}
		out.Entities = append(out.Entities, e)
	}
	return out
}

// match keeps entities whose field equals one of the configured values.
type match struct {
	field     string
	values    map[string]struct{}
	timeField string
}

func newMatch(p Params) (ports.Classifier, error) {
	if p.Field == "" {
		return nil, errors.New("field is required")
	}
	if len(p.Values) == 0 {
		return nil, errors.New("values must not be empty")
	}
	values := make(map[string]struct{}, len(p.Values))
	for _, v := range p.Values {
		values[strings.ToLower(v)] = struct{}{}
	}
	return match{field: p.Field, values: values, timeField: p.TimeField}, nil
}

func (m match) Classify(entities []domain.Entity, now time.Time) domain.Classification {
	var out domain.Classification
	for _, e := range entities {
		v, ok := StringAttr(e, m.field)
		if !ok {
			continue
		}
		if _, hit := m.values[strings.ToLower(v)]; !hit {
			continue
		}
		out.Entities = append(out.Entities, withAge(e, m.timeField, now))
	}
	return out
}

// all reports every entity, e.g. pending approval requests.
type all struct {
	timeField string
}

func newAll(p Params) (ports.Classifier, error) {
	return all{timeField: p.TimeField}, nil
}

func (a all) Classify(entities []domain.Entity, now time.Time) domain.Classification {
	out := domain.Classification{Entities: make([]domain.Entity, 0, len(entities))}
	for _, e := range entities {
		out.Entities = append(out.Entities, withAge(e, a.timeField, now))
	}
	return out
}

func withAge(e domain.Entity, field string, now time.Time) domain.Entity {
	if field == "" {
		return e
	}
	if ts, ok := TimeAttr(e, field); ok && now.After(ts) {
		e.Age = now.Sub(ts)
	}
	return e
}
