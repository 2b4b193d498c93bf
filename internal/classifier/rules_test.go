package classifier

import (
	"encoding/json"
	"testing"
	"time"

	"MDMWatch/internal/domain"
)

var now = time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC)

func device(id, lastSync string) domain.Entity {
	attrs := map[string]any{"deviceName": id + "-laptop"}
	if lastSync != "" {
		attrs["lastSyncDateTime"] = lastSync
	}
	return domain.Entity{ID: id, Attributes: attrs}
}

func ids(c domain.Classification) []string {
	out := make([]string, len(c.Entities))
	for i, e := range c.Entities {
		out[i] = e.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStaleClassifier(t *testing.T) {
	t.Parallel()

	c, err := Default().Build(RuleStale, Params{TimeField: "lastSyncDateTime", Threshold: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	got := c.Classify([]domain.Entity{
		device("fresh", "2026-10-09T12:00:00Z"),
		device("old", "2026-08-01T12:00:00.1234567Z"),
		device("never", ""),
		device("zero", "0001-01-01T00:00:00Z"),
	}, now)

	if want := []string{"old", "never", "zero"}; !equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if got.Entities[0].Age < 69*24*time.Hour {
		t.Fatalf("expected age from last sync, got %s", got.Entities[0].Age)
	}
	if got.ExpiringSoon {
		t.Fatalf("stale rule must not flag expiring soon")
	}
}

func TestExpiringClassifier(t *testing.T) {
	t.Parallel()

	c, err := Default().Build(RuleExpiring, Params{
		TimeField:          "expirationDateTime",
		Threshold:          30 * 24 * time.Hour,
		ExpiringSoonWindow: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	token := func(id, exp string) domain.Entity {
		return domain.Entity{ID: id, Attributes: map[string]any{"expirationDateTime": exp}}
	}
	entities := []domain.Entity{
		token("far", "2027-01-01T00:00:00Z"),
		token("month", "2026-10-30T12:00:00Z"),
		token("expired", "2026-10-08T12:00:00Z"),
		{ID: "no-date"},
	}

	got := c.Classify(entities, now)
	if want := []string{"month", "expired"}; !equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if got.Entities[0].Age != 0 {
		t.Fatalf("unexpired entity should have zero age, got %s", got.Entities[0].Age)
	}
	if got.Entities[1].Age != 48*time.Hour {
		t.Fatalf("expected age since expiry 48h, got %s", got.Entities[1].Age)
	}
	if !got.ExpiringSoon {
		t.Fatalf("expected expiring soon because one entity already expired")
	}

	got = c.Classify(entities[:2], now)
	if got.ExpiringSoon {
		t.Fatalf("20 days left is outside the 7 day window")
	}
}

func TestMatchClassifier(t *testing.T) {
	t.Parallel()

	c, err := Default().Build(RuleMatch, Params{
		Field:     "complianceState",
		Values:    []string{"noncompliant", "InGracePeriod"},
		TimeField: "lastSyncDateTime",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	entities := []domain.Entity{
		{ID: "a", Attributes: map[string]any{"complianceState": "NonCompliant", "lastSyncDateTime": "2026-10-10T10:00:00Z"}},
		{ID: "b", Attributes: map[string]any{"complianceState": "compliant"}},
		{ID: "c", Attributes: map[string]any{"complianceState": "inGracePeriod"}},
		{ID: "d"},
	}
	got := c.Classify(entities, now)
	if want := []string{"a", "c"}; !equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if got.Entities[0].Age != 2*time.Hour {
		t.Fatalf("expected 2h age, got %s", got.Entities[0].Age)
	}
}

func TestAllClassifierKeepsEverything(t *testing.T) {
	t.Parallel()

	c, err := Default().Build(RuleAll, Params{TimeField: "createdDateTime"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	entities := []domain.Entity{
		{ID: "req-1", Attributes: map[string]any{"createdDateTime": "2026-10-09T12:00:00Z"}},
		{ID: "req-2"},
	}
	got := c.Classify(entities, now)
	if want := []string{"req-1", "req-2"}; !equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if got.Entities[0].Age != 24*time.Hour || got.Entities[1].Age != 0 {
		t.Fatalf("unexpected ages: %s, %s", got.Entities[0].Age, got.Entities[1].Age)
	}
}

func TestBuildRejectsBadParams(t *testing.T) {
	t.Parallel()

	r := Default()
	cases := map[string]Params{
		RuleStale:    {Threshold: time.Hour},
		RuleExpiring: {TimeField: "expirationDateTime"},
		RuleMatch:    {Field: "state"},
		"unknown":    {},
	}
	for name, params := range cases {
		if _, err := r.Build(name, params); err == nil {
			t.Errorf("expected error building %q", name)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	want := []string{RuleAll, RuleExpiring, RuleMatch, RuleStale}
	if got := Default().Names(); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if Default().Has("nope") {
		t.Fatalf("unexpected rule")
	}
}

func TestAttrNestedAndNumbers(t *testing.T) {
	t.Parallel()

	e := domain.Entity{ID: "x", Attributes: map[string]any{
		"owner": map[string]any{"mail": "ops@example.com"},
		"count": json.Number("42"),
		"empty": nil,
	}}
	if v, ok := StringAttr(e, "owner.mail"); !ok || v != "ops@example.com" {
		t.Fatalf("nested lookup failed: %q %v", v, ok)
	}
	if v, ok := StringAttr(e, "count"); !ok || v != "42" {
		t.Fatalf("number lookup failed: %q %v", v, ok)
	}
	if _, ok := Attr(e, "empty"); ok {
		t.Fatalf("nil attribute should be missing")
	}
	if _, ok := Attr(e, "owner.mail.deep"); ok {
		t.Fatalf("path through a string should be missing")
	}
}
