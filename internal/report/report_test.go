package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MDMWatch/internal/domain"
)

func sampleAlert() domain.Alert {
	return domain.Alert{
		Channel: "stale-devices",
		Title:   "Stale devices",
		Decision: domain.AlertDecision{
			ShouldSend:   true,
			Reason:       domain.ReasonNewEntities,
			Reasons:      []domain.Reason{domain.ReasonNewEntities, domain.ReasonEscalationCrossed},
			NewIDs:       []string{"d-2"},
			EscalatedIDs: []string{"d-1"},
			EntitiesToReport: []domain.Entity{
				{ID: "d-1", Label: "FIN-LT-001", Age: 50 * time.Hour},
				{ID: "d-2", Label: "<script>", Age: 3 * time.Hour},
			},
		},
		GeneratedAt: time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSubjectPrefixes(t *testing.T) {
	alert := sampleAlert()
	assert.Equal(t, "Stale devices (2)", Subject(alert))

	alert.Decision.Urgent = true
	alert.Partial = true
	assert.Equal(t, "[URGENT] [PARTIAL] Stale devices (2)", Subject(alert))

	alert.Title = ""
	assert.True(t, strings.HasSuffix(Subject(alert), "stale-devices (2)"))
}

func TestHTMLListsEveryEntityAndEscapes(t *testing.T) {
	html, err := HTML(sampleAlert())
	require.NoError(t, err)

	assert.Contains(t, html, "FIN-LT-001")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "NewEntities, EscalationCrossed")
	assert.NotContains(t, html, "Partial data")
}

func TestPlainTextFromHTML(t *testing.T) {
	alert := sampleAlert()
	alert.Partial = true
	html, err := HTML(alert)
	require.NoError(t, err)

	text, err := PlainText(html)
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "Stale devices", lines[0])
	assert.Contains(t, text, "Partial data")
	assert.Contains(t, text, "Name | ID | Age | Status")
	assert.Contains(t, text, "FIN-LT-001 | d-1 | 2d 2h | escalated")
	assert.Contains(t, text, "<script> | d-2 | 3h | new")
}

func TestPlainTextKeepsPipesInCells(t *testing.T) {
	alert := sampleAlert()
	alert.Decision.NewIDs = nil
	alert.Decision.EscalatedIDs = nil
	alert.Decision.EntitiesToReport = []domain.Entity{{ID: "d-3", Label: "LAB | PC |", Age: time.Hour}}
	html, err := HTML(alert)
	require.NoError(t, err)

	text, err := PlainText(html)
	require.NoError(t, err)
	assert.Contains(t, strings.Split(text, "\n"), "LAB | PC | | d-3 | 1h")
}

func TestPlainTextEmptyReport(t *testing.T) {
	alert := sampleAlert()
	alert.Decision.EntitiesToReport = nil
	html, err := HTML(alert)
	require.NoError(t, err)

	text, err := PlainText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "No entries.")
}

func TestFormatAge(t *testing.T) {
	cases := map[time.Duration]string{
		0:                "-",
		30 * time.Minute: "<1h",
		5 * time.Hour:    "5h",
		48 * time.Hour:   "2d",
		49*time.Hour + 1: "2d 1h",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatAge(in), in.String())
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(sampleAlert())

	assert.Equal(t, "stale-devices", msg.Channel)
	assert.Equal(t, "Stale devices (2)", msg.Subject)
	assert.Equal(t, domain.ReasonNewEntities, msg.Reason)
	require.Len(t, msg.Entities, 2)
	assert.Equal(t, 50.0, msg.Entities[0].AgeHours)
	assert.Equal(t, []string{"d-2"}, msg.NewIDs)

	empty := NewMessage(domain.Alert{Channel: "c"})
	assert.NotNil(t, empty.NewIDs)
	assert.NotNil(t, empty.Entities)
	assert.Equal(t, "c", empty.Title)
}
