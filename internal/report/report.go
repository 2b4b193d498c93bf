package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"MDMWatch/internal/domain"
)

const bodyTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{- if .Partial}}
<p class="warning">Partial data: the collection could not be read completely. Missing entries must not be read as resolved.</p>
{{- end}}
{{- if .Urgent}}
<p class="urgent">At least one entry is past the urgent threshold.</p>
{{- end}}
<p>Reasons: {{join .Reasons ", "}}</p>
<p>Generated: {{.GeneratedAt}}</p>
{{- if .Rows}}
<table>
<tr><th>Name</th><th>ID</th><th>Age</th><th>Status</th></tr>
{{- range .Rows}}
<tr><td>{{.Name}}</td><td>{{.ID}}</td><td>{{.Age}}</td><td>{{.Status}}</td></tr>
{{- end}}
</table>
{{- else}}
<p>No entries.</p>
{{- end}}
</body>
</html>
`

var body = template.Must(template.New("alert").Funcs(template.FuncMap{
	"join": func(rs []domain.Reason, sep string) string {
		parts := make([]string, len(rs))
		for i, r := range rs {
			parts[i] = string(r)
		}
		return strings.Join(parts, sep)
	},
}).Parse(bodyTemplate))

type row struct {
	Name   string
	ID     string
	Age    string
	Status string
}

type view struct {
	Subject     string
	Title       string
	Partial     bool
	Urgent      bool
	Reasons     []domain.Reason
	GeneratedAt string
	Rows        []row
}

// Subject builds the one-line summary used for mail subjects and chat headers.
func Subject(alert domain.Alert) string {
	var b strings.Builder
	if alert.Decision.Urgent {
		b.WriteString("[URGENT] ")
	}
	if alert.Partial {
		b.WriteString("[PARTIAL] ")
	}
	b.WriteString(title(alert))
	fmt.Fprintf(&b, " (%d)", len(alert.Decision.EntitiesToReport))
	return b.String()
}

// HTML renders the full report for every entity in the alert.
func HTML(alert domain.Alert) (string, error) {
	d := alert.Decision
	newIDs := toSet(d.NewIDs)
	escalated := toSet(d.EscalatedIDs)

	v := view{
		Subject:     Subject(alert),
		Title:       title(alert),
		Partial:     alert.Partial,
		Urgent:      d.Urgent,
		Reasons:     d.Reasons,
		GeneratedAt: alert.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, e := range d.EntitiesToReport {
		var status []string
		if _, ok := newIDs[e.ID]; ok {
			status = append(status, "new")
		}
		if _, ok := escalated[e.ID]; ok {
			status = append(status, "escalated")
		}
		v.Rows = append(v.Rows, row{
			Name:   e.DisplayName(),
			ID:     e.ID,
			Age:    FormatAge(e.Age),
			Status: strings.Join(status, ", "),
		})
	}

	var buf bytes.Buffer
	if err := body.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// PlainText flattens a rendered report for channels without HTML support.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse report: %w", err)
	}

	var lines []string
	doc.Find("body").Children().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "table" {
			if text := strings.TrimSpace(s.Text()); text != "" {
				lines = append(lines, text)
			}
			return
		}
		s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Children().Each(func(_ int, cell *goquery.Selection) {
				if text := strings.TrimSpace(cell.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			lines = append(lines, strings.Join(cells, " | "))
		})
	})
	return strings.Join(lines, "\n"), nil
}

// FormatAge renders durations as whole days and hours.
func FormatAge(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return "<1h"
	}
}

func title(alert domain.Alert) string {
	if alert.Title != "" {
		return alert.Title
	}
	return alert.Channel
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
