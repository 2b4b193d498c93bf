package paging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"MDMWatch/internal/domain"
)

// PageFormat names the envelope fields of a collection response. Field names
// vary by endpoint but the shape is always {value: [...], next: "..."}.
type PageFormat struct {
	ValueField string
	NextField  string
	IDField    string
	LabelField string
}

// DefaultPageFormat matches Microsoft Graph collections.
func DefaultPageFormat() PageFormat {
	return PageFormat{
		ValueField: "value",
		NextField:  "@odata.nextLink",
		IDField:    "id",
	}
}

func (pf PageFormat) withDefaults() PageFormat {
	def := DefaultPageFormat()
	if pf.ValueField == "" {
		pf.ValueField = def.ValueField
	}
	if pf.NextField == "" {
		pf.NextField = def.NextField
	}
	if pf.IDField == "" {
		pf.IDField = def.IDField
	}
	return pf
}

// Decode parses one response body into a page.
func (pf PageFormat) Decode(body []byte) (domain.Page, error) {
	pf = pf.withDefaults()

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.Page{}, &decodeError{err: err}
	}

	rawValue, ok := envelope[pf.ValueField]
	if !ok {
		return domain.Page{}, &decodeError{err: fmt.Errorf("missing %q field", pf.ValueField)}
	}

	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(rawValue))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return domain.Page{}, &decodeError{err: fmt.Errorf("field %q: %w", pf.ValueField, err)}
	}

	page := domain.Page{Entities: make([]domain.Entity, 0, len(items))}
	for i, attrs := range items {
		id := stringValue(attrs[pf.IDField])
		if id == "" {
			return domain.Page{}, &decodeError{err: fmt.Errorf("entity %d: missing %q", i, pf.IDField)}
		}
		entity := domain.Entity{ID: id, Attributes: attrs}
		if pf.LabelField != "" {
			entity.Label = stringValue(attrs[pf.LabelField])
		}
		page.Entities = append(page.Entities, entity)
	}

	if rawNext, ok := envelope[pf.NextField]; ok {
		var next *string
		if err := json.Unmarshal(rawNext, &next); err != nil {
			return domain.Page{}, &decodeError{err: fmt.Errorf("field %q: %w", pf.NextField, err)}
		}
		if next != nil {
			page.Next = strings.TrimSpace(*next)
		}
	}

	return page, nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
