package classifier

import (
	"fmt"
	"strings"
	"time"

	"MDMWatch/internal/domain"
)

// Attr looks up a dotted path ("owner.mail") in the entity attributes.
func Attr(e domain.Entity, path string) (any, bool) {
	var cur any = e.Attributes
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// StringAttr returns the attribute formatted as a string.
func StringAttr(e domain.Entity, path string) (string, bool) {
	v, ok := Attr(e, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// TimeAttr parses an RFC 3339 timestamp attribute. Graph reports
// "0001-01-01T00:00:00Z" for never-set dates, which counts as missing.
func TimeAttr(e domain.Entity, path string) (time.Time, bool) {
	s, ok := StringAttr(e, path)
	if !ok || s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	if ts.Year() <= 1 {
		return time.Time{}, false
	}
	return ts, true
}
