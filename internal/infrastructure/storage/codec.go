package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"MDMWatch/internal/domain"
)

func encodeState(state domain.NotificationState) ([]byte, error) {
	if state.NotifiedIDs == nil {
		state.NotifiedIDs = []string{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (domain.NotificationState, error) {
	var state domain.NotificationState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.NotificationState{}, fmt.Errorf("%w: %v", domain.ErrStateCorrupt, err)
	}
	return state, nil
}

// objectName maps a channel key to a name safe for file systems and object keys.
func objectName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteByte('_')
	}
	return b.String() + ".json"
}
