package proto

import (
	"encoding/json"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const Version = "1"

func ID() string {
	i, _ := gonanoid.New()
	return i
}

// As decodes a message payload into T. A nil payload yields a zero T.
func As[T any](v any) (*T, error) {
	var out T
	if v == nil {
		return &out, nil
	}

	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return &out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal into type: %w", err)
	}
	return &out, nil
}
