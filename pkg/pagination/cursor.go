package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// MessageDefaultLimit is the page size used when the caller sends none.
	MessageDefaultLimit = 25

	// MessageMaxLimit caps the page size a caller may request.
	MessageMaxLimit = 100
)

// CursorPayload is the opaque continuation state handed to clients.
type CursorPayload struct {
	Before string `json:"before,omitempty"` // id of the oldest message already returned
}

// EncodeCursor serializes a payload. An empty payload encodes to "".
func EncodeCursor(payload CursorPayload) string {
	if payload.Before == "" {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(cursor string) (CursorPayload, error) {
	var cp CursorPayload
	if cursor == "" {
		return cp, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cp, fmt.Errorf("decode base64: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("decode cursor JSON: %w", err)
	}
	return cp, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return MessageDefaultLimit
	}
	if limit > MessageMaxLimit {
		return MessageMaxLimit
	}
	return limit
}
