package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeToken serialises the cursor into an opaque page token.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeToken restores a cursor previously produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed encoding", ErrInvalidPageToken)
	}
	var cursor Cursor
	if err := json.Unmarshal(payload, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed payload", ErrInvalidPageToken)
	}
	return cursor, nil
}
