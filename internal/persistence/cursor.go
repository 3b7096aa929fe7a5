// Package persistence holds what the postgres and sqlite repositories share: page tokens
// and JSON column codecs.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"example.com/taskflow/internal/domain"
)

// ErrInvalidCursor reports a page token that did not come from EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

type cursorToken struct {
	At time.Time `json:"t"`
	ID string    `json:"id"`
}

// EncodeCursor turns the position of the last returned row into an opaque token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(cursorToken{At: c.At.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token from EncodeCursor. A blank token means the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c cursorToken
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" || c.At.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{At: c.At, ID: c.ID}, nil
}
