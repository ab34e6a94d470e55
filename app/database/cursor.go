package database

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/lysyi3m/event-feed/app/feed"
)

var ErrInvalidCursor = errors.New("malformed cursor")

// keyset is the position after the last item of a page.
type keyset struct {
	SortTimestamp string `json:"ts"`
	ID            string `json:"id"`
}

func encodeCursor(k keyset) (feed.Cursor, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return feed.Cursor(base64.RawURLEncoding.EncodeToString(data)), nil
}

func decodeCursor(cursor feed.Cursor) (keyset, error) {
	var k keyset
	data, err := base64.RawURLEncoding.DecodeString(string(cursor))
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &k); err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if k.SortTimestamp == "" || k.ID == "" {
		return k, fmt.Errorf("%w: missing position", ErrInvalidCursor)
	}
	return k, nil
}
