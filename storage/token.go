package storage

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Pagination continuation tokens are opaque to callers: base64 of the
// last-seen created_on (unix nanos) and slug. Backends use the pair to
// resume a newest-first scan after that row.

// EncodeCursor builds a continuation token from the last row of a page.
func EncodeCursor(createdOn time.Time, slug string) string {
	raw := fmt.Sprintf("%d|%s", createdOn.UnixNano(), slug)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a continuation token produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("bad cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("bad cursor: missing separator")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("bad cursor: %w", err)
	}
	return time.Unix(0, nanos), parts[1], nil
}
