package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is a keyset page request. Cursor is the opaque value a previous page
// returned as its next cursor.
type Params struct {
	Limit  int
	Cursor string
}

// Keyset is the (created_at, id) position of the last row on a page. Rows are
// always listed newest first, so the next page starts strictly after it.
type Keyset struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode renders the keyset as a url-safe token.
func (k Keyset) Encode() string {
	raw := strconv.FormatInt(k.CreatedAt.UTC().UnixNano(), 10) + "." + k.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeKeyset parses a cursor token. An empty token means the first page.
func DecodeKeyset(token string) (*Keyset, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, fmt.Errorf("malformed cursor")
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Keyset{CreatedAt: time.Unix(0, ts).UTC(), ID: parsed}, nil
}

// Limit clamps a requested page size into [1, MaxLimit], defaulting zero or
// negative values.
func Limit(requested int) int {
	switch {
	case requested <= 0:
		return DefaultLimit
	case requested > MaxLimit:
		return MaxLimit
	}
	return requested
}

// Split trims rows fetched with limit+1 down to limit and returns the cursor
// for the following page, or "" when rows was the last page.
func Split[T any](rows []T, limit int, key func(T) Keyset) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, key(page[limit-1]).Encode()
}
