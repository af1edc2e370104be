// Package pagination implements opaque keyset cursors over (timestamp, id).
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const cursorSeparator = ","
const timeFormat = time.RFC3339Nano

// Cursor points at the last row of a page.
type Cursor struct {
	Time time.Time
	ID   int64
}

// Encode returns the opaque form of c.
func (c Cursor) Encode() string {
	key := c.Time.UTC().Format(timeFormat) + cursorSeparator + strconv.FormatInt(c.ID, 10)
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor parses an opaque cursor produced by Encode.
func DecodeCursor(encoded string) (Cursor, error) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, errors.Wrap(err, "invalid cursor encoding")
	}

	ts, id, ok := strings.Cut(string(decoded), cursorSeparator)
	if !ok {
		return Cursor{}, errors.New("invalid cursor format")
	}

	t, err := time.Parse(timeFormat, ts)
	if err != nil {
		return Cursor{}, errors.Wrap(err, "invalid timestamp in cursor")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Cursor{}, errors.Wrap(err, "invalid id in cursor")
	}
	return Cursor{Time: t.UTC(), ID: n}, nil
}

// Page trims rows fetched with limit+1 to limit and returns the cursor of the
// next page, or nil when rows was the last page.
func Page[T any](rows []T, limit int, key func(T) Cursor) ([]T, *string) {
	if len(rows) <= limit || limit <= 0 {
		return rows, nil
	}
	rows = rows[:limit]
	next := key(rows[len(rows)-1]).Encode()
	return rows, &next
}
