package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500

	cursorTag = "id:"
)

// ErrInvalidCursor wraps every cursor decoding failure.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds keyset pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points just past the last row of the previous page. Rows are walked in id order.
type Cursor struct {
	AfterID int64
}

// NormalizeLimit clamps limit into (0, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds an opaque cursor string.
func EncodeCursor(c Cursor) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorTag + strconv.FormatInt(c.AfterID, 10)))
}

// ParseCursor decodes the cursor string. An empty value yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	raw, ok := strings.CutPrefix(string(decoded), cursorTag)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q tag", ErrInvalidCursor, cursorTag)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return nil, fmt.Errorf("%w: bad id %q", ErrInvalidCursor, raw)
	}
	return &Cursor{AfterID: id}, nil
}

// Scope returns a gorm scope walking idColumn ascending after the cursor, fetching one extra row
// so Trim can tell whether another page exists.
func Scope(p Params, idColumn string) (func(*gorm.DB) *gorm.DB, error) {
	cursor, err := ParseCursor(p.Cursor)
	if err != nil {
		return nil, err
	}
	limit := NormalizeLimit(p.Limit)
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where(idColumn+" > ?", cursor.AfterID)
		}
		return db.Order(idColumn + " ASC").Limit(limit + 1)
	}, nil
}

// Trim cuts rows fetched through Scope down to one page and returns the cursor for the next one.
func Trim[T any](rows []T, limit int, idOf func(T) int64) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(Cursor{AfterID: idOf(rows[limit-1])})
}
