package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ─── Time Helpers ────────────────────────────────────────────────────────────

// TimeFormat is how timestamps are stored. It sorts lexically in time order,
// which keyset pagination relies on.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp. Values the driver handed back as
// time.Time arrive in RFC 3339 form with trailing zeros trimmed.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t, nil
	}
	if t, rerr := time.Parse(time.RFC3339Nano, s); rerr == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
}

// ─── Type Conversion Helpers ─────────────────────────────────────────────────

// BoolToInt converts a bool to int for SQLite storage
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IntToBool converts an int to bool from SQLite storage
func IntToBool(i int) bool {
	return i == 1
}

// ─── Query Helpers ───────────────────────────────────────────────────────────

// ErrNoRows is returned by ExpectOneRow when nothing was affected.
var ErrNoRows = sql.ErrNoRows

// ExpectOneRow fails when a write statement touched no rows.
func ExpectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNoRows)
	}
	return nil
}

// Placeholders returns "?, ?, ..." for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 3*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
