// package repositories provides persistence layer implementations for all model types.
//
// Each repository wraps a *sql.DB and exposes typed operations for one
// entity family. Catalog repositories favor upserts because rows mirror
// server state and are replaced wholesale during sync.
package repositories

import (
	"database/sql"
	"errors"
	"time"

	"fermata/internal/shared"
)

// isNotFound reports whether err wraps [shared.ErrNotFound].
func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

// nullableTime converts a time into a value suitable for a nullable column.
// The zero time maps to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanNullTime converts a nullable column back into a time, mapping NULL to
// the zero time.
func scanNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}
