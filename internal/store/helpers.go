package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// isNoRows reports whether err is the empty-result sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// wrapNotFound maps sql.ErrNoRows onto ErrNotFound.
func wrapNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// textArray converts a string slice for a TEXT[] column, preserving NULL
// for nil input.
func textArray(values []string) any {
	if values == nil {
		return nil
	}
	return pq.StringArray(values)
}

// nullString converts "" to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
