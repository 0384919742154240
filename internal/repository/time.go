package repository

import (
	"database/sql"
	"time"
)

// timeLayout is the storage format for every timestamp column.  The
// format sorts lexicographically, so range predicates on timestamp
// columns behave the same on MySQL and SQLite.
const timeLayout = "2006-01-02 15:04:05"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseDBTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// fmtNullTime converts an optional timestamp into a driver value.
func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// parseNullTime converts a scanned nullable column back into an
// optional UTC timestamp.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDBTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
