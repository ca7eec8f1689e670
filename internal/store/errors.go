package store

import (
	"errors"
	"strings"
)

var (
	// ErrBusy is a transient condition: the writer currently holds the
	// store. Callers retry with backoff.
	ErrBusy = errors.New("store busy")
	// ErrNotFound means the database file does not exist. Fatal.
	ErrNotFound = errors.New("store not found")
	// ErrSchemaMismatch means the record table or its payload column is
	// absent. Fatal.
	ErrSchemaMismatch = errors.New("store schema mismatch")
	// ErrCorrupt means the file is not a usable SQLite database. Fatal.
	ErrCorrupt = errors.New("store corrupt")
)

// IsFatal reports whether err rules out further polling.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrCorrupt)
}

const (
	sqliteBusy    = 5
	sqliteLocked  = 6
	sqliteCorrupt = 11
	sqliteNotADB  = 26
)

// Classify maps driver errors onto the package's error taxonomy, leaving
// unknown errors untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return errBusyf(err)
		case sqliteCorrupt, sqliteNotADB:
			return errCorruptf(err)
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLITE_BUSY"), strings.Contains(msg, "database is locked"):
		return errBusyf(err)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "not a database"):
		return errCorruptf(err)
	}
	return err
}
