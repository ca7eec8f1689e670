package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "modernc.org/sqlite"
)

// Row is a raw notification row: the monotonic identifier assigned by the
// writer plus the opaque payload blob.
type Row struct {
	RowID int64
	Data  []byte
}

// Reader provides read-only access to the notification store.
type Reader struct {
	db   *sql.DB
	path string
}

// Open connects to the notification database in read-only mode and
// verifies the expected schema is present.
func Open(ctx context.Context, path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}

	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Never escalate to a writer, and give the usernoted writer a short
	// grace window before reporting busy.
	pragmas := []string{
		"PRAGMA query_only = ON",
		"PRAGMA busy_timeout = 2000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, Classify(execErr))
		}
	}

	r := &Reader{db: db, path: path}
	if err := r.verifySchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database file location.
func (r *Reader) Path() string {
	return r.path
}

func (r *Reader) verifySchema(ctx context.Context) error {
	var tableExists int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='record'",
	).Scan(&tableExists)
	if err != nil {
		return Classify(err)
	}
	if tableExists == 0 {
		return fmt.Errorf("%w: table record missing", ErrSchemaMismatch)
	}

	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info(record)")
	if err != nil {
		return Classify(err)
	}
	defer rows.Close()

	hasData := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return Classify(err)
		}
		if name == "data" {
			hasData = true
		}
	}
	if err := rows.Err(); err != nil {
		return Classify(err)
	}
	if !hasData {
		return fmt.Errorf("%w: column record.data missing", ErrSchemaMismatch)
	}
	return nil
}

// MaxRowID returns the largest row identifier currently in the store. The
// boolean is false when the record table is empty.
func (r *Reader) MaxRowID(ctx context.Context) (int64, bool, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(ROWID) FROM record").Scan(&max)
	if err != nil {
		return 0, false, Classify(err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

// FetchSince returns every row with an identifier greater than cursor, in
// ascending order. The range query rides the implicit rowid index, so the
// cost tracks the number of new rows rather than the table size.
func (r *Reader) FetchSince(ctx context.Context, cursor int64) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT ROWID, data FROM record WHERE ROWID > ? ORDER BY ROWID ASC",
		cursor,
	)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.RowID, &row.Data); err != nil {
			return nil, Classify(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// FetchRecent returns up to limit of the newest rows in ascending order.
func (r *Reader) FetchRecent(ctx context.Context, limit int) ([]Row, error) {
	if limit < 1 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT ROWID, data FROM record ORDER BY ROWID DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.RowID, &row.Data); err != nil {
			return nil, Classify(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func errBusyf(err error) error {
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

func errCorruptf(err error) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}
