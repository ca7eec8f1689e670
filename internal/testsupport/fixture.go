package testsupport

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"tattle/internal/plist"
)

// fixtureSchema mirrors the usernoted record table closely enough for the
// reader: a payload blob addressed by ROWID, plus the columns the real
// store carries alongside it.
const fixtureSchema = `
CREATE TABLE record (
    rec_id INTEGER,
    app_id INTEGER,
    uuid BLOB,
    data BLOB,
    request_date REAL,
    request_last_date REAL,
    delivered_date REAL,
    presented BOOLEAN,
    style INTEGER,
    snooze_fire_date REAL
)`

// FixtureStore writes rows into a simulated notification database. Tests
// use it as the stand-in for the external usernoted writer; production
// code never writes to the store.
type FixtureStore struct {
	db *sql.DB
}

// NewFixtureStore creates the notification schema at path and registers
// cleanup with the test.
func NewFixtureStore(t testing.TB, path string) *FixtureStore {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}
	return &FixtureStore{db: db}
}

// NewEmptyDatabase creates a SQLite file at path without the record table,
// for schema-mismatch scenarios.
func NewEmptyDatabase(t testing.TB, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open empty database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("CREATE TABLE unrelated (id INTEGER)"); err != nil {
		t.Fatalf("create unrelated table: %v", err)
	}
}

// InsertRaw inserts a payload blob as-is and returns its ROWID.
func (f *FixtureStore) InsertRaw(t testing.TB, data []byte) int64 {
	t.Helper()

	res, err := f.db.Exec(
		`INSERT INTO record (rec_id, app_id, uuid, data, request_date, request_last_date,
            delivered_date, presented, style, snooze_fire_date)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		0, 0, make([]byte, 16), data, 0.0, 0.0, 0.0, true, 0, 0.0,
	)
	if err != nil {
		t.Fatalf("insert fixture row: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("fixture rowid: %v", err)
	}
	return id
}

// InsertNotification encodes a notification payload the way usernoted
// does and inserts it.
func (f *FixtureStore) InsertNotification(t testing.TB, bundleID, title, body string, date float64) int64 {
	t.Helper()
	return f.InsertRaw(t, EncodeNotification(t, bundleID, title, body, date))
}

// Delete removes a row, simulating the user dismissing a notification.
func (f *FixtureStore) Delete(t testing.TB, rowID int64) {
	t.Helper()
	if _, err := f.db.Exec("DELETE FROM record WHERE ROWID = ?", rowID); err != nil {
		t.Fatalf("delete fixture row: %v", err)
	}
}

// EncodeNotification builds a binary plist payload with the conventional
// notification fields.
func EncodeNotification(t testing.TB, bundleID, title, body string, date float64) []byte {
	t.Helper()

	req := plist.NewDict()
	req.Set("titl", title)
	req.Set("body", body)

	root := plist.NewDict()
	root.Set("app", bundleID)
	root.Set("date", date)
	root.Set("req", req)

	data, err := plist.Marshal(root)
	if err != nil {
		t.Fatalf("encode notification payload: %v", err)
	}
	return data
}
