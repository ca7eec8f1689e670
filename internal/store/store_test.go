package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tattle/internal/store"
	"tattle/internal/testsupport"
)

func TestOpenMissingFile(t *testing.T) {
	_, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	testsupport.NewEmptyDatabase(t, path)

	_, err := store.Open(context.Background(), path)
	if !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestMaxRowIDEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.db")
	testsupport.NewFixtureStore(t, path)

	reader, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	_, ok, err := reader.MaxRowID(context.Background())
	if err != nil {
		t.Fatalf("MaxRowID failed: %v", err)
	}
	if ok {
		t.Fatal("expected empty store to report no max rowid")
	}
}

func TestFetchSinceOrderingAndExclusivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.db")
	fixture := testsupport.NewFixtureStore(t, path)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, fixture.InsertNotification(t, "com.test.app", "t", "b", 1000.0+float64(i)))
	}

	reader, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	rows, err := reader.FetchSince(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows above cursor %d, got %d", ids[1], len(rows))
	}
	for i, row := range rows {
		if row.RowID != ids[2+i] {
			t.Fatalf("row %d: expected rowid %d, got %d", i, ids[2+i], row.RowID)
		}
		if len(row.Data) == 0 {
			t.Fatalf("row %d: empty payload", i)
		}
	}

	max, ok, err := reader.MaxRowID(context.Background())
	if err != nil || !ok {
		t.Fatalf("MaxRowID failed: %v (ok=%v)", err, ok)
	}
	if max != ids[len(ids)-1] {
		t.Fatalf("expected max %d, got %d", ids[len(ids)-1], max)
	}

	empty, err := reader.FetchSince(context.Background(), max)
	if err != nil {
		t.Fatalf("FetchSince at max failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no rows above max, got %d", len(empty))
	}
}

func TestFetchSinceSeesConcurrentInserts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.db")
	fixture := testsupport.NewFixtureStore(t, path)
	first := fixture.InsertNotification(t, "com.test.app", "one", "b", 1.0)

	reader, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	// Writer inserts while the reader is already connected.
	second := fixture.InsertNotification(t, "com.test.app", "two", "b", 2.0)

	rows, err := reader.FetchSince(context.Background(), first)
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(rows) != 1 || rows[0].RowID != second {
		t.Fatalf("expected the concurrently inserted row, got %+v", rows)
	}
}

func TestFetchRecentAscending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.db")
	fixture := testsupport.NewFixtureStore(t, path)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, fixture.InsertNotification(t, "com.test.app", "t", "b", float64(i)))
	}

	reader, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	rows, err := reader.FetchRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}
	if len(rows) != 2 || rows[0].RowID != ids[2] || rows[1].RowID != ids[3] {
		t.Fatalf("expected newest two rows ascending, got %+v", rows)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string { return "driver failure" }
func (e codedError) Code() int     { return e.code }

func TestClassifyBusyAndCorrupt(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"busy code", codedError{code: 5}, store.ErrBusy},
		{"locked code", codedError{code: 6}, store.ErrBusy},
		{"extended busy code", codedError{code: 261}, store.ErrBusy},
		{"corrupt code", codedError{code: 11}, store.ErrCorrupt},
		{"not a db code", codedError{code: 26}, store.ErrCorrupt},
		{"busy text", errors.New("database is locked (5) (SQLITE_BUSY)"), store.ErrBusy},
		{"corrupt text", errors.New("database disk image is malformed"), store.ErrCorrupt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := store.Classify(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestClassifyPassesUnknownThrough(t *testing.T) {
	sentinel := errors.New("something else")
	if got := store.Classify(sentinel); !errors.Is(got, sentinel) {
		t.Fatalf("unknown error should pass through, got %v", got)
	}
	if store.IsFatal(store.Classify(sentinel)) {
		t.Fatal("unknown error should not classify as fatal")
	}
}
