package daemon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"tattle/internal/cursor"
	"tattle/internal/daemon"
	"tattle/internal/logging"
	"tattle/internal/publish"
	"tattle/internal/record"
	"tattle/internal/store"
	"tattle/internal/testsupport"
)

type collectSink struct {
	mu   sync.Mutex
	recs []*record.Record
}

func (s *collectSink) Name() string { return "collect" }

func (s *collectSink) Deliver(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *collectSink) Close() error { return nil }

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonTailsStoreThroughPublisher(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackfill())
	fixture := testsupport.NewFixtureStore(t, cfg.Store.Path)
	fixture.InsertNotification(t, "com.example.mail", "existing", "already here", 761234500)

	reader, err := store.Open(context.Background(), cfg.Store.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sink := &collectSink{}
	pub := publish.New(logging.NewNop())
	pub.Attach(sink, true)

	d, err := daemon.New(cfg, reader, pub, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "backfilled record", func() bool { return sink.count() == 1 })
	fixture.InsertNotification(t, "com.example.chat", "ping", "new arrival", 761234600)
	waitFor(t, "tailed record", func() bool { return sink.count() == 2 })

	status := d.Status()
	if !status.Running {
		t.Fatal("status reports not running")
	}
	if status.Cursor == 0 {
		t.Fatal("status cursor never advanced")
	}
	if status.Sinks != 1 {
		t.Fatalf("status sinks = %d, want 1", status.Sinks)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.Status().Running {
		t.Fatal("daemon still reports running after Close")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.NewFixtureStore(t, cfg.Store.Path)

	openReader := func() *store.Reader {
		reader, err := store.Open(context.Background(), cfg.Store.Path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return reader
	}

	first, err := daemon.New(cfg, openReader(), publish.New(logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Close()

	second, err := daemon.New(cfg, openReader(), publish.New(logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}

func TestDaemonPersistsCursorAcrossRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackfill())
	cfg.Cursor.Persist = true
	fixture := testsupport.NewFixtureStore(t, cfg.Store.Path)
	rowID := fixture.InsertNotification(t, "com.example.mail", "first", "body", 761234500)

	run := func(wantCount int, sink *collectSink) {
		reader, err := store.Open(context.Background(), cfg.Store.Path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		pub := publish.New(logging.NewNop())
		pub.Attach(sink, true)
		d, err := daemon.New(cfg, reader, pub, logging.NewNop())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		waitFor(t, "published records", func() bool { return sink.count() == wantCount })
		if err := d.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	first := &collectSink{}
	run(1, first)

	saved, ok, err := cursor.NewFileStore(cfg.Cursor.Path).Load()
	if err != nil || !ok {
		t.Fatalf("Load cursor: ok=%v err=%v", ok, err)
	}
	if saved != rowID {
		t.Fatalf("persisted cursor = %d, want %d", saved, rowID)
	}

	// A second run resumes past the already-published row even though
	// backfill is on.
	fixture.InsertNotification(t, "com.example.mail", "second", "body", 761234600)
	second := &collectSink{}
	run(1, second)
	second.mu.Lock()
	defer second.mu.Unlock()
	if len(second.recs) != 1 || second.recs[0].Summary().Title != "second" {
		t.Fatalf("second run published unexpected records: %+v", second.recs)
	}
}
