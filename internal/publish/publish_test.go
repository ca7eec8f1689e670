package publish_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tattle/internal/logging"
	"tattle/internal/publish"
	"tattle/internal/record"
	"tattle/internal/testsupport"
)

func testRecord(t *testing.T, rowID int64, title string) *record.Record {
	t.Helper()
	data := testsupport.EncodeNotification(t, "com.test.app", title, "body", 1000.5)
	rec, err := record.FromPayload(rowID, data)
	if err != nil {
		t.Fatalf("build test record: %v", err)
	}
	return rec
}

func TestStreamSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := publish.NewStreamSink(&buf)

	for i := int64(1); i <= 3; i++ {
		if err := sink.Deliver(context.Background(), testRecord(t, i, "msg")); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	scanner := bufio.NewScanner(&buf)
	var rowIDs []int64
	for scanner.Scan() {
		var decoded struct {
			RowID int64  `json:"row_id"`
			App   string `json:"app"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		if decoded.App != "com.test.app" {
			t.Fatalf("unexpected app field: %q", decoded.App)
		}
		rowIDs = append(rowIDs, decoded.RowID)
	}
	if len(rowIDs) != 3 || rowIDs[0] != 1 || rowIDs[1] != 2 || rowIDs[2] != 3 {
		t.Fatalf("unexpected row ids: %v", rowIDs)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestStreamSinkSurfacesWriteErrors(t *testing.T) {
	sink := publish.NewStreamSink(failingWriter{})
	if err := sink.Deliver(context.Background(), testRecord(t, 1, "msg")); err == nil {
		t.Fatal("expected write error")
	}
}

type recordingSink struct {
	name string
	mu   sync.Mutex
	rows []int64
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec.RowID)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestPublisherIsolatesBestEffortFailures(t *testing.T) {
	stream := &recordingSink{name: "stream"}
	flaky := &recordingSink{name: "flaky", err: errors.New("endpoint down")}

	pub := publish.New(logging.NewNop())
	pub.Attach(flaky, false)
	pub.Attach(stream, true)

	if err := pub.Publish(context.Background(), testRecord(t, 5, "msg")); err != nil {
		t.Fatalf("best-effort failure must not surface: %v", err)
	}
	if len(stream.rows) != 1 || stream.rows[0] != 5 {
		t.Fatalf("stream sink should still receive the record: %v", stream.rows)
	}
}

func TestPublisherPropagatesCriticalFailure(t *testing.T) {
	sinkErr := errors.New("stdout gone")
	broken := &recordingSink{name: "stream", err: sinkErr}
	other := &recordingSink{name: "other"}

	pub := publish.New(logging.NewNop())
	pub.Attach(broken, true)
	pub.Attach(other, false)

	err := pub.Publish(context.Background(), testRecord(t, 9, "msg"))
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected critical failure, got %v", err)
	}
	if len(other.rows) != 1 {
		t.Fatal("remaining sinks must still be attempted")
	}
}

func TestWebhookSinkDelivers(t *testing.T) {
	var requests atomic.Int64
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Tattle-Delivery") == "" {
			t.Error("missing delivery id header")
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		received <- buf.Bytes()
	}))
	defer server.Close()

	sink := publish.NewWebhookSink(publish.WebhookOptions{
		URL:       server.URL,
		QueueSize: 4,
	}, logging.NewNop())

	if err := sink.Deliver(context.Background(), testRecord(t, 11, "ping")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	select {
	case body := <-received:
		var decoded struct {
			RowID int64 `json:"row_id"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("webhook body is not valid JSON: %v", err)
		}
		if decoded.RowID != 11 {
			t.Fatalf("unexpected row id %d", decoded.RowID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook request never arrived")
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", requests.Load())
	}
}

func TestWebhookSinkRetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := publish.NewWebhookSink(publish.WebhookOptions{
		URL:          server.URL,
		MaxRetries:   4,
		QueueSize:    4,
		RetryBackoff: time.Millisecond,
	}, logging.NewNop())

	if err := sink.Deliver(context.Background(), testRecord(t, 1, "retry")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookSinkGivesUpAfterRetries(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := publish.NewWebhookSink(publish.WebhookOptions{
		URL:          server.URL,
		MaxRetries:   2,
		QueueSize:    4,
		RetryBackoff: time.Millisecond,
	}, logging.NewNop())

	if err := sink.Deliver(context.Background(), testRecord(t, 1, "doomed")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", got)
	}
}

func TestWebhookSinkReportsQueueFull(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	sink := publish.NewWebhookSink(publish.WebhookOptions{
		URL:          server.URL,
		QueueSize:    1,
		FlushTimeout: 50 * time.Millisecond,
	}, logging.NewNop())
	defer sink.Close()

	// First record occupies the worker, second fills the queue, third
	// must be rejected rather than block.
	_ = sink.Deliver(context.Background(), testRecord(t, 1, "a"))
	deadline := time.After(2 * time.Second)
	for {
		err := sink.Deliver(context.Background(), testRecord(t, 2, "b"))
		if err != nil {
			if !errors.Is(err, publish.ErrQueueFull) {
				t.Fatalf("expected ErrQueueFull, got %v", err)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("queue never filled")
		default:
		}
	}
}
