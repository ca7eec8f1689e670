package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"tattle/internal/record"
)

// StreamSink writes one self-contained JSON record per line, unbuffered,
// so line-oriented consumers see each notification as soon as it decodes.
type StreamSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStreamSink wraps a writer, typically stdout.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

// Name identifies the sink in logs.
func (s *StreamSink) Name() string { return "stream" }

// Deliver writes the record as a single JSON line.
func (s *StreamSink) Deliver(_ context.Context, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.RowID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write record %d: %w", rec.RowID, err)
	}
	return nil
}

// Close is a no-op: every record is flushed as it is written.
func (s *StreamSink) Close() error { return nil }
