package publish

import (
	"context"
	"errors"
	"log/slog"

	"tattle/internal/logging"
	"tattle/internal/record"
)

// Sink is a delivery target for decoded notification records.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec *record.Record) error
	Close() error
}

// Publisher delivers every record to every attached sink. Critical sinks
// propagate their failures to the caller; best-effort sinks only log.
type Publisher struct {
	logger  *slog.Logger
	entries []sinkEntry
}

type sinkEntry struct {
	sink     Sink
	critical bool
}

// New constructs an empty publisher.
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{logger: logging.NewComponentLogger(logger, "publish")}
}

// Attach registers a sink. Critical sinks make Publish fail when they do.
func (p *Publisher) Attach(sink Sink, critical bool) {
	p.entries = append(p.entries, sinkEntry{sink: sink, critical: critical})
}

// SinkCount reports the number of attached sinks.
func (p *Publisher) SinkCount() int {
	return len(p.entries)
}

// Publish hands the record to every sink. All sinks are attempted even
// when an earlier one fails; the first critical failure is returned.
func (p *Publisher) Publish(ctx context.Context, rec *record.Record) error {
	var firstCritical error
	for _, entry := range p.entries {
		err := entry.sink.Deliver(ctx, rec)
		if err == nil {
			continue
		}
		if entry.critical {
			if firstCritical == nil {
				firstCritical = err
			}
			continue
		}
		p.logger.Warn("sink delivery failed",
			logging.String(logging.FieldSink, entry.sink.Name()),
			logging.Int64(logging.FieldRowID, rec.RowID),
			logging.String(logging.FieldEventType, "sink_deliver_failed"),
			logging.Error(err),
		)
	}
	return firstCritical
}

// Close shuts down every sink, flushing buffered deliveries.
func (p *Publisher) Close() error {
	var errs []error
	for _, entry := range p.entries {
		if err := entry.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
