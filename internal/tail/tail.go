package tail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tattle/internal/logging"
	"tattle/internal/record"
	"tattle/internal/store"
)

const (
	defaultBusyBackoff    = time.Second
	defaultBusyBackoffMax = 30 * time.Second
)

// Storage is the slice of the notification store the tailer reads.
type Storage interface {
	MaxRowID(ctx context.Context) (int64, bool, error)
	FetchSince(ctx context.Context, cursor int64) ([]store.Row, error)
}

// Publisher accepts decoded records in row order. An error is treated as
// fatal for the tail loop.
type Publisher interface {
	Publish(ctx context.Context, rec *record.Record) error
}

// Options configure a Tailer. Zero values fall back to sensible defaults
// except PollInterval, which must be positive.
type Options struct {
	PollInterval time.Duration

	// Backfill starts the cursor at zero so every row already in the
	// store is emitted before tailing new ones.
	Backfill bool

	// Resume, when set, is consulted once at startup for a persisted
	// cursor. It wins over Backfill when it reports a value.
	Resume func() (int64, bool, error)

	// Checkpoint, when set, is called with the cursor after each batch
	// has been published. Failures are logged, not fatal.
	Checkpoint func(rowID int64) error

	// Wake lets an external watcher cut an idle wait short. The tailer
	// never closes or blocks on this channel.
	Wake <-chan struct{}

	// BusyBackoff and BusyBackoffMax bound the retry delay when the
	// store reports lock contention.
	BusyBackoff    time.Duration
	BusyBackoffMax time.Duration
}

// Tailer drives the poll/decode/publish loop for one store.
type Tailer struct {
	storage Storage
	pub     Publisher
	logger  *slog.Logger
	opts    Options

	cursor atomic.Int64
	primed bool
}

func New(storage Storage, pub Publisher, logger *slog.Logger, opts Options) (*Tailer, error) {
	if storage == nil || pub == nil {
		return nil, errors.New("tail: storage and publisher are required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("tail: poll interval must be positive, got %s", opts.PollInterval)
	}
	if opts.BusyBackoff <= 0 {
		opts.BusyBackoff = defaultBusyBackoff
	}
	if opts.BusyBackoffMax < opts.BusyBackoff {
		opts.BusyBackoffMax = defaultBusyBackoffMax
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tailer{
		storage: storage,
		pub:     pub,
		logger:  logging.NewComponentLogger(logger, "tail"),
		opts:    opts,
	}, nil
}

// Cursor reports the highest row id that has been published, or the
// starting point before anything was emitted. Safe for concurrent use.
func (t *Tailer) Cursor() int64 {
	return t.cursor.Load()
}

// Run polls until ctx is cancelled or the store fails fatally.
// Cancellation is a clean stop and returns nil.
func (t *Tailer) Run(ctx context.Context) error {
	t.resume()

	backoff := t.opts.BusyBackoff
	for {
		err := t.cycle(ctx)
		switch {
		case err == nil:
			backoff = t.opts.BusyBackoff
			if !t.wait(ctx, t.opts.PollInterval) {
				return nil
			}
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, store.ErrBusy):
			t.logger.Debug("store busy, backing off",
				logging.Duration("delay", backoff),
				logging.String(logging.FieldEventType, "store_busy"))
			if !t.wait(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, t.opts.BusyBackoffMax)
		default:
			return err
		}
	}
}

func (t *Tailer) resume() {
	if t.opts.Resume == nil {
		return
	}
	rowID, ok, err := t.opts.Resume()
	if err != nil {
		t.logger.Warn("could not load persisted cursor, starting fresh",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cursor_load_failed"))
		return
	}
	if !ok {
		return
	}
	t.cursor.Store(rowID)
	t.primed = true
	t.logger.Info("resuming from persisted cursor",
		logging.Int64(logging.FieldCursor, rowID))
}

// cycle runs one poll: prime the cursor if needed, fetch rows above it,
// publish them, advance.
func (t *Tailer) cycle(ctx context.Context) error {
	max, ok, err := t.storage.MaxRowID(ctx)
	if err != nil {
		return err
	}

	if !t.primed {
		start := int64(0)
		if ok && !t.opts.Backfill {
			start = max
		}
		t.cursor.Store(start)
		t.primed = true
		t.logger.Info("tail started",
			logging.Int64(logging.FieldCursor, start),
			logging.Bool("backfill", t.opts.Backfill))
	}

	cur := t.cursor.Load()
	if !ok || max <= cur {
		if ok && max < cur {
			// Rows were deleted out from under us (the user dismissed
			// notifications). New rows still get higher ids, so tailing
			// from the new maximum loses nothing.
			t.logger.Info("store shrank, re-basing cursor",
				logging.Int64(logging.FieldCursor, cur),
				logging.Int64("max_row_id", max),
				logging.String(logging.FieldEventType, "cursor_rebase"))
			t.cursor.Store(max)
		}
		return nil
	}

	rows, err := t.storage.FetchSince(ctx, cur)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	for _, row := range rows {
		rec, err := record.FromPayload(row.RowID, row.Data)
		if err != nil {
			t.logger.Warn("skipping undecodable payload",
				logging.Int64(logging.FieldRowID, row.RowID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "decode_failed"))
			continue
		}
		if err := t.pub.Publish(ctx, rec); err != nil {
			return fmt.Errorf("publish row %d: %w", row.RowID, err)
		}
	}

	last := rows[len(rows)-1].RowID
	t.cursor.Store(last)
	t.logger.Debug("cursor advanced",
		logging.Int64(logging.FieldCursor, last),
		logging.Int("rows", len(rows)))

	if t.opts.Checkpoint != nil {
		if err := t.opts.Checkpoint(last); err != nil {
			t.logger.Warn("could not persist cursor",
				logging.Int64(logging.FieldCursor, last),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cursor_save_failed"))
		}
	}
	return nil
}

// wait sleeps for d, returning early (true) on a wake nudge and false
// when ctx is done.
func (t *Tailer) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-t.opts.Wake:
		return true
	}
}
