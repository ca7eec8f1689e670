package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tattle/internal/config"
	"tattle/internal/cursor"
	"tattle/internal/logging"
	"tattle/internal/publish"
	"tattle/internal/store"
	"tattle/internal/tail"
)

// Daemon runs the tail loop against one notification store and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	reader *store.Reader
	pub    *publish.Publisher
	tailer *tail.Tailer

	lockPath string
	lock     *flock.Flock
	pidPath  string

	wake chan struct{}

	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan error
	waitOnce sync.Once
	runErr   error
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	Cursor       int64
	StorePath    string
	LockFilePath string
	Sinks        int
}

// New constructs a daemon around an open store reader and a publisher.
// The tail loop, cursor persistence, and store watcher are assembled
// from cfg.
func New(cfg *config.Config, reader *store.Reader, pub *publish.Publisher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || reader == nil || pub == nil {
		return nil, errors.New("daemon requires config, store reader, and publisher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	wake := make(chan struct{}, 1)
	opts := tail.Options{
		PollInterval: time.Duration(cfg.Store.PollInterval) * time.Second,
		Backfill:     cfg.Store.Backfill,
		Wake:         wake,
	}
	if cfg.Cursor.Persist {
		fs := cursor.NewFileStore(cfg.Cursor.Path)
		opts.Resume = fs.Load
		opts.Checkpoint = fs.Save
	}
	tailer, err := tail.New(reader, pub, logger, opts)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(cfg.Daemon.StateDir, "tattled.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		reader:   reader,
		pub:      pub,
		tailer:   tailer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		pidPath:  filepath.Join(cfg.Daemon.StateDir, "tattled.pid"),
		wake:     wake,
	}, nil
}

// Start acquires the instance lock and launches the tail loop. Use Wait
// to observe the loop's outcome.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Daemon.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tattle daemon instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("could not write pid file", logging.Error(err), logging.String("path", d.pidPath))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan error, 1)

	if d.cfg.Daemon.WatchStore {
		if err := d.watchStore(runCtx); err != nil {
			d.logger.Warn("store watcher unavailable, relying on polling", logging.Error(err))
		}
	}

	go func() {
		d.done <- d.tailer.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("tattle daemon started",
		logging.String("store", d.cfg.Store.Path),
		logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the tail loop exits and returns its error. Safe to
// call more than once; returns immediately when the daemon was never
// started.
func (d *Daemon) Wait() error {
	if d.done == nil {
		return nil
	}
	d.waitOnce.Do(func() {
		d.runErr = <-d.done
	})
	return d.runErr
}

// Stop cancels the tail loop and releases the instance lock. It does not
// wait for the loop to drain; call Wait for that.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("could not remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tattle daemon stopped")
}

// Close stops the daemon and releases the publisher and store reader.
// Sinks are flushed before the store is closed.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.Wait(); err != nil {
		errs = append(errs, err)
	}
	if d.pub != nil {
		if err := d.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if d.reader != nil {
		if err := d.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Cursor:       d.tailer.Cursor(),
		StorePath:    d.cfg.Store.Path,
		LockFilePath: d.lockPath,
		Sinks:        d.pub.SinkCount(),
	}
}
