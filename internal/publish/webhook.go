package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tattle/internal/logging"
	"tattle/internal/record"
)

const webhookUserAgent = "tattle/0.1.0"

// ErrQueueFull is returned by Deliver when the endpoint has fallen far
// enough behind that the bounded buffer is exhausted.
var ErrQueueFull = errors.New("webhook queue full")

var errSinkClosed = errors.New("webhook sink closed")

// WebhookOptions configures the outbound HTTP sink.
type WebhookOptions struct {
	URL       string
	Timeout   time.Duration
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	QueueSize  int
	// RatePerSecond caps outbound requests; zero means unlimited.
	RatePerSecond float64
	// RetryBackoff is the first retry delay; it doubles per attempt up
	// to an internal cap. Zero selects the default.
	RetryBackoff time.Duration

	// FlushTimeout bounds how long Close waits for queued deliveries.
	FlushTimeout time.Duration
}

const (
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 8 * time.Second
	defaultFlushTimeout = 5 * time.Second
)

// WebhookSink POSTs each record to a configured endpoint. Delivery is
// asynchronous: Deliver only enqueues, and a worker drains the queue with
// retries, so endpoint latency never blocks the caller.
type WebhookSink struct {
	opts    WebhookOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	queue chan *record.Record
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWebhookSink starts the delivery worker for the given endpoint.
func NewWebhookSink(opts WebhookOptions, logger *slog.Logger) *WebhookSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &WebhookSink{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logging.NewComponentLogger(logger, "webhook"),
		queue:  make(chan *record.Record, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// Name identifies the sink in logs.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver enqueues the record for asynchronous delivery. A full queue is
// reported, not waited on: the stream sink must keep flowing.
func (s *WebhookSink) Deliver(_ context.Context, rec *record.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	select {
	case s.queue <- rec:
		return nil
	default:
		return fmt.Errorf("%w: dropping record %d", ErrQueueFull, rec.RowID)
	}
}

// Close stops accepting records, drains the queue within the flush
// timeout, then abandons whatever is left.
func (s *WebhookSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.FlushTimeout):
		s.cancel()
		<-done
	}
	s.cancel()
	return nil
}

func (s *WebhookSink) worker() {
	defer s.wg.Done()
	for rec := range s.queue {
		s.send(rec)
	}
}

// send runs the per-record retry loop. Exhaustion is logged and the
// record abandoned: webhook delivery is best-effort by policy.
func (s *WebhookSink) send(rec *record.Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("encode webhook payload",
			logging.Int64(logging.FieldRowID, rec.RowID),
			logging.String(logging.FieldEventType, "webhook_encode_failed"),
			logging.Error(err),
		)
		return
	}
	deliveryID := uuid.NewString()

	backoff := s.opts.RetryBackoff
	attempts := s.opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
		}

		err := s.post(body, deliveryID)
		if err == nil {
			s.logger.Debug("webhook delivered",
				logging.Int64(logging.FieldRowID, rec.RowID),
				logging.Int(logging.FieldAttempt, attempt),
				logging.String("delivery_id", deliveryID),
			)
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		if attempt == attempts {
			s.logger.Warn("webhook delivery abandoned",
				logging.Int64(logging.FieldRowID, rec.RowID),
				logging.Int(logging.FieldAttempt, attempt),
				logging.String(logging.FieldEventType, "webhook_exhausted"),
				logging.String(logging.FieldErrorHint, "check endpoint availability"),
				logging.Error(err),
			)
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if next := backoff * 2; next <= maxRetryBackoff {
			backoff = next
		}
	}
}

func (s *WebhookSink) post(body []byte, deliveryID string) error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tattle-Delivery", deliveryID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
