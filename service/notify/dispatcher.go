// Package notify delivers purchase notifications in the background. A
// notification that cannot be delivered is logged and counted; it never
// affects the purchase it describes.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/craftmint/service/metrics"
	"github.com/brojonat/craftmint/service/purchase"
)

// ErrSkipped is returned by a Channel that has nothing to deliver for a
// notification, such as an email channel when no address was given.
var ErrSkipped = errors.New("notification skipped")

// Channel delivers one kind of notification.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n purchase.Notification) error
}

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration // per channel delivery
}

// Dispatcher fans notifications out to its channels from a bounded queue
// served by a fixed pool of workers.
type Dispatcher struct {
	channels []Channel
	queue    chan purchase.Notification
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Call Start before Notify. m may be nil.
func NewDispatcher(channels []Channel, opts Options, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		queue:    make(chan purchase.Notification, opts.QueueSize),
		opts:     opts,
		logger:   logger.With("component", "notify"),
		metrics:  m,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.logger.Info("notification dispatcher started",
		"workers", d.opts.Workers,
		"queue_size", d.opts.QueueSize,
		"channels", d.channelNames(),
	)
}

// Notify enqueues n without blocking. It returns false if the queue is full
// or the dispatcher is closed.
func (d *Dispatcher) Notify(n purchase.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- n:
		d.recordDepth()
		return true
	default:
		d.logger.Warn("notification queue full",
			"transaction_reference", n.TransactionReference,
			"queue_size", d.opts.QueueSize,
		)
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification dispatcher stopped before draining", "pending", len(d.queue))
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.recordDepth()
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n purchase.Notification) {
	for _, ch := range d.channels {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err := d.deliverOne(ctx, ch, n)
		cancel()

		status := "success"
		switch {
		case errors.Is(err, ErrSkipped):
			status = "skipped"
		case err != nil:
			status = "error"
			d.logger.Warn("notification delivery failed",
				"channel", ch.Name(),
				"transaction_reference", n.TransactionReference,
				"artifact_id", n.Artifact.ID,
				"error", err,
			)
		}
		if d.metrics != nil {
			d.metrics.RecordNotification(ch.Name(), status)
		}
	}
}

// deliverOne isolates channel panics so one bad channel cannot kill a worker.
func (d *Dispatcher) deliverOne(ctx context.Context, ch Channel, n purchase.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("channel panicked")
			d.logger.Error("notification channel panicked", "channel", ch.Name(), "panic", r)
		}
	}()
	return ch.Deliver(ctx, n)
}

func (d *Dispatcher) recordDepth() {
	if d.metrics != nil {
		d.metrics.SetNotificationQueueDepth(len(d.queue))
	}
}

func (d *Dispatcher) channelNames() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}
