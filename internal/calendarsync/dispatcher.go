package calendarsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/clinic-scheduler/internal/application"
)

// DefaultQueueSize is used when a dispatcher is built without a queue size.
const DefaultQueueSize = 256

const defaultDeliveryTimeout = 10 * time.Second

// ErrDispatcherClosed is reported by Start after Close.
var ErrDispatcherClosed = errors.New("calendarsync: dispatcher closed")

// Adapter delivers one occurrence event to an external calendar.
type Adapter interface {
	Name() string
	Deliver(ctx context.Context, event application.OccurrenceEvent) error
}

// Dispatcher is an asynchronous application.SyncPublisher. Publish never
// blocks: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	adapter Adapter
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	queue   chan application.OccurrenceEvent
	closed  bool
	started bool
	done    chan struct{}
	stats   Stats
}

// Stats counts what happened to published events.
type Stats struct {
	Published int
	Delivered int
	Failed    int
	Dropped   int
}

var _ application.SyncPublisher = (*Dispatcher)(nil)

// NewDispatcher constructs a dispatcher around adapter.
func NewDispatcher(adapter Adapter, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		adapter: adapter,
		logger:  logger.With("component", "calendarsync", "adapter", adapterName(adapter)),
		timeout: defaultDeliveryTimeout,
		queue:   make(chan application.OccurrenceEvent, queueSize),
		done:    make(chan struct{}),
	}
}

// WithDeliveryTimeout bounds each adapter call.
func (d *Dispatcher) WithDeliveryTimeout(timeout time.Duration) *Dispatcher {
	if d != nil && timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Start launches the delivery goroutine. It runs until Close is called;
// ctx only carries values such as the logger into deliveries.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.started {
		return nil
	}
	d.started = true
	go d.run(context.WithoutCancel(ctx))
	return nil
}

// Publish queues event for delivery.
func (d *Dispatcher) Publish(ctx context.Context, event application.OccurrenceEvent) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.stats.Dropped++
		d.logger.WarnContext(ctx, "dispatcher closed, dropping event", eventAttrs(event)...)
		return
	}
	select {
	case d.queue <- event:
		d.stats.Published++
	default:
		d.stats.Dropped++
		d.logger.WarnContext(ctx, "sync queue full, dropping event", eventAttrs(event)...)
	}
}

// Close stops accepting events, drains the queue, and waits for the
// delivery goroutine until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event application.OccurrenceEvent) {
	if d.adapter == nil {
		return
	}
	deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.adapter.Deliver(deliverCtx, event)

	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Delivered++
	}
	d.mu.Unlock()

	if err != nil {
		attrs := append(eventAttrs(event), "error", err)
		d.logger.ErrorContext(ctx, "failed to deliver occurrence event", attrs...)
		return
	}
	d.logger.DebugContext(ctx, "occurrence event delivered", eventAttrs(event)...)
}

func eventAttrs(event application.OccurrenceEvent) []any {
	return []any{
		"kind", string(event.Kind),
		"occurrence_id", event.OccurrenceID,
		"series_id", event.SeriesID,
	}
}

func adapterName(adapter Adapter) string {
	if adapter == nil {
		return "none"
	}
	return adapter.Name()
}
