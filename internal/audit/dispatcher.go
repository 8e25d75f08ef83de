package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier accepts audit events. Notify must not block the caller and
// never reports failure.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Observer receives dispatcher outcomes, typically metrics.
type Observer interface {
	AuditDropped()
	AuditDelivered(sink string, err error)
}

// Dispatcher queues events on a bounded channel and fans them out to sinks
// from a single worker goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	sinks    []Sink
	events   chan Event
	closed   bool
	timeout  time.Duration
	retry    RetryPolicy
	observer Observer
	done     chan struct{}
	start    sync.Once
}

// NewDispatcher creates a dispatcher with the given queue size and
// per-delivery timeout.
func NewDispatcher(bufSize int, timeout time.Duration) *Dispatcher {
	if bufSize <= 0 {
		bufSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		events:  make(chan Event, bufSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// SetObserver attaches an outcome observer.
func (d *Dispatcher) SetObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = o
}

// SetRetryPolicy replaces the redelivery policy. The zero policy delivers
// each event once.
func (d *Dispatcher) SetRetryPolicy(p RetryPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retry = p
}

// Subscribe adds a sink.
func (d *Dispatcher) Subscribe(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Notify enqueues e. A full queue or closed dispatcher drops the event.
func (d *Dispatcher) Notify(_ context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped(e, "dispatcher closed")
		return
	}
	select {
	case d.events <- e:
	default:
		d.dropped(e, "queue full")
	}
}

func (d *Dispatcher) dropped(e Event, reason string) {
	slog.Warn("audit event dropped", "reason", reason, "action", e.Action, "org", e.OrganizationID)
	if d.observer != nil {
		d.observer.AuditDropped()
	}
}

// Start launches the delivery worker. It runs until Close drains the queue.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		go d.run()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	observer := d.observer
	policy := d.retry
	d.mu.RUnlock()

	for _, s := range sinks {
		err := deliverWithRetry(s, e, policy, d.timeout)
		if err != nil {
			slog.Warn("audit sink failed", "sink", s.Name(), "action", e.Action, "err", err)
		}
		if observer != nil {
			observer.AuditDelivered(s.Name(), err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
