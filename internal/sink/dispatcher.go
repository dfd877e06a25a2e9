package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/telemetry"
)

// Dispatcher feeds records to a Sink from a bounded queue on a single
// background worker. When the queue is full or a delivery fails, the
// record is dropped and counted; capture latency never depends on the
// destination.
type Dispatcher struct {
	sink    Sink
	queue   chan model.Visit
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	done    chan struct{}

	delivered metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewDispatcher builds a dispatcher over sink with the given queue depth
// and per-delivery timeout.
func NewDispatcher(s Sink, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	meter := telemetry.Meter("raikyaku/sink")
	delivered, _ := meter.Int64Counter("raikyaku.sink.delivered",
		metric.WithDescription("Visit records delivered to the sink"),
	)
	dropped, _ := meter.Int64Counter("raikyaku.sink.dropped",
		metric.WithDescription("Visit records dropped before or during delivery"),
	)
	return &Dispatcher{
		sink:      s,
		queue:     make(chan model.Visit, queueSize),
		timeout:   timeout,
		logger:    logger,
		done:      make(chan struct{}),
		delivered: delivered,
		dropped:   dropped,
	}
}

// Start launches the delivery worker. Safe to call only once; repeated
// calls are no-ops with a warning.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		d.logger.Warn("sink dispatcher: Start called more than once, ignoring")
		return
	}
	go d.loop()
}

// Enqueue hands a record to the worker without blocking. A full queue or
// a stopped dispatcher drops the record.
func (d *Dispatcher) Enqueue(v model.Visit) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(v, "dispatcher stopped")
		return
	}
	select {
	case d.queue <- v:
	default:
		d.drop(v, "queue full")
	}
}

// Drain stops intake, lets the worker deliver what is already queued,
// and blocks until it finishes or ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if !d.started.Load() {
		return
	}
	select {
	case <-d.done:
	case <-ctx.Done():
		d.logger.Warn("sink dispatcher: drain deadline expired with deliveries pending")
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for v := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Deliver(ctx, v)
		cancel()
		if err != nil {
			d.drop(v, err.Error())
			continue
		}
		d.delivered.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("sink", d.sink.Name()),
		))
	}
}

func (d *Dispatcher) drop(v model.Visit, reason string) {
	d.dropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("sink", d.sink.Name()),
	))
	d.logger.Warn("sink delivery dropped",
		slog.String("visit_id", v.ID.String()),
		slog.String("sink", d.sink.Name()),
		slog.String("reason", reason),
	)
}
