package sink_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/sink"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []uuid.UUID
	fail      atomic.Bool
	block     chan struct{}
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(ctx context.Context, v model.Visit) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.fail.Load() {
		return errors.New("destination unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, v.ID)
	return nil
}

func (r *recordingSink) ids() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.delivered...)
}

func visit() model.Visit {
	return model.Visit{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

func TestDispatcherDeliversAsync(t *testing.T) {
	rec := &recordingSink{}
	d := sink.NewDispatcher(rec, 8, time.Second, slog.Default())
	d.Start()

	v := visit()
	d.Enqueue(v)
	d.Drain(context.Background())

	require.Len(t, rec.ids(), 1)
	assert.Equal(t, v.ID, rec.ids()[0])
}

func TestDispatcherDrainFlushesQueue(t *testing.T) {
	rec := &recordingSink{}
	d := sink.NewDispatcher(rec, 8, time.Second, slog.Default())
	d.Start()

	for i := 0; i < 5; i++ {
		d.Enqueue(visit())
	}
	d.Drain(context.Background())
	assert.Len(t, rec.ids(), 5)
}

func TestDispatcherDropsOnOverflow(t *testing.T) {
	rec := &recordingSink{block: make(chan struct{})}
	d := sink.NewDispatcher(rec, 1, time.Second, slog.Default())
	d.Start()

	// The worker blocks on the first delivery; the queue holds one more.
	// Everything beyond that is dropped, and Enqueue never blocks.
	for i := 0; i < 10; i++ {
		d.Enqueue(visit())
	}
	close(rec.block)
	d.Drain(context.Background())
	assert.LessOrEqual(t, len(rec.ids()), 2)
}

func TestDispatcherDropsFailedDeliveryWithoutRetry(t *testing.T) {
	rec := &recordingSink{}
	rec.fail.Store(true)
	d := sink.NewDispatcher(rec, 8, time.Second, slog.Default())
	d.Start()

	d.Enqueue(visit())
	d.Drain(context.Background())
	assert.Empty(t, rec.ids())
}

func TestDispatcherEnqueueAfterDrain(t *testing.T) {
	rec := &recordingSink{}
	d := sink.NewDispatcher(rec, 8, time.Second, slog.Default())
	d.Start()
	d.Drain(context.Background())

	// Must not panic or block.
	d.Enqueue(visit())
	assert.Empty(t, rec.ids())
}

func TestDispatcherDrainWithoutStart(t *testing.T) {
	d := sink.NewDispatcher(&recordingSink{}, 8, time.Second, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Drain(ctx) // returns promptly, no worker to wait for
}

func TestWebhookSink(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := sink.NewWebhook(srv.URL, srv.Client())
	require.NoError(t, w.Deliver(context.Background(), visit()))
	assert.Equal(t, "application/json", got.Load())
}

func TestWebhookSinkNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := sink.NewWebhook(srv.URL, srv.Client())
	assert.Error(t, w.Deliver(context.Background(), visit()))
}
