// Package collector orchestrates one capture run: it fans out the full
// provider set concurrently under an overall deadline, tolerates partial
// failure, and assembles the composite visit record.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
	"github.com/ashita-ai/raikyaku/internal/telemetry"
)

// FailureTimeout is the failure reason recorded when a provider missed
// its deadline.
const FailureTimeout = "timeout"

// Collector runs a fixed provider set. Providers are stateless, so one
// Collector serves concurrent captures.
type Collector struct {
	providers       []provider.Provider
	overallDeadline time.Duration
	defaultTimeout  time.Duration
	logger          *slog.Logger

	captureDuration  metric.Float64Histogram
	providerFailures metric.Int64Counter
}

// New creates a Collector. overallDeadline bounds the whole run;
// defaultTimeout applies to providers that do not declare their own.
func New(providers []provider.Provider, overallDeadline, defaultTimeout time.Duration, logger *slog.Logger) *Collector {
	meter := telemetry.Meter("raikyaku/collector")
	capDur, _ := meter.Float64Histogram("raikyaku.capture.duration",
		metric.WithDescription("Time to assemble one visit record (ms)"),
		metric.WithUnit("ms"),
	)
	failures, _ := meter.Int64Counter("raikyaku.provider.failures",
		metric.WithDescription("Provider failures by name and reason"),
	)
	return &Collector{
		providers:        providers,
		overallDeadline:  overallDeadline,
		defaultTimeout:   defaultTimeout,
		logger:           logger,
		captureDuration:  capDur,
		providerFailures: failures,
	}
}

type outcome struct {
	name    string
	section model.Section
	err     error
}

// Run executes every provider concurrently and assembles the record.
// It always returns a visit: a provider failure or timeout leaves its
// section nil and records the reason in Failures. A provider that
// answers after its deadline is discarded, never merged.
func (c *Collector) Run(ctx context.Context, in provider.Input) *model.Visit {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.overallDeadline)
	defer cancel()

	results := make(chan outcome, len(c.providers))
	for _, p := range c.providers {
		go c.supervise(ctx, p, in, results)
	}

	now := time.Now()
	visit := &model.Visit{
		ID:        uuid.New(),
		Timestamp: now.UTC(),
		LocalTime: now.Format("1/2/2006, 3:04:05 PM"),
		Failures:  make(map[string]string),
	}

	for range c.providers {
		o := <-results
		switch {
		case o.err == nil && o.section != nil:
			o.section.Apply(visit)
		case errors.Is(o.err, provider.ErrNotReported):
			visit.Failures[o.name] = provider.ErrNotReported.Error()
		case errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled):
			visit.Failures[o.name] = FailureTimeout
			c.providerFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", o.name),
				attribute.String("reason", FailureTimeout),
			))
		default:
			visit.Failures[o.name] = o.err.Error()
			c.providerFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", o.name),
				attribute.String("reason", "error"),
			))
		}
	}
	if len(visit.Failures) == 0 {
		visit.Failures = nil
	}

	c.captureDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	c.logger.DebugContext(ctx, "capture assembled",
		slog.String("visit_id", visit.ID.String()),
		slog.Int("failures", len(visit.Failures)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return visit
}

// supervise runs one provider under its per-call timeout and delivers
// exactly one outcome. The inner channel is buffered so a provider that
// answers late unblocks into garbage instead of leaking a goroutine.
func (c *Collector) supervise(ctx context.Context, p provider.Provider, in provider.Input, results chan<- outcome) {
	timeout := p.Timeout()
	if timeout <= 0 || timeout > c.overallDeadline {
		timeout = c.defaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		section, err := p.Collect(pctx, in)
		done <- outcome{name: p.Name(), section: section, err: err}
	}()

	select {
	case o := <-done:
		results <- o
	case <-pctx.Done():
		results <- outcome{name: p.Name(), err: pctx.Err()}
	}
}
