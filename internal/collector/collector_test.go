package collector_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/raikyaku/internal/collector"
	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
)

func pageProvider() provider.Provider {
	return provider.New("page", provider.KindSingle, 0, func(_ context.Context, in provider.Input) (model.Section, error) {
		return &model.PageInfo{URL: in.Request.PageURL}, nil
	})
}

func run(c *collector.Collector) *model.Visit {
	return c.Run(context.Background(), provider.Input{Request: model.CaptureRequest{PageURL: "https://shop.example/"}})
}

func TestRunAssemblesSections(t *testing.T) {
	screen := provider.New("screen", provider.KindSingle, 0, func(context.Context, provider.Input) (model.Section, error) {
		return &model.ScreenInfo{ScreenWidth: 1920, ScreenHeight: 1080}, nil
	})
	c := collector.New([]provider.Provider{pageProvider(), screen}, time.Second, 500*time.Millisecond, slog.Default())

	visit := run(c)
	require.NotNil(t, visit.Page)
	require.NotNil(t, visit.Screen)
	assert.Equal(t, "https://shop.example/", visit.Page.URL)
	assert.Equal(t, 1920, visit.Screen.ScreenWidth)
	assert.NotEqual(t, "", visit.ID.String())
	assert.Nil(t, visit.Failures)
}

func TestRunRecordsFailures(t *testing.T) {
	missing := provider.New("battery", provider.KindSingle, 0, func(context.Context, provider.Input) (model.Section, error) {
		return nil, provider.ErrNotReported
	})
	broken := provider.New("location", provider.KindFallbackChain, 0, func(context.Context, provider.Input) (model.Section, error) {
		return nil, errors.New("all endpoints failed")
	})
	c := collector.New([]provider.Provider{pageProvider(), missing, broken}, time.Second, 500*time.Millisecond, slog.Default())

	visit := run(c)
	require.NotNil(t, visit.Page)
	assert.Nil(t, visit.Battery)
	assert.Nil(t, visit.Location)
	assert.Equal(t, "not reported", visit.Failures["battery"])
	assert.Equal(t, "all endpoints failed", visit.Failures["location"])
}

func TestRunDiscardsLateResult(t *testing.T) {
	var delivered atomic.Bool
	slow := provider.New("gpu", provider.KindSingle, 50*time.Millisecond, func(ctx context.Context, _ provider.Input) (model.Section, error) {
		time.Sleep(200 * time.Millisecond)
		delivered.Store(true)
		return &model.GPUInfo{Renderer: "late"}, nil
	})
	c := collector.New([]provider.Provider{pageProvider(), slow}, time.Second, 500*time.Millisecond, slog.Default())

	visit := run(c)
	require.NotNil(t, visit.Page)
	assert.Nil(t, visit.GPU)
	assert.Equal(t, collector.FailureTimeout, visit.Failures["gpu"])

	// The slow provider eventually finishes; its result must stay out of
	// the already-assembled record.
	time.Sleep(250 * time.Millisecond)
	assert.True(t, delivered.Load())
	assert.Nil(t, visit.GPU)
}

func TestRunBoundedByOverallDeadline(t *testing.T) {
	hang := provider.New("storage", provider.KindSingle, time.Hour, func(ctx context.Context, _ provider.Input) (model.Section, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	// Declared timeout exceeds the overall deadline, so the default
	// applies and the run still finishes quickly.
	c := collector.New([]provider.Provider{hang}, 300*time.Millisecond, 100*time.Millisecond, slog.Default())

	start := time.Now()
	visit := run(c)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, collector.FailureTimeout, visit.Failures["storage"])
}

func TestRunTimestampsNonDecreasing(t *testing.T) {
	c := collector.New([]provider.Provider{pageProvider()}, time.Second, 500*time.Millisecond, slog.Default())
	prev := run(c).Timestamp
	for i := 0; i < 5; i++ {
		cur := run(c).Timestamp
		assert.False(t, cur.Before(prev), "timestamps must be non-decreasing")
		prev = cur
	}
}
