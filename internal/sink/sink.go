// Package sink delivers copies of new visit records to a remote
// destination. Delivery is fire-and-forget: a failed or dropped
// delivery never affects the local log.
package sink

import (
	"context"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// Sink sends one visit record to a destination. Implementations must
// honor ctx cancellation and may be called concurrently.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, v model.Visit) error
}

// Noop discards every record. It is the default when no sink is
// configured.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Deliver(context.Context, model.Visit) error { return nil }
