// Package provider defines the attribute provider abstraction: a named
// unit of work with a capability kind and a per-call timeout, producing
// one typed section of a visit record or an explicit absence.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// Kind describes how a provider obtains its result.
type Kind string

const (
	// KindSingle is one bounded call.
	KindSingle Kind = "single"
	// KindFallbackChain tries endpoints sequentially until one succeeds.
	KindFallbackChain Kind = "fallback-chain"
	// KindRaceMerge queries endpoints concurrently and merges everything
	// that arrives before the deadline.
	KindRaceMerge Kind = "race-merge"
)

// ErrNotReported marks a hint the client did not send. The collector
// records it as a failure reason, not an error condition.
var ErrNotReported = errors.New("not reported")

// Input carries everything a provider may need for one run. Providers
// are stateless; Input is read-only to them.
type Input struct {
	Request model.CaptureRequest
	// RemoteAddr is the host part of the HTTP peer address.
	RemoteAddr string
	// ClientIP is the best-effort public client address, used to key
	// IP-derived lookups. Falls back to RemoteAddr when no forwarding
	// header is present.
	ClientIP string
}

// Provider is a unit of attribute collection, invoked once per
// orchestration run.
type Provider interface {
	Name() string
	Kind() Kind
	// Timeout is the per-call budget. Zero means the orchestrator's
	// default applies.
	Timeout() time.Duration
	Collect(ctx context.Context, in Input) (model.Section, error)
}

// Func adapts a collect function to the Provider interface.
type Func struct {
	name    string
	kind    Kind
	timeout time.Duration
	collect func(ctx context.Context, in Input) (model.Section, error)
}

// New builds a Provider from a collect function.
func New(name string, kind Kind, timeout time.Duration, collect func(context.Context, Input) (model.Section, error)) *Func {
	return &Func{name: name, kind: kind, timeout: timeout, collect: collect}
}

func (f *Func) Name() string           { return f.name }
func (f *Func) Kind() Kind             { return f.kind }
func (f *Func) Timeout() time.Duration { return f.timeout }

func (f *Func) Collect(ctx context.Context, in Input) (model.Section, error) {
	return f.collect(ctx, in)
}
