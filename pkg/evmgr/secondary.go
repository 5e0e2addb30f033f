package evmgr

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/innermgr"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// SecondaryManager is the centralized event manager for any fuzzer client
// that is not the main evaluator. Its fire path forwards
// candidate inputs to the centralized broker and never publishes them
// itself into the inner (main-broker-facing) manager — that is the main
// evaluator's job, once it has accepted the input.
type SecondaryManager struct {
	inner      innermgr.Manager
	client     transport.Client
	compressor codec.Codec
}

// NewSecondary returns a SecondaryManager.
func NewSecondary(cfg Config) *SecondaryManager {
	return &SecondaryManager{
		inner:      cfg.Inner,
		client:     cfg.Client,
		compressor: cfg.Compressor,
	}
}

func (m *SecondaryManager) MgrID() uint32 { return m.client.ID() }

// Fire is the secondary's hot path.
func (m *SecondaryManager) Fire(ctx context.Context, ev wire.Event) error {
	var forward, isTestcase bool

	switch e := ev.(type) {
	case wire.NewTestcase:
		myID := m.client.ID()
		e.ForwardID = &myID
		ev = e
		forward = true
		isTestcase = true
	case wire.UpdateExecStats:
		// Forwarded only so the centralized broker sees traffic from this
		// client; the broker discards it rather than fanning it out.
		forward = true
		isTestcase = false
	default:
		forward = false
	}

	if forward {
		if err := send(m.client, m.compressor, ev); err != nil {
			return err
		}
	}

	if isTestcase {
		// The main evaluator is the single publisher to the main broker
		// for this class of event; firing it here too would duplicate
		// the eventual broadcast.
		return nil
	}

	return m.inner.Fire(ctx, ev)
}

func (m *SecondaryManager) SendExiting(ctx context.Context) error {
	return m.inner.SendExiting(ctx)
}

// AwaitRestartSafe blocks until the transport confirms this client's
// shared pages are safe to unmap, then delegates to the inner manager —
// the two-phase shutdown that prevents readers crashing on a vanished
// sender page.
func (m *SecondaryManager) AwaitRestartSafe(ctx context.Context) error {
	if err := m.client.AwaitSafeToUnmapBlocking(ctx); err != nil {
		return err
	}
	return m.inner.AwaitRestartSafe(ctx)
}

func (m *SecondaryManager) OnRestart(ctx context.Context) error {
	if err := m.AwaitRestartSafe(ctx); err != nil {
		return err
	}
	return m.inner.OnRestart(ctx)
}
