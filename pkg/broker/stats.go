package broker

import (
	"context"
	"time"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// StatsBroker is the main broker: it aggregates statistics and
// broadcasts accepted inputs to every fuzzer client. It shares
// CentralizedBroker's loop plumbing but with no TagToMain special-casing
// — every message it receives is forwarded.
type StatsBroker struct {
	transport transport.Broker
}

// NewStatsBroker wraps tb with the no-special-casing dispatch policy.
func NewStatsBroker(tb transport.Broker) *StatsBroker {
	return &StatsBroker{transport: tb}
}

func (b *StatsBroker) Bind(addr string) error { return b.transport.Bind(addr) }

func (b *StatsBroker) SetExitCleanlyAfter(n int) { b.transport.SetExitCleanlyAfter(n) }

func (b *StatsBroker) Run(ctx context.Context, pollInterval, stallTimeout time.Duration) error {
	return Run(ctx, b.transport, statsDispatch, nil, pollInterval, stallTimeout)
}

func (b *StatsBroker) Close() error { return b.transport.Close() }

func statsDispatch(_ codec.Codec, _ wire.Tag, _ wire.Flags, _ []byte) transport.DispatchResult {
	return transport.ForwardToClients
}
