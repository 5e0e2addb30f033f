package broker

import (
	"context"
	"time"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// CentralizedBroker routes candidate inputs from secondaries to the main
// evaluator and forwards every other tag verbatim.
type CentralizedBroker struct {
	transport  transport.Broker
	compressor codec.Codec
}

// NewCentralizedBroker wraps tb with the centralized dispatch policy.
func NewCentralizedBroker(tb transport.Broker, compressor codec.Codec) *CentralizedBroker {
	return &CentralizedBroker{transport: tb, compressor: compressor}
}

// Bind implements the bind(port, shmem_provider) -> broker operation.
func (b *CentralizedBroker) Bind(addr string) error {
	return b.transport.Bind(addr)
}

// SetExitCleanlyAfter implements set_exit_cleanly_after(n).
func (b *CentralizedBroker) SetExitCleanlyAfter(n int) {
	b.transport.SetExitCleanlyAfter(n)
}

// Run enters broker_loop. pollInterval and stallTimeout select tight vs.
// timeout mode; pass stallTimeout=0 for tight mode.
func (b *CentralizedBroker) Run(ctx context.Context, pollInterval, stallTimeout time.Duration) error {
	return Run(ctx, b.transport, centralizedDispatch, b.compressor, pollInterval, stallTimeout)
}

func (b *CentralizedBroker) Close() error { return b.transport.Close() }

// centralizedDispatch implements the centralized dispatch policy: only
// tag==TagToMain is ever inspected, and only NewTestcase on that tag is
// forwardable. Deserializing only the to-main payload keeps the fast path
// (every other tag) zero-copy.
func centralizedDispatch(compressor codec.Codec, tag wire.Tag, flags wire.Flags, payload []byte) transport.DispatchResult {
	if tag != wire.TagToMain {
		return transport.ForwardToClients
	}

	body := payload
	if flags.Has(wire.FlagCompressed) && compressor != nil {
		if out, err := compressor.Decompress(payload); err == nil {
			body = out
		}
	}

	kind, err := wire.PeekKind(body)
	if err != nil {
		return transport.Handled
	}

	if kind == wire.KindNewTestcase {
		return transport.ForwardToClients
	}
	return transport.Handled
}
