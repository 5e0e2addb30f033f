// Package evmgr implements the centralized event manager: the
// secondary-role firer and the main-role receiver/evaluator, split into
// two concrete types rather than unified behind an is_main flag.
package evmgr

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/innermgr"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// Manager is the shared surface both roles satisfy.
type Manager interface {
	Fire(ctx context.Context, ev wire.Event) error
	OnRestart(ctx context.Context) error
	SendExiting(ctx context.Context) error
	AwaitRestartSafe(ctx context.Context) error
	MgrID() uint32
}

// Config wires a centralized manager to its collaborators. ClientConfig
// identifies this participant's observer-compatibility class; the main
// evaluator compares it against each incoming NewTestcase's ClientConfig
// to decide trusted-acceptance vs. re-execution.
type Config struct {
	Inner        innermgr.Manager
	Client       transport.Client
	Compressor   codec.Codec
	ClientConfig string
}

func send(client transport.Client, compressor codec.Codec, ev wire.Event) error {
	payload, err := wire.Serialize(ev)
	if err != nil {
		return evmerr.Wrap(evmerr.Serialize, "serialize event for centralized channel", err)
	}

	flags := wire.FlagInitialized
	if compressor != nil {
		out, compressed, err := codec.MaybeCompress(compressor, payload)
		if err != nil {
			return err
		}
		payload = out
		if compressed {
			flags |= wire.FlagCompressed
		}
	}

	return client.SendBufWithFlags(wire.TagToMain, flags, payload)
}

func decodeIncoming(compressor codec.Codec, flags wire.Flags, payload []byte) (wire.Event, error) {
	if flags.Has(wire.FlagCompressed) {
		if compressor == nil {
			return nil, evmerr.New(evmerr.Serialize, "compressed payload but no codec configured")
		}
		out, err := compressor.Decompress(payload)
		if err != nil {
			return nil, evmerr.Wrap(evmerr.Serialize, "decompress event payload", err)
		}
		payload = out
	}
	ev, err := wire.Deserialize(payload)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "deserialize event", err)
	}
	return ev, nil
}
