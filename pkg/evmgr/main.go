package evmgr

import (
	"context"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/evmerr"
	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
	"github.com/cuemby/fuzzmux/pkg/innermgr"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

// MainManager is the centralized event manager for the distinguished
// client that owns the authoritative corpus. It never
// produces NewTestcase events via the centralized channel; it only
// consumes them and, on acceptance, re-publishes through the inner
// manager to complete the fan-out to every peer.
type MainManager struct {
	inner        innermgr.Manager
	client       transport.Client
	compressor   codec.Codec
	clientConfig string
}

// NewMain returns a MainManager.
func NewMain(cfg Config) *MainManager {
	return &MainManager{
		inner:        cfg.Inner,
		client:       cfg.Client,
		compressor:   cfg.Compressor,
		clientConfig: cfg.ClientConfig,
	}
}

func (m *MainManager) MgrID() uint32 { return m.client.ID() }

// Fire forwards UpdateExecStats heartbeats on the centralized channel and
// delegates every event to the inner manager. It has no NewTestcase
// forwarding branch: the main evaluator only emits NewTestcase via the
// inner manager, from handleInMain below.
func (m *MainManager) Fire(ctx context.Context, ev wire.Event) error {
	if _, ok := ev.(wire.UpdateExecStats); ok {
		if err := send(m.client, m.compressor, ev); err != nil {
			return err
		}
	}
	return m.inner.Fire(ctx, ev)
}

func (m *MainManager) SendExiting(ctx context.Context) error {
	return m.inner.SendExiting(ctx)
}

func (m *MainManager) AwaitRestartSafe(ctx context.Context) error {
	if err := m.client.AwaitSafeToUnmapBlocking(ctx); err != nil {
		return err
	}
	return m.inner.AwaitRestartSafe(ctx)
}

func (m *MainManager) OnRestart(ctx context.Context) error {
	if err := m.AwaitRestartSafe(ctx); err != nil {
		return err
	}
	return m.inner.OnRestart(ctx)
}

// Process drains the centralized transport non-blockingly, dispatching
// each NewTestcase to handleInMain.
func (m *MainManager) Process(ctx context.Context, fuzzer fuzzcore.Fuzzer, executor fuzzcore.Executor) (int, error) {
	selfID := m.client.ID()
	processed := 0

	for {
		frame, ok, err := m.client.RecvBufWithFlags()
		if err != nil {
			return processed, evmerr.Wrap(evmerr.Transport, "recv from centralized transport", err)
		}
		if !ok {
			return processed, nil
		}

		if frame.Tag != wire.TagToMain {
			return processed, evmerr.New(evmerr.IllegalState, "non-TAG_TO_MAIN frame observed on centralized channel")
		}

		if frame.ClientID == selfID {
			// Loop suppression: the main evaluator never processes its
			// own posts back to itself.
			continue
		}

		ev, err := decodeIncoming(m.compressor, frame.Flags, frame.Payload)
		if err != nil {
			return processed, err
		}

		if err := m.handleInMain(ctx, fuzzer, executor, ev); err != nil {
			return processed, err
		}
		processed++
	}
}

// handleInMain is the re-check-or-trust evaluator.
func (m *MainManager) handleInMain(ctx context.Context, fuzzer fuzzcore.Fuzzer, executor fuzzcore.Executor, ev wire.Event) error {
	nt, ok := ev.(wire.NewTestcase)
	if !ok {
		return evmerr.New(evmerr.IllegalState, "handle_in_main received a non-NewTestcase variant")
	}

	var (
		corpusID *fuzzcore.CorpusID
		err      error
	)

	trusted := nt.ClientConfig == m.clientConfig && nt.ObserversBuf != nil
	if trusted {
		// sendEvents=false is load-bearing: true would re-fire into the
		// centralized channel and create a loop.
		_, corpusID, err = fuzzer.ExecuteAndProcess(ctx, nt.Input, nt.ObserversBuf, nt.ExitKind, false)
	} else {
		_, corpusID, err = fuzzer.EvaluateInputWithObservers(ctx, executor, nt.Input, false)
	}
	if err != nil {
		return evmerr.Wrap(evmerr.Unknown, "evaluate forwarded testcase", err)
	}

	if corpusID == nil {
		return nil
	}

	// Re-fire nt exactly as received: every other attached peer must see
	// the same NewTestcase the originating secondary reported, including
	// its ExitKind, regardless of what this re-evaluation computed locally.
	return m.inner.Fire(ctx, nt)
}
