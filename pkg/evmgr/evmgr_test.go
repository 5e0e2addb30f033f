package evmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

type fakeClient struct {
	id    uint32
	sent  []wire.Frame
	recvQ []wire.Frame
}

func (f *fakeClient) ID() uint32 { return f.id }

func (f *fakeClient) SendBuf(tag wire.Tag, payload []byte) error {
	return f.SendBufWithFlags(tag, wire.FlagInitialized, payload)
}

func (f *fakeClient) SendBufWithFlags(tag wire.Tag, flags wire.Flags, payload []byte) error {
	f.sent = append(f.sent, wire.Frame{Tag: tag, Flags: flags, ClientID: f.id, Payload: payload})
	return nil
}

func (f *fakeClient) RecvBufWithFlags() (*wire.Frame, bool, error) {
	if len(f.recvQ) == 0 {
		return nil, false, nil
	}
	frame := f.recvQ[0]
	f.recvQ = f.recvQ[1:]
	return &frame, true, nil
}

func (f *fakeClient) Describe() (transport.Description, error) { return transport.Description{}, nil }
func (f *fakeClient) AwaitSafeToUnmapBlocking(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error { return nil }

type fakeInner struct {
	fired []wire.Event
}

func (f *fakeInner) Fire(ctx context.Context, ev wire.Event) error {
	f.fired = append(f.fired, ev)
	return nil
}
func (f *fakeInner) Log(ctx context.Context, msg string) error            { return nil }
func (f *fakeInner) OnRestart(ctx context.Context) error                  { return nil }
func (f *fakeInner) SendExiting(ctx context.Context) error                { return nil }
func (f *fakeInner) AwaitRestartSafe(ctx context.Context) error           { return nil }
func (f *fakeInner) MgrID() uint32                                        { return 0 }
func (f *fakeInner) Configuration() string                                { return "" }
func (f *fakeInner) SerializationTime() (int64, int64)                    { return 0, 0 }
func (f *fakeInner) DeserializationTime() (int64, int64)                  { return 0, 0 }
func (f *fakeInner) RecordSerialization(durationNanos int64, didSerialize bool) {}
func (f *fakeInner) SerializeObserversAdaptive(observers []byte, factor int, thresholdPct int) ([]byte, bool) {
	return observers, true
}

type fakeFuzzer struct {
	acceptID      *fuzzcore.CorpusID
	evaluated     bool
	trusted       bool
	localExitKind fuzzcore.ExitKind
}

func (f *fakeFuzzer) EvaluateInputWithObservers(ctx context.Context, executor fuzzcore.Executor, input []byte, sendEvents bool) (fuzzcore.ExitKind, *fuzzcore.CorpusID, error) {
	f.evaluated = true
	if f.localExitKind != "" {
		return f.localExitKind, f.acceptID, nil
	}
	return fuzzcore.ExitOk, f.acceptID, nil
}

func (f *fakeFuzzer) ExecuteAndProcess(ctx context.Context, input []byte, observersBuf []byte, exitKind fuzzcore.ExitKind, sendEvents bool) (fuzzcore.ExitKind, *fuzzcore.CorpusID, error) {
	f.trusted = true
	if f.localExitKind != "" {
		return f.localExitKind, f.acceptID, nil
	}
	return exitKind, f.acceptID, nil
}

func TestSecondaryFireNewTestcaseSetsForwardIDAndSuppressesInner(t *testing.T) {
	client := &fakeClient{id: 7}
	inner := &fakeInner{}
	m := NewSecondary(Config{Inner: inner, Client: client})

	err := m.Fire(context.Background(), wire.NewTestcase{Input: []byte{1}, ClientConfig: "cfg"})
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	ev, err := wire.Deserialize(client.sent[0].Payload)
	require.NoError(t, err)
	nt := ev.(wire.NewTestcase)
	require.NotNil(t, nt.ForwardID)
	assert.Equal(t, uint32(7), *nt.ForwardID)

	assert.Empty(t, inner.fired, "NewTestcase must not also be fired into the inner manager")
}

func TestSecondaryFireHeartbeatForwardsAndDelegates(t *testing.T) {
	client := &fakeClient{id: 1}
	inner := &fakeInner{}
	m := NewSecondary(Config{Inner: inner, Client: client})

	ev := wire.UpdateExecStats{Time: 1, Executions: 2}
	err := m.Fire(context.Background(), ev)
	require.NoError(t, err)

	assert.Len(t, client.sent, 1)
	require.Len(t, inner.fired, 1)
	assert.Equal(t, ev, inner.fired[0])
}

func TestSecondaryFireOtherEventOnlyDelegates(t *testing.T) {
	client := &fakeClient{id: 1}
	inner := &fakeInner{}
	m := NewSecondary(Config{Inner: inner, Client: client})

	ev := wire.Log{Payload: []byte("hi")}
	err := m.Fire(context.Background(), ev)
	require.NoError(t, err)

	assert.Empty(t, client.sent)
	require.Len(t, inner.fired, 1)
}

func payloadFrame(tag wire.Tag, clientID uint32, ev wire.Event) wire.Frame {
	buf, _ := wire.Serialize(ev)
	return wire.Frame{Tag: tag, Flags: wire.FlagInitialized, ClientID: clientID, Payload: buf}
}

func TestMainProcessSkipsSelf(t *testing.T) {
	client := &fakeClient{id: 5}
	client.recvQ = []wire.Frame{payloadFrame(wire.TagToMain, 5, wire.NewTestcase{Input: []byte{1}})}
	inner := &fakeInner{}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	n, err := m.Process(context.Background(), &fakeFuzzer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "loop suppression: zero events processed")
}

func TestMainProcessRejectsWrongTag(t *testing.T) {
	client := &fakeClient{id: 5}
	client.recvQ = []wire.Frame{payloadFrame(wire.Tag(999), 1, wire.NewTestcase{Input: []byte{1}})}
	inner := &fakeInner{}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	_, err := m.Process(context.Background(), &fakeFuzzer{}, nil)
	assert.Error(t, err)
}

func TestMainProcessTrustedObserversAccepted(t *testing.T) {
	client := &fakeClient{id: 5}
	nt := wire.NewTestcase{Input: []byte{0xAA}, ClientConfig: "cfg", ObserversBuf: []byte{0x01}}
	client.recvQ = []wire.Frame{payloadFrame(wire.TagToMain, 1, nt)}
	inner := &fakeInner{}
	id := fuzzcore.CorpusID{}
	fuzzer := &fakeFuzzer{acceptID: &id}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	n, err := m.Process(context.Background(), fuzzer, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fuzzer.trusted)
	assert.False(t, fuzzer.evaluated)
	require.Len(t, inner.fired, 1, "accepted input must be fired into the inner manager")
}

func TestMainProcessMismatchedConfigReexecutes(t *testing.T) {
	client := &fakeClient{id: 5}
	nt := wire.NewTestcase{Input: []byte{0xAA}, ClientConfig: "other", ObserversBuf: []byte{0x01}}
	client.recvQ = []wire.Frame{payloadFrame(wire.TagToMain, 1, nt)}
	inner := &fakeInner{}
	fuzzer := &fakeFuzzer{}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	_, err := m.Process(context.Background(), fuzzer, nil)
	require.NoError(t, err)
	assert.True(t, fuzzer.evaluated)
	assert.False(t, fuzzer.trusted)
}

// TestMainProcessRefiresOriginalExitKind guards against re-firing the
// freshly recomputed local exit kind instead of the one the secondary
// originally reported: every other attached peer must see the identical
// NewTestcase, ExitKind included, even when local re-evaluation disagrees.
func TestMainProcessRefiresOriginalExitKind(t *testing.T) {
	client := &fakeClient{id: 5}
	nt := wire.NewTestcase{Input: []byte{0xAA}, ClientConfig: "cfg", ObserversBuf: []byte{0x01}, ExitKind: fuzzcore.ExitCrash}
	client.recvQ = []wire.Frame{payloadFrame(wire.TagToMain, 1, nt)}
	inner := &fakeInner{}
	id := fuzzcore.CorpusID{}
	fuzzer := &fakeFuzzer{acceptID: &id, localExitKind: fuzzcore.ExitOk}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	n, err := m.Process(context.Background(), fuzzer, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, inner.fired, 1)

	fired, ok := inner.fired[0].(wire.NewTestcase)
	require.True(t, ok)
	assert.Equal(t, fuzzcore.ExitCrash, fired.ExitKind, "refired event must keep the originally-received ExitKind")
}

func TestMainProcessRejectsNonNewTestcase(t *testing.T) {
	client := &fakeClient{id: 5}
	client.recvQ = []wire.Frame{payloadFrame(wire.TagToMain, 1, wire.Log{Payload: []byte("x")})}
	inner := &fakeInner{}
	m := NewMain(Config{Inner: inner, Client: client, ClientConfig: "cfg"})

	_, err := m.Process(context.Background(), &fakeFuzzer{}, nil)
	assert.Error(t, err)
}
