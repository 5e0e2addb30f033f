package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fuzzmux/pkg/wire"
)

func startBroker(t *testing.T, hook Hook) (*TCPBroker, string) {
	t.Helper()
	b := NewTCPBroker()
	require.NoError(t, b.Bind("127.0.0.1:0"))

	addr := b.ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		b.Close()
	})

	go b.Loop(ctx, hook, time.Millisecond, 0)
	return b, addr
}

func TestAttachAssignsDistinctIDs(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return ForwardToClients
	})

	c1, err := Attach(addr)
	require.NoError(t, err)
	defer c1.Close()

	c2, err := Attach(addr)
	require.NoError(t, err)
	defer c2.Close()

	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestForwardToClientsBroadcasts(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return ForwardToClients
	})

	sender, err := Attach(addr)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := Attach(addr)
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, sender.SendBuf(wire.Tag(123), []byte("hello")))

	require.Eventually(t, func() bool {
		frame, ok, err := receiver.RecvBufWithFlags()
		if err != nil || !ok {
			return false
		}
		return string(frame.Payload) == "hello"
	}, time.Second, 5*time.Millisecond)
}

func TestHandledDoesNotBroadcast(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return Handled
	})

	sender, err := Attach(addr)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := Attach(addr)
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, sender.SendBuf(wire.TagToMain, []byte("heartbeat")))

	time.Sleep(50 * time.Millisecond)
	_, ok, err := receiver.RecvBufWithFlags()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDescriptionEnvRoundTrip(t *testing.T) {
	d := Description{Addr: "127.0.0.1:4000", ClientID: 7}
	const key = "FUZZMUX_TEST_DESCRIPTION"

	require.NoError(t, ToEnv(key, d))
	got, err := FromEnv(key)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestPageWriteTooLarge(t *testing.T) {
	p, err := NewPage(t.TempDir())
	require.NoError(t, err)
	defer p.Unmap()

	err = p.Write(make([]byte, defaultPageSize+1))
	assert.Error(t, err)
}

func TestAwaitSafeToUnmapBlockingSignaled(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return Handled
	})

	c, err := Attach(addr)
	require.NoError(t, err)
	defer c.Close()

	c.SignalSafeToUnmap()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.AwaitSafeToUnmapBlocking(ctx))
}

func TestAwaitSafeToUnmapBlockingNoPeersResolvesImmediately(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return ForwardToClients
	})

	c, err := Attach(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.AwaitSafeToUnmapBlocking(ctx))
}

// TestAwaitSafeToUnmapBlockingWaitsForPeerAck drives the real broker-wired
// ack protocol end to end: the unmap only resolves once the receiver's
// read loop has actually acked the sender's broadcast watermark, not via a
// direct SignalSafeToUnmap call.
func TestAwaitSafeToUnmapBlockingWaitsForPeerAck(t *testing.T) {
	_, addr := startBroker(t, func(uint32, wire.Tag, wire.Flags, []byte) DispatchResult {
		return ForwardToClients
	})

	sender, err := Attach(addr)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := Attach(addr)
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, sender.SendBuf(wire.Tag(123), []byte("hello")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sender.AwaitSafeToUnmapBlocking(ctx))

	frame, ok, err := receiver.RecvBufWithFlags()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(frame.Payload))
}
