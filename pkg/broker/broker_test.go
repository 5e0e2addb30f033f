package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fuzzmux/pkg/codec"
	"github.com/cuemby/fuzzmux/pkg/transport"
	"github.com/cuemby/fuzzmux/pkg/wire"
)

func TestCentralizedDispatchPassesThroughOtherTags(t *testing.T) {
	result := centralizedDispatch(nil, wire.Tag(42), wire.FlagInitialized, []byte{0x01, 0x02})
	assert.Equal(t, transport.ForwardToClients, result)
}

func TestCentralizedDispatchForwardsNewTestcase(t *testing.T) {
	buf, err := wire.Serialize(wire.NewTestcase{Input: []byte{0xAA}, ClientConfig: "c"})
	require.NoError(t, err)

	result := centralizedDispatch(nil, wire.TagToMain, wire.FlagInitialized, buf)
	assert.Equal(t, transport.ForwardToClients, result)
}

func TestCentralizedDispatchHandlesHeartbeat(t *testing.T) {
	buf, err := wire.Serialize(wire.UpdateExecStats{Time: 1, Executions: 1})
	require.NoError(t, err)

	result := centralizedDispatch(nil, wire.TagToMain, wire.FlagInitialized, buf)
	assert.Equal(t, transport.Handled, result)
}

func TestCentralizedDispatchHandlesCompressedPayload(t *testing.T) {
	raw, err := wire.Serialize(wire.UpdateExecStats{Time: 1, Executions: 1})
	require.NoError(t, err)

	g := codec.NewGzip(0)
	compressed, err := g.Compress(raw)
	require.NoError(t, err)

	result := centralizedDispatch(g, wire.TagToMain, wire.FlagInitialized|wire.FlagCompressed, compressed)
	assert.Equal(t, transport.Handled, result)
}

func TestStatsDispatchAlwaysForwards(t *testing.T) {
	assert.Equal(t, transport.ForwardToClients, statsDispatch(nil, wire.TagToMain, 0, nil))
	assert.Equal(t, transport.ForwardToClients, statsDispatch(nil, wire.Tag(1), 0, []byte("x")))
}

func TestCentralizedBrokerEndToEndForwardsNewTestcaseOnly(t *testing.T) {
	tb := transport.NewTCPBroker()
	cb := NewCentralizedBroker(tb, nil)
	require.NoError(t, cb.Bind("127.0.0.1:0"))
	t.Cleanup(func() { cb.Close() })

	addr := tb.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go cb.Run(ctx, time.Millisecond, 0)

	main, err := transport.Attach(addr)
	require.NoError(t, err)
	defer main.Close()

	secondary, err := transport.Attach(addr)
	require.NoError(t, err)
	defer secondary.Close()

	ntBuf, err := wire.Serialize(wire.NewTestcase{Input: []byte{1}, ClientConfig: "c"})
	require.NoError(t, err)
	require.NoError(t, secondary.SendBuf(wire.TagToMain, ntBuf))

	require.Eventually(t, func() bool {
		_, ok, err := main.RecvBufWithFlags()
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	hbBuf, err := wire.Serialize(wire.UpdateExecStats{Time: 1, Executions: 1})
	require.NoError(t, err)
	require.NoError(t, secondary.SendBuf(wire.TagToMain, hbBuf))

	time.Sleep(50 * time.Millisecond)
	_, ok, err := main.RecvBufWithFlags()
	require.NoError(t, err)
	assert.False(t, ok, "heartbeat must be handled at the broker, not forwarded")
}
