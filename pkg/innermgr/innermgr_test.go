package innermgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fuzzmux/pkg/wire"
)

type fakeClient struct {
	id   uint32
	sent [][]byte
}

func (f *fakeClient) ID() uint32 { return f.id }
func (f *fakeClient) SendBuf(tag wire.Tag, payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}

func TestBasicFireSerializesAndSends(t *testing.T) {
	client := &fakeClient{id: 3}
	b := NewBasic(client, "cfg")

	err := b.Fire(nil, wire.UpdateExecStats{Time: 1, Executions: 2})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	decoded, err := wire.Deserialize(client.sent[0])
	require.NoError(t, err)
	assert.Equal(t, wire.UpdateExecStats{Time: 1, Executions: 2}, decoded)
}

func TestBasicMgrIDAndConfiguration(t *testing.T) {
	client := &fakeClient{id: 9}
	b := NewBasic(client, "cfg-9")

	assert.Equal(t, uint32(9), b.MgrID())
	assert.Equal(t, "cfg-9", b.Configuration())
}

func TestSerializeObserversAdaptiveFirstCallAlwaysAllowed(t *testing.T) {
	client := &fakeClient{id: 1}
	b := NewBasic(client, "cfg")

	buf, ok := b.SerializeObserversAdaptive([]byte("obs"), 4, 80)
	assert.True(t, ok)
	assert.Equal(t, []byte("obs"), buf)
}

func TestSerializeObserversAdaptiveThrottlesOverThreshold(t *testing.T) {
	client := &fakeClient{id: 1}
	b := NewBasic(client, "cfg")

	for i := 0; i < 100; i++ {
		b.RecordSerialization(1000, true)
	}

	_, ok := b.SerializeObserversAdaptive([]byte("obs"), 4, 80)
	assert.False(t, ok)
}
