package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fuzzmux/pkg/fuzzcore"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{
		Tag:      TagToMain,
		Flags:    FlagInitialized | FlagCompressed,
		ClientID: 42,
		Payload:  []byte{1, 2, 3, 4},
	}

	decoded, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
	assert.True(t, decoded.Flags.Has(FlagCompressed))
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	f := Frame{Tag: 7, Flags: FlagInitialized, ClientID: 1}
	decoded, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, Tag(7), decoded.Tag)
	assert.Empty(t, decoded.Payload)
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func forwardID(id uint32) *uint32 { return &id }

func TestEventRoundTripAllVariants(t *testing.T) {
	cases := []Event{
		NewTestcase{
			Input:        []byte{0xAA},
			ClientConfig: "cfg-A",
			ExitKind:     fuzzcore.ExitOk,
			CorpusSize:   1,
			ObserversBuf: []byte{0xBE, 0xEF},
			Time:         1,
			Executions:   1,
			ForwardID:    forwardID(7),
		},
		NewTestcase{
			Input:        []byte{0x01, 0x02},
			ClientConfig: "cfg-B",
			ExitKind:     fuzzcore.ExitCrash,
			CorpusSize:   9,
			Time:         2,
			Executions:   5,
		},
		UpdateExecStats{Time: 3, Executions: 99},
		Objective{Payload: []byte("objective")},
		Log{Payload: []byte("log line")},
		CustomBuf{Payload: []byte{0xDE, 0xAD}},
	}

	for _, ev := range cases {
		buf, err := Serialize(ev)
		require.NoError(t, err)

		got, err := Deserialize(buf)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestNewTestcaseForwardIDNilRoundTrips(t *testing.T) {
	ev := NewTestcase{Input: []byte{1}, ClientConfig: "c", ExitKind: fuzzcore.ExitOk}
	buf, err := Serialize(ev)
	require.NoError(t, err)

	got, err := Deserialize(buf)
	require.NoError(t, err)

	nt, ok := got.(NewTestcase)
	require.True(t, ok)
	assert.Nil(t, nt.ForwardID)
}

func TestPeekKind(t *testing.T) {
	buf, err := Serialize(UpdateExecStats{Time: 1, Executions: 1})
	require.NoError(t, err)

	kind, err := PeekKind(buf)
	require.NoError(t, err)
	assert.Equal(t, KindUpdateExecStats, kind)
}

func TestPeekKindEmptyBuffer(t *testing.T) {
	_, err := PeekKind(nil)
	assert.Error(t, err)
}
