package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGzipRoundTrip(t *testing.T) {
	g := NewGzip(0)
	payload := bytes.Repeat([]byte("observer-snapshot-bytes"), 64)

	compressed, err := g.Compress(payload)
	require.NoError(t, err)
	assert.NotEqual(t, payload, compressed)

	decompressed, err := g.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestMaybeCompressBelowThreshold(t *testing.T) {
	g := NewGzip(0)
	small := []byte("short")

	out, compressed, err := MaybeCompress(g, small)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, small, out)
}

func TestMaybeCompressAtOrAboveThreshold(t *testing.T) {
	g := NewGzip(0)
	large := bytes.Repeat([]byte("x"), CompressThreshold)

	out, compressed, err := MaybeCompress(g, large)
	require.NoError(t, err)
	assert.True(t, compressed)

	decompressed, err := g.Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, large, decompressed)
}
