package fuzzcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusAddGet(t *testing.T) {
	c := NewCorpus()
	id := c.Add([]byte{0xAA})

	entry := c.Get(id)
	require.NotNil(t, entry)
	assert.Equal(t, []byte{0xAA}, entry.Input)
	assert.Equal(t, 1, c.Len())
}

func TestCorpusGetMissing(t *testing.T) {
	c := NewCorpus()
	assert.Nil(t, c.Get(CorpusID{}))
}
