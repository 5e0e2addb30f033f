package evmerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Transport, "send failed", cause)

	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIs(t *testing.T) {
	err := New(IllegalState, "tries_remaining underflowed")
	assert.True(t, Is(err, IllegalState))
	assert.False(t, Is(err, ShuttingDown))
	assert.False(t, Is(errors.New("plain"), IllegalState))
}

func TestErrorMessage(t *testing.T) {
	err := New(Unknown, "mystery")
	assert.Equal(t, "unknown: mystery", err.Error())

	wrapped := Wrap(Serialize, "decode event", errors.New("short buffer"))
	assert.Equal(t, "serialize: decode event: short buffer", wrapped.Error())
}
