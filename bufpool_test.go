//go:build linux

package iouring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewBufferPool(1, 3, 4096)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestBufferPoolAcquireReleaseRoundTrip(t *testing.T) {
	pool, err := NewBufferPool(1, 8, 64)
	require.NoError(t, err)
	defer pool.Close()

	before := pool.tail

	bb := pool.acquire(3, 64)
	assert.Equal(t, uint16(3), bb.Index())
	assert.Len(t, bb.Bytes(), 64)

	require.NoError(t, bb.Close())
	assert.Equal(t, before+1, pool.tail, "releasing republishes the buffer, advancing tail by one")
}

func TestBufferPoolAcquireClampsLength(t *testing.T) {
	pool, err := NewBufferPool(1, 4, 64)
	require.NoError(t, err)
	defer pool.Close()

	bb := pool.acquire(0, 9999)
	assert.Len(t, bb.Bytes(), 64)
}

func TestBorrowedBufferCloseIsIdempotent(t *testing.T) {
	pool, err := NewBufferPool(1, 4, 64)
	require.NoError(t, err)
	defer pool.Close()

	bb := pool.acquire(0, 64)
	before := pool.tail
	require.NoError(t, bb.Close())
	require.NoError(t, bb.Close())
	assert.Equal(t, before+1, pool.tail, "a second Close must not republish the buffer again")
}

func TestBufferPoolAcquireReleaseRoundTripRepeatedLeavesFreeSetUnchanged(t *testing.T) {
	pool, err := NewBufferPool(1, 8, 64)
	require.NoError(t, err)
	defer pool.Close()

	startTail := pool.tail
	for i := 0; i < 16; i++ {
		bb := pool.acquire(uint16(i%8), 64)
		require.NoError(t, bb.Close())
	}
	assert.Equal(t, startTail+16, pool.tail)
}
