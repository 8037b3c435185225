//go:build linux

package iouring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTableInsertGetRemove(t *testing.T) {
	tbl := newOpTable()

	s1 := newSubmittedSlot()
	k1 := tbl.insert(s1)

	s2 := newSubmittedSlot()
	k2 := tbl.insert(s2)

	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, tbl.len())

	got, err := tbl.get(k1)
	require.NoError(t, err)
	assert.Same(t, s1, got)

	require.NoError(t, tbl.remove(k1))
	assert.Equal(t, 1, tbl.len())

	_, err = tbl.get(k1)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestOpTableReusesFreedKey(t *testing.T) {
	tbl := newOpTable()

	k1 := tbl.insert(newSubmittedSlot())
	require.NoError(t, tbl.remove(k1))

	k2 := tbl.insert(newSubmittedSlot())
	assert.Equal(t, k1, k2, "insert should reuse the most recently freed key")
}

func TestOpTableUnknownKeyOutOfRange(t *testing.T) {
	tbl := newOpTable()
	_, err := tbl.get(999)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestOpTableDoubleRemove(t *testing.T) {
	tbl := newOpTable()
	k := tbl.insert(newSubmittedSlot())
	require.NoError(t, tbl.remove(k))
	assert.ErrorIs(t, tbl.remove(k), ErrUnknownKey)
}
