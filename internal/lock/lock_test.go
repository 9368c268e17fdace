package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease_AllowsReacquisitionAfterRelease(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_SecondInstanceFailsWhileFirstHolds(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(dir)
	assert.Error(t, err)
}
