package install

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireDirLock_SecondAttemptFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	lock, ok, err := TryAcquireDirLock(path)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock.Release()

	_, ok, err = TryAcquireDirLock(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirLock_ReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	lock, ok, err := TryAcquireDirLock(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release())

	lock2, ok, err := TryAcquireDirLock(path)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock2.Release()
}

func TestAcquireDirLock_BlocksUntilContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	holder, ok, err := TryAcquireDirLock(path)
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err = AcquireDirLock(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
