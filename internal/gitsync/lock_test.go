package gitsync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

func TestFlockLockManagerAcquiresAndReleasesFetchLock(testInstance *testing.T) {
	repositoryPath := filepath.Join(testInstance.TempDir(), "webapp")
	lockManager := gitsync.NewFlockLockManager()

	firstLock, firstError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, time.Second)
	require.NoError(testInstance, firstError)

	_, statError := os.Stat(repositoryPath + ".lock")
	require.NoError(testInstance, statError)

	require.NoError(testInstance, firstLock.Release())

	secondLock, secondError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, time.Second)
	require.NoError(testInstance, secondError)
	require.NoError(testInstance, secondLock.Release())
}

func TestFlockLockManagerTimesOutOnHeldFetchLock(testInstance *testing.T) {
	repositoryPath := filepath.Join(testInstance.TempDir(), "webapp")
	lockManager := gitsync.NewFlockLockManager()

	heldLock, acquisitionError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, time.Second)
	require.NoError(testInstance, acquisitionError)
	defer heldLock.Release()

	_, timeoutError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, 10*time.Millisecond)
	require.ErrorIs(testInstance, timeoutError, gitsync.ErrLockWaitTimedOut)
}

func TestFlockLockManagerHonorsContextCancellation(testInstance *testing.T) {
	repositoryPath := filepath.Join(testInstance.TempDir(), "webapp")
	lockManager := gitsync.NewFlockLockManager()

	heldLock, acquisitionError := lockManager.AcquireLargeFileLock(context.Background(), repositoryPath)
	require.NoError(testInstance, acquisitionError)
	defer heldLock.Release()

	cancellableContext, cancelFunction := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelFunction()

	_, cancellationError := lockManager.AcquireLargeFileLock(cancellableContext, repositoryPath)
	require.ErrorIs(testInstance, cancellationError, context.DeadlineExceeded)
}

func TestFlockLockManagerKeepsFetchAndLargeFileLocksIndependent(testInstance *testing.T) {
	repositoryPath := filepath.Join(testInstance.TempDir(), "webapp")
	lockManager := gitsync.NewFlockLockManager()

	fetchLock, fetchError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, time.Second)
	require.NoError(testInstance, fetchError)
	defer fetchLock.Release()

	largeFileLock, largeFileError := lockManager.AcquireLargeFileLock(context.Background(), repositoryPath)
	require.NoError(testInstance, largeFileError)
	require.NoError(testInstance, largeFileLock.Release())
}

func TestReleaseIsIdempotent(testInstance *testing.T) {
	repositoryPath := filepath.Join(testInstance.TempDir(), "webapp")
	lockManager := gitsync.NewFlockLockManager()

	acquiredLock, acquisitionError := lockManager.AcquireFetchLock(context.Background(), repositoryPath, time.Second)
	require.NoError(testInstance, acquisitionError)

	require.NoError(testInstance, acquiredLock.Release())
	require.NoError(testInstance, acquiredLock.Release())
}
