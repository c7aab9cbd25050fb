package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	fetchLockFileSuffixConstant          = ".lock"
	largeFileLockFileSuffixConstant      = ".lfs.lock"
	lockFilePermissionsConstant          = 0o644
	lockRetryIntervalConstant            = time.Second
	lockWaitTimedOutMessageConstant      = "timed out waiting for repository lock"
	lockFileOpenErrorTemplateConstant    = "unable to open lock file %s: %w"
	lockAcquisitionErrorTemplateConstant = "unable to acquire lock on %s: %w"
)

// ErrLockWaitTimedOut indicates the bounded wait for the fetch lock elapsed.
var ErrLockWaitTimedOut = errors.New(lockWaitTimedOutMessageConstant)

// ReleasableLock represents a held inter-process lock.
type ReleasableLock interface {
	Release() error
}

// LockManager serializes operations touching a shared repository cache.
type LockManager interface {
	// AcquireFetchLock obtains the per-repository fetch lock, waiting at most the configured bound.
	AcquireFetchLock(executionContext context.Context, repositoryPath string, waitBound time.Duration) (ReleasableLock, error)
	// AcquireLargeFileLock obtains the per-repository large-file lock with an unbounded wait.
	AcquireLargeFileLock(executionContext context.Context, repositoryPath string) (ReleasableLock, error)
}

// FlockLockManager implements LockManager with flock(2) on per-repository lock files.
type FlockLockManager struct{}

// NewFlockLockManager constructs a FlockLockManager.
func NewFlockLockManager() *FlockLockManager {
	return &FlockLockManager{}
}

type fileLock struct {
	lockFile *os.File
}

// Release drops the flock and closes the underlying lock file.
func (lock *fileLock) Release() error {
	if lock == nil || lock.lockFile == nil {
		return nil
	}
	unlockError := unix.Flock(int(lock.lockFile.Fd()), unix.LOCK_UN)
	closeError := lock.lockFile.Close()
	lock.lockFile = nil
	if unlockError != nil {
		return unlockError
	}
	return closeError
}

// AcquireFetchLock obtains the fetch lock, polling until the wait bound elapses.
func (manager *FlockLockManager) AcquireFetchLock(executionContext context.Context, repositoryPath string, waitBound time.Duration) (ReleasableLock, error) {
	return acquireFileLock(executionContext, repositoryPath+fetchLockFileSuffixConstant, waitBound)
}

// AcquireLargeFileLock obtains the large-file lock, waiting as long as necessary.
func (manager *FlockLockManager) AcquireLargeFileLock(executionContext context.Context, repositoryPath string) (ReleasableLock, error) {
	return acquireFileLock(executionContext, repositoryPath+largeFileLockFileSuffixConstant, 0)
}

func acquireFileLock(executionContext context.Context, lockFilePath string, waitBound time.Duration) (ReleasableLock, error) {
	lockFile, openError := os.OpenFile(lockFilePath, os.O_CREATE|os.O_RDWR, lockFilePermissionsConstant)
	if openError != nil {
		return nil, fmt.Errorf(lockFileOpenErrorTemplateConstant, lockFilePath, openError)
	}

	waitDeadline := time.Time{}
	if waitBound > 0 {
		waitDeadline = time.Now().Add(waitBound)
	}

	for {
		flockError := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockError == nil {
			return &fileLock{lockFile: lockFile}, nil
		}
		if !errors.Is(flockError, unix.EWOULDBLOCK) && !errors.Is(flockError, unix.EAGAIN) {
			lockFile.Close()
			return nil, fmt.Errorf(lockAcquisitionErrorTemplateConstant, lockFilePath, flockError)
		}

		if !waitDeadline.IsZero() && time.Now().After(waitDeadline) {
			lockFile.Close()
			return nil, ErrLockWaitTimedOut
		}

		select {
		case <-executionContext.Done():
			lockFile.Close()
			return nil, executionContext.Err()
		case <-time.After(lockRetryIntervalConstant):
		}
	}
}
