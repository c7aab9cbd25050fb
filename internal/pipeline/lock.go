package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	lockBusyMessageConstant       = "deploy lock is held by another deploy"
	lockTimeoutMessageConstant    = "timed out waiting for the deploy lock"
	lockMissingMessageConstant    = "deploy lock directory does not exist"
	lockBackupMissingMessageConst = "no deploy lock backup to restore"
	lockBackupBusyMessageConstant = "a newer deploy holds the lock; refusing to relock"

	lockCreationErrorTemplateConstant = "unable to create deploy lock %s: %w"
	lockReleaseErrorTemplateConstant  = "unable to release deploy lock %s: %w"
	lockBackupErrorTemplateConstant   = "unable to back up deploy lock %s: %w"
	lockRestoreErrorTemplateConstant  = "unable to restore deploy lock %s: %w"

	lockBackupSuffixConstant     = ".last"
	lockDirectoryPermissionsCons = 0o755
)

// ErrLockTimedOut indicates the busy-wait for the deploy lock elapsed.
var ErrLockTimedOut = errors.New(lockTimeoutMessageConstant)

// ErrLockMissing indicates a release was attempted without a held lock.
var ErrLockMissing = errors.New(lockMissingMessageConstant)

// ErrLockBackupMissing indicates relock found no backed-up lock directory.
var ErrLockBackupMissing = errors.New(lockBackupMissingMessageConst)

// ErrLockHeldByNewerDeploy indicates relock found the lock already re-acquired.
var ErrLockHeldByNewerDeploy = errors.New(lockBackupBusyMessageConstant)

// WaitObserver is notified while the lock acquisition busy-waits.
type WaitObserver func(waited time.Duration)

// DirectoryLock serializes deploys through an atomically created directory.
// Directory creation is the atomic primitive: whoever creates the directory
// owns the lock until it is renamed away or removed.
type DirectoryLock struct {
	directoryPath string
	pollInterval  time.Duration
}

// NewDirectoryLock constructs a DirectoryLock over the given path.
func NewDirectoryLock(directoryPath string, pollInterval time.Duration) *DirectoryLock {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &DirectoryLock{directoryPath: directoryPath, pollInterval: pollInterval}
}

// DirectoryPath returns the lock directory path.
func (lock *DirectoryLock) DirectoryPath() string {
	return lock.directoryPath
}

// BackupPath returns where the lock directory is parked on non-success release.
func (lock *DirectoryLock) BackupPath() string {
	return lock.directoryPath + lockBackupSuffixConstant
}

// Acquire busy-waits for the lock up to the wait bound, invoking the
// observer on each failed attempt so callers can alert the queue position.
func (lock *DirectoryLock) Acquire(executionContext context.Context, waitBound time.Duration, waitObserver WaitObserver) error {
	waitStart := time.Now()
	for {
		creationError := os.Mkdir(lock.directoryPath, lockDirectoryPermissionsCons)
		if creationError == nil {
			return nil
		}
		if !os.IsExist(creationError) {
			return fmt.Errorf(lockCreationErrorTemplateConstant, lock.directoryPath, creationError)
		}

		waited := time.Since(waitStart)
		if waited >= waitBound {
			return ErrLockTimedOut
		}
		if waitObserver != nil {
			waitObserver(waited)
		}

		select {
		case <-executionContext.Done():
			return executionContext.Err()
		case <-time.After(lock.pollInterval):
		}
	}
}

// Release removes the lock. With backup enabled the directory is renamed to
// the backup path (replacing any previous backup) so a mistaken unlock can
// be undone with relock; otherwise it is deleted outright.
func (lock *DirectoryLock) Release(keepBackup bool) error {
	if _, statError := os.Stat(lock.directoryPath); statError != nil {
		if os.IsNotExist(statError) {
			return ErrLockMissing
		}
		return fmt.Errorf(lockReleaseErrorTemplateConstant, lock.directoryPath, statError)
	}

	if !keepBackup {
		if removalError := os.RemoveAll(lock.directoryPath); removalError != nil {
			return fmt.Errorf(lockReleaseErrorTemplateConstant, lock.directoryPath, removalError)
		}
		return nil
	}

	if removalError := os.RemoveAll(lock.BackupPath()); removalError != nil {
		return fmt.Errorf(lockBackupErrorTemplateConstant, lock.BackupPath(), removalError)
	}
	if renameError := os.Rename(lock.directoryPath, lock.BackupPath()); renameError != nil {
		return fmt.Errorf(lockBackupErrorTemplateConstant, lock.directoryPath, renameError)
	}
	return nil
}

// Relock restores the backed-up lock directory, failing when no backup
// exists or when another deploy has taken the lock in the meantime.
func (lock *DirectoryLock) Relock() error {
	if _, statError := os.Stat(lock.BackupPath()); statError != nil {
		if os.IsNotExist(statError) {
			return ErrLockBackupMissing
		}
		return fmt.Errorf(lockRestoreErrorTemplateConstant, lock.BackupPath(), statError)
	}
	if _, statError := os.Stat(lock.directoryPath); statError == nil {
		return ErrLockHeldByNewerDeploy
	}
	if renameError := os.Rename(lock.BackupPath(), lock.directoryPath); renameError != nil {
		return fmt.Errorf(lockRestoreErrorTemplateConstant, lock.BackupPath(), renameError)
	}
	return nil
}
