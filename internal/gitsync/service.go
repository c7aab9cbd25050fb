package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
)

const (
	executorMissingMessageConstant       = "git executor not configured"
	loggerMissingMessageConstant         = "logger not configured"
	lockManagerMissingMessageConstant    = "lock manager not configured"
	cacheRootMissingMessageConstant      = "repository cache root not configured"
	repositoryPathRequiredMessage        = "repository path must be provided"
	revisionRequiredMessageConstant      = "target revision must be provided"
	repositoryURLRequiredMessageConstant = "repository URL must be provided"
	rebaseFailedMessageConstant          = "rebase failed and was aborted"
	pushRolledBackMessageConstant        = "push failed; local branch rolled back one commit"

	fetchLockErrorTemplateConstant         = "unable to serialize fetch for %s: %w"
	cacheLockErrorTemplateConstant         = "unable to serialize cache clone for %s: %w"
	largeFileLockErrorTemplateConstant     = "unable to serialize large-file operation for %s: %w"
	fetchErrorTemplateConstant             = "fetch failed for %s: %w"
	checkoutErrorTemplateConstant          = "destructive checkout of %q failed in %s: %w"
	submoduleUpdateErrorTemplateConstant   = "submodule update failed in %s: %w"
	cloneErrorTemplateConstant             = "clone of %s failed: %w"
	workspaceCreationErrorTemplateConstant = "linked workspace creation failed for %s: %w"
	commitErrorTemplateConstant            = "commit failed in %s: %w"
	pointerCommitErrorTemplateConstant     = "submodule pointer update failed in %s: %w"
	largeFileOperationErrorTemplate        = "large-file %s failed in %s: %w"
	branchInspectionErrorTemplateConstant  = "unable to determine current branch in %s: %w"
	cleanInspectionErrorTemplateConstant   = "unable to inspect working tree in %s: %w"
	cacheDirectoryCreationErrorTemplate    = "unable to create repository cache root %s: %w"

	gitFetchSubcommandConstant       = "fetch"
	gitCloneSubcommandConstant       = "clone"
	gitCheckoutSubcommandConstant    = "checkout"
	gitRebaseSubcommandConstant      = "rebase"
	gitResetSubcommandConstant       = "reset"
	gitSubmoduleSubcommandConstant   = "submodule"
	gitPushSubcommandConstant        = "push"
	gitAddSubcommandConstant         = "add"
	gitCommitSubcommandConstant      = "commit"
	gitRemoteSubcommandConstant      = "remote"
	gitFetchPruneFlagConstant        = "--prune"
	gitFetchTagsFlagConstant         = "--tags"
	gitResetHardFlagConstant         = "--hard"
	gitSubmoduleForeachConstant      = "foreach"
	gitSubmoduleRecursiveFlag        = "--recursive"
	gitSubmoduleInitFlagConstant     = "--init"
	gitSubmoduleUpdateConstant       = "update"
	gitSubmoduleReferenceFlag        = "--reference"
	gitRebaseAbortFlag               = "--abort"
	gitCheckoutPathSeparatorConstant = "--"
	gitAddAllFlagConstant            = "--all"
	gitCommitMessageFlagConstant     = "-m"
	gitCloneSharedFlagConstant       = "--shared"
	gitRemoteSetURLSubcommand        = "set-url"
	gitPreviousCommitReference       = "HEAD^"
	gitPathspecSeparatorConstant     = "--"

	// SkipSubmodulesSentinel instructs UpdateSubmodules to perform no submodule work.
	SkipSubmodulesSentinel = "no_submodules"

	logFieldRepositoryConstant  = "repository"
	logFieldRevisionConstant    = "revision"
	logFieldBranchConstant      = "branch"
	logFieldSubmoduleConstant   = "submodule"
	logMessageCleanTreeNoCommit = "working tree clean; skipping commit"
	logMessagePointerUnchanged  = "submodule pointer unchanged; skipping parent commit"
	logMessageInsideSubmodule   = "inside a submodule checkout; skipping submodule update"
	logMessageSubmodulesSkipped = "submodule update skipped by sentinel"
)

// ErrExecutorNotConfigured indicates the git executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrLockManagerNotConfigured indicates the lock manager dependency was missing.
var ErrLockManagerNotConfigured = errors.New(lockManagerMissingMessageConstant)

// ErrCacheRootNotConfigured indicates the shared repository cache root was missing.
var ErrCacheRootNotConfigured = errors.New(cacheRootMissingMessageConstant)

// ErrRepositoryPathRequired indicates a repository path argument was empty.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessage)

// ErrRevisionRequired indicates a target revision argument was empty.
var ErrRevisionRequired = errors.New(revisionRequiredMessageConstant)

// ErrRepositoryURLRequired indicates a repository URL argument was empty.
var ErrRepositoryURLRequired = errors.New(repositoryURLRequiredMessageConstant)

// ErrRebaseFailed indicates a rebase could not complete and was aborted.
var ErrRebaseFailed = errors.New(rebaseFailedMessageConstant)

// ErrPushRolledBack indicates a push failed and the most recent local commit was rolled back.
var ErrPushRolledBack = errors.New(pushRolledBackMessageConstant)

// GitExecutor abstracts git and git-lfs invocation for the synchronization service.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteGitLFS(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies enumerates the collaborators required by the synchronization service.
type Dependencies struct {
	Executor    GitExecutor
	LockManager LockManager
	Logger      *zap.Logger
}

// Service sequences git operations against workspaces sharing a repository cache.
type Service struct {
	executor      GitExecutor
	lockManager   LockManager
	logger        *zap.Logger
	inspector     *RepositoryInspector
	configuration Configuration
}

// PushOptions configures a push operation.
type PushOptions struct {
	RepositoryPath       string
	EnvironmentVariables map[string]string
}

// CommitAndPushOptions configures a commit-and-push operation.
type CommitAndPushOptions struct {
	RepositoryPath       string
	CommitMessage        string
	EnvironmentVariables map[string]string
}

// LargeFileOperation enumerates supported git-lfs operations.
type LargeFileOperation string

// Supported large-file operations.
const (
	LargeFilePull  LargeFileOperation = "pull"
	LargeFilePush  LargeFileOperation = "push"
	LargeFilePrune LargeFileOperation = "prune"
)

// NewService constructs a synchronization Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.LockManager == nil {
		return nil, ErrLockManagerNotConfigured
	}

	repositoryInspector, inspectorError := NewRepositoryInspector(dependencies.Executor)
	if inspectorError != nil {
		return nil, inspectorError
	}

	return &Service{
		executor:      dependencies.Executor,
		lockManager:   dependencies.LockManager,
		logger:        dependencies.Logger,
		inspector:     repositoryInspector,
		configuration: configuration.WithDefaults(),
	}, nil
}

// Inspector exposes the read-only repository inspector.
func (service *Service) Inspector() *RepositoryInspector {
	return service.inspector
}

// Fetch retrieves tags and updates from the remote under the per-repository fetch lock.
func (service *Service) Fetch(executionContext context.Context, repositoryPath string) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	fetchLock, lockError := service.lockManager.AcquireFetchLock(executionContext, trimmedRepositoryPath, service.configuration.LockWait())
	if lockError != nil {
		return fmt.Errorf(fetchLockErrorTemplateConstant, trimmedRepositoryPath, lockError)
	}
	defer fetchLock.Release()

	_, fetchError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitFetchSubcommandConstant, gitFetchPruneFlagConstant, gitFetchTagsFlagConstant, service.configuration.RemoteName},
		WorkingDirectory: trimmedRepositoryPath,
		Timeout:          service.configuration.FetchTimeout(),
	})
	if fetchError != nil {
		return fmt.Errorf(fetchErrorTemplateConstant, trimmedRepositoryPath, fetchError)
	}
	return nil
}

// DestructiveCheckout discards local modifications in the repository and all
// submodules, then checks out the target revision. Callers must not have
// pending work; uncommitted changes are lost.
func (service *Service) DestructiveCheckout(executionContext context.Context, repositoryPath string, targetRevision string) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}
	trimmedRevision := strings.TrimSpace(targetRevision)
	if len(trimmedRevision) == 0 {
		return ErrRevisionRequired
	}

	checkoutSteps := [][]string{
		{gitResetSubcommandConstant, gitResetHardFlagConstant},
		{gitSubmoduleSubcommandConstant, gitSubmoduleForeachConstant, gitSubmoduleRecursiveFlag, "git", gitResetSubcommandConstant, gitResetHardFlagConstant},
		{gitCheckoutSubcommandConstant, trimmedRevision, gitCheckoutPathSeparatorConstant},
		{gitResetSubcommandConstant, gitResetHardFlagConstant},
	}
	for _, checkoutStep := range checkoutSteps {
		if _, stepError := service.executeGit(executionContext, trimmedRepositoryPath, checkoutStep, nil); stepError != nil {
			return fmt.Errorf(checkoutErrorTemplateConstant, trimmedRevision, trimmedRepositoryPath, stepError)
		}
	}

	service.logger.Info(
		"destructive checkout complete",
		zap.String(logFieldRepositoryConstant, trimmedRepositoryPath),
		zap.String(logFieldRevisionConstant, trimmedRevision),
	)
	return nil
}

// Rebase rebases the current branch onto its remote counterpart. On failure
// the rebase is aborted and ErrRebaseFailed is returned; the job must stop.
func (service *Service) Rebase(executionContext context.Context, repositoryPath string, branchName string) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}
	trimmedBranchName := strings.TrimSpace(branchName)
	if len(trimmedBranchName) == 0 {
		return ErrRevisionRequired
	}

	remoteBranchReference := service.configuration.RemoteName + remoteReferenceSeparatorConstant + trimmedBranchName
	_, rebaseError := service.executeGit(executionContext, trimmedRepositoryPath, []string{gitRebaseSubcommandConstant, remoteBranchReference}, nil)
	if rebaseError == nil {
		return nil
	}

	// Leave the tree usable for the next job before failing.
	service.executeGit(executionContext, trimmedRepositoryPath, []string{gitRebaseSubcommandConstant, gitRebaseAbortFlag}, nil)
	service.logger.Error(
		"rebase aborted",
		zap.String(logFieldRepositoryConstant, trimmedRepositoryPath),
		zap.String(logFieldBranchConstant, trimmedBranchName),
		zap.Error(rebaseError),
	)
	return fmt.Errorf("%w: %v", ErrRebaseFailed, rebaseError)
}

// UpdateSubmodules updates the requested submodules recursively. The two
// configured linked submodules resolve through the shared repository cache
// instead of fresh clones. The SkipSubmodulesSentinel skips all work, and a
// repository that is itself a submodule is a no-op.
func (service *Service) UpdateSubmodules(executionContext context.Context, repositoryPath string, submodulePaths ...string) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	if len(submodulePaths) == 1 && strings.TrimSpace(submodulePaths[0]) == SkipSubmodulesSentinel {
		service.logger.Debug(logMessageSubmodulesSkipped, zap.String(logFieldRepositoryConstant, trimmedRepositoryPath))
		return nil
	}

	superprojectPath, superprojectError := service.inspector.SuperprojectPath(executionContext, trimmedRepositoryPath)
	if superprojectError == nil && len(superprojectPath) > 0 {
		service.logger.Debug(logMessageInsideSubmodule, zap.String(logFieldRepositoryConstant, trimmedRepositoryPath))
		return nil
	}

	targetSubmodulePaths := submodulePaths
	if len(targetSubmodulePaths) == 0 {
		knownSubmodulePaths, submoduleListError := service.inspector.SubmodulePaths(executionContext, trimmedRepositoryPath)
		if submoduleListError != nil {
			return fmt.Errorf(submoduleUpdateErrorTemplateConstant, trimmedRepositoryPath, submoduleListError)
		}
		targetSubmodulePaths = knownSubmodulePaths
	}
	if len(targetSubmodulePaths) == 0 {
		return nil
	}

	for _, submodulePath := range targetSubmodulePaths {
		trimmedSubmodulePath := strings.TrimSpace(submodulePath)
		if len(trimmedSubmodulePath) == 0 {
			continue
		}

		updateArguments := []string{gitSubmoduleSubcommandConstant, gitSubmoduleUpdateConstant, gitSubmoduleInitFlagConstant, gitSubmoduleRecursiveFlag}
		if service.configuration.IsLinkedSubmodule(trimmedSubmodulePath) {
			cacheCheckoutPath := service.cachePathForName(filepath.Base(trimmedSubmodulePath))
			if directoryExists(cacheCheckoutPath) {
				updateArguments = append(updateArguments, gitSubmoduleReferenceFlag, cacheCheckoutPath)
			}
		}
		updateArguments = append(updateArguments, gitPathspecSeparatorConstant, trimmedSubmodulePath)

		if _, updateError := service.executeGit(executionContext, trimmedRepositoryPath, updateArguments, nil); updateError != nil {
			return fmt.Errorf(submoduleUpdateErrorTemplateConstant, trimmedRepositoryPath, updateError)
		}
		service.logger.Debug(
			"submodule updated",
			zap.String(logFieldRepositoryConstant, trimmedRepositoryPath),
			zap.String(logFieldSubmoduleConstant, trimmedSubmodulePath),
		)
	}
	return nil
}

// SyncTo brings the workspace to the requested revision, cloning through the
// shared repository cache when the workspace does not exist yet.
func (service *Service) SyncTo(executionContext context.Context, repositoryURL string, workspacePath string, targetRevision string) error {
	trimmedRepositoryURL := strings.TrimSpace(repositoryURL)
	if len(trimmedRepositoryURL) == 0 {
		return ErrRepositoryURLRequired
	}
	trimmedWorkspacePath := strings.TrimSpace(workspacePath)
	if len(trimmedWorkspacePath) == 0 {
		return ErrRepositoryPathRequired
	}
	trimmedRevision := strings.TrimSpace(targetRevision)
	if len(trimmedRevision) == 0 {
		return ErrRevisionRequired
	}

	if directoryExists(filepath.Join(trimmedWorkspacePath, ".git")) {
		if fetchError := service.Fetch(executionContext, trimmedWorkspacePath); fetchError != nil {
			return fetchError
		}
		if checkoutError := service.DestructiveCheckout(executionContext, trimmedWorkspacePath, trimmedRevision); checkoutError != nil {
			return checkoutError
		}
	} else {
		if createError := service.createLinkedWorkspace(executionContext, trimmedRepositoryURL, trimmedWorkspacePath); createError != nil {
			return createError
		}
		if checkoutError := service.DestructiveCheckout(executionContext, trimmedWorkspacePath, trimmedRevision); checkoutError != nil {
			return checkoutError
		}
	}

	remoteBranchExists, remoteBranchError := service.inspector.RemoteBranchExists(executionContext, trimmedWorkspacePath, service.configuration.RemoteName, trimmedRevision)
	if remoteBranchError != nil {
		return remoteBranchError
	}
	if remoteBranchExists {
		if rebaseError := service.Rebase(executionContext, trimmedWorkspacePath, trimmedRevision); rebaseError != nil {
			return rebaseError
		}
	}

	return service.UpdateSubmodules(executionContext, trimmedWorkspacePath)
}

// Pull switches the repository to the configured pull branch, fetches,
// rebases, and updates submodules. The branch switch is unconditional.
func (service *Service) Pull(executionContext context.Context, repositoryPath string) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	pullBranch := service.configuration.PullBranch
	if _, checkoutError := service.executeGit(executionContext, trimmedRepositoryPath, []string{gitCheckoutSubcommandConstant, pullBranch, gitCheckoutPathSeparatorConstant}, nil); checkoutError != nil {
		return fmt.Errorf(checkoutErrorTemplateConstant, pullBranch, trimmedRepositoryPath, checkoutError)
	}
	if fetchError := service.Fetch(executionContext, trimmedRepositoryPath); fetchError != nil {
		return fetchError
	}
	if rebaseError := service.Rebase(executionContext, trimmedRepositoryPath, pullBranch); rebaseError != nil {
		return rebaseError
	}
	return service.UpdateSubmodules(executionContext, trimmedRepositoryPath)
}

// Push publishes the current branch after fetching and rebasing. On rebase or
// push failure the most recent local commit is rolled back (best effort, one
// commit only) and ErrPushRolledBack is returned.
func (service *Service) Push(executionContext context.Context, options PushOptions) error {
	trimmedRepositoryPath := strings.TrimSpace(options.RepositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	if fetchError := service.Fetch(executionContext, trimmedRepositoryPath); fetchError != nil {
		return fetchError
	}

	currentBranch, branchError := service.inspector.CurrentBranch(executionContext, trimmedRepositoryPath)
	if branchError != nil {
		return fmt.Errorf(branchInspectionErrorTemplateConstant, trimmedRepositoryPath, branchError)
	}

	if rebaseError := service.Rebase(executionContext, trimmedRepositoryPath, currentBranch); rebaseError != nil {
		service.rollBackOneCommit(executionContext, trimmedRepositoryPath)
		return fmt.Errorf("%w: %v", ErrPushRolledBack, rebaseError)
	}

	_, pushError := service.executeGit(
		executionContext,
		trimmedRepositoryPath,
		[]string{gitPushSubcommandConstant, service.configuration.RemoteName, currentBranch},
		options.EnvironmentVariables,
	)
	if pushError != nil {
		service.rollBackOneCommit(executionContext, trimmedRepositoryPath)
		return fmt.Errorf("%w: %v", ErrPushRolledBack, pushError)
	}
	return nil
}

// CommitAndPush stages and commits everything in the repository (skipping the
// commit when the tree is clean) and pushes. When the repository is a linked
// submodule, the parent repository's submodule pointer is updated, committed,
// and pushed as well, unless git reports no substantive change.
func (service *Service) CommitAndPush(executionContext context.Context, options CommitAndPushOptions) error {
	trimmedRepositoryPath := strings.TrimSpace(options.RepositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	workingTreeClean, cleanError := service.inspector.IsWorkingTreeClean(executionContext, trimmedRepositoryPath)
	if cleanError != nil {
		return fmt.Errorf(cleanInspectionErrorTemplateConstant, trimmedRepositoryPath, cleanError)
	}

	if workingTreeClean {
		service.logger.Info(logMessageCleanTreeNoCommit, zap.String(logFieldRepositoryConstant, trimmedRepositoryPath))
	} else {
		if _, addError := service.executeGit(executionContext, trimmedRepositoryPath, []string{gitAddSubcommandConstant, gitAddAllFlagConstant}, nil); addError != nil {
			return fmt.Errorf(commitErrorTemplateConstant, trimmedRepositoryPath, addError)
		}
		if _, commitError := service.executeGit(executionContext, trimmedRepositoryPath, []string{gitCommitSubcommandConstant, gitCommitMessageFlagConstant, options.CommitMessage}, options.EnvironmentVariables); commitError != nil {
			return fmt.Errorf(commitErrorTemplateConstant, trimmedRepositoryPath, commitError)
		}
	}

	if pushError := service.Push(executionContext, PushOptions{RepositoryPath: trimmedRepositoryPath, EnvironmentVariables: options.EnvironmentVariables}); pushError != nil {
		return pushError
	}

	return service.updateSuperprojectPointer(executionContext, trimmedRepositoryPath, options)
}

// SynchronizeLargeFiles runs the requested git-lfs operation under the
// unbounded large-file lock.
func (service *Service) SynchronizeLargeFiles(executionContext context.Context, repositoryPath string, operation LargeFileOperation) error {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return ErrRepositoryPathRequired
	}

	largeFileLock, lockError := service.lockManager.AcquireLargeFileLock(executionContext, trimmedRepositoryPath)
	if lockError != nil {
		return fmt.Errorf(largeFileLockErrorTemplateConstant, trimmedRepositoryPath, lockError)
	}
	defer largeFileLock.Release()

	lfsArguments := []string{string(operation)}
	if operation == LargeFilePush {
		lfsArguments = append(lfsArguments, service.configuration.RemoteName)
	}

	_, lfsError := service.executor.ExecuteGitLFS(executionContext, execshell.CommandDetails{
		Arguments:        lfsArguments,
		WorkingDirectory: trimmedRepositoryPath,
		Timeout:          service.configuration.FetchTimeout(),
	})
	if lfsError != nil {
		return fmt.Errorf(largeFileOperationErrorTemplate, operation, trimmedRepositoryPath, lfsError)
	}
	return nil
}

func (service *Service) updateSuperprojectPointer(executionContext context.Context, repositoryPath string, options CommitAndPushOptions) error {
	superprojectPath, superprojectError := service.inspector.SuperprojectPath(executionContext, repositoryPath)
	if superprojectError != nil || len(superprojectPath) == 0 {
		return nil
	}
	return service.commitSuperprojectPointer(executionContext, superprojectPath, repositoryPath, options)
}

func (service *Service) commitSuperprojectPointer(executionContext context.Context, superprojectPath string, submoduleCheckoutPath string, options CommitAndPushOptions) error {
	relativeSubmodulePath, relativePathError := filepath.Rel(superprojectPath, submoduleCheckoutPath)
	if relativePathError != nil {
		return fmt.Errorf(pointerCommitErrorTemplateConstant, superprojectPath, relativePathError)
	}

	if _, addError := service.executeGit(executionContext, superprojectPath, []string{gitAddSubcommandConstant, gitPathspecSeparatorConstant, relativeSubmodulePath}, nil); addError != nil {
		return fmt.Errorf(pointerCommitErrorTemplateConstant, superprojectPath, addError)
	}

	pointerChanged, pointerStatusError := service.pathHasStagedChanges(executionContext, superprojectPath, relativeSubmodulePath)
	if pointerStatusError != nil {
		return fmt.Errorf(pointerCommitErrorTemplateConstant, superprojectPath, pointerStatusError)
	}
	if !pointerChanged {
		service.logger.Info(logMessagePointerUnchanged, zap.String(logFieldRepositoryConstant, superprojectPath))
		return nil
	}

	if _, commitError := service.executeGit(executionContext, superprojectPath, []string{gitCommitSubcommandConstant, gitCommitMessageFlagConstant, options.CommitMessage}, options.EnvironmentVariables); commitError != nil {
		return fmt.Errorf(pointerCommitErrorTemplateConstant, superprojectPath, commitError)
	}

	return service.Push(executionContext, PushOptions{RepositoryPath: superprojectPath, EnvironmentVariables: options.EnvironmentVariables})
}

func (service *Service) pathHasStagedChanges(executionContext context.Context, repositoryPath string, relativePath string) (bool, error) {
	statusResult, statusError := service.executeGit(executionContext, repositoryPath, []string{gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant, gitPathspecSeparatorConstant, relativePath}, nil)
	if statusError != nil {
		return false, statusError
	}
	return len(strings.TrimSpace(statusResult.StandardOutput)) > 0, nil
}

func (service *Service) createLinkedWorkspace(executionContext context.Context, repositoryURL string, workspacePath string) error {
	if len(strings.TrimSpace(service.configuration.CacheRoot)) == 0 {
		return ErrCacheRootNotConfigured
	}
	if directoryCreationError := os.MkdirAll(service.configuration.CacheRoot, 0o755); directoryCreationError != nil {
		return fmt.Errorf(cacheDirectoryCreationErrorTemplate, service.configuration.CacheRoot, directoryCreationError)
	}

	cacheCheckoutPath := service.cachePathForURL(repositoryURL)
	if cacheSeedError := service.seedCacheCheckout(executionContext, repositoryURL, cacheCheckoutPath); cacheSeedError != nil {
		return cacheSeedError
	}

	_, workspaceCloneError := service.executeGitWithTimeout(executionContext, "", []string{gitCloneSubcommandConstant, gitCloneSharedFlagConstant, cacheCheckoutPath, workspacePath}, service.configuration.FetchTimeout())
	if workspaceCloneError != nil {
		return fmt.Errorf(workspaceCreationErrorTemplateConstant, workspacePath, workspaceCloneError)
	}

	// The linked workspace borrows objects from the cache but tracks the
	// real remote so fetch and rebase behave like a standalone checkout.
	_, remoteError := service.executeGit(executionContext, workspacePath, []string{gitRemoteSubcommandConstant, gitRemoteSetURLSubcommand, service.configuration.RemoteName, repositoryURL}, nil)
	if remoteError != nil {
		return fmt.Errorf(workspaceCreationErrorTemplateConstant, workspacePath, remoteError)
	}
	return service.Fetch(executionContext, workspacePath)
}

// seedCacheCheckout performs the one-time clone of the remote into the shared
// cache. The existence check and the clone run under the cache path's lock so
// concurrent jobs cannot clone into the same directory.
func (service *Service) seedCacheCheckout(executionContext context.Context, repositoryURL string, cacheCheckoutPath string) error {
	cacheLock, lockError := service.lockManager.AcquireFetchLock(executionContext, cacheCheckoutPath, service.configuration.LockWait())
	if lockError != nil {
		return fmt.Errorf(cacheLockErrorTemplateConstant, cacheCheckoutPath, lockError)
	}
	defer cacheLock.Release()

	if directoryExists(cacheCheckoutPath) {
		return nil
	}
	_, cloneError := service.executeGitWithTimeout(executionContext, "", []string{gitCloneSubcommandConstant, repositoryURL, cacheCheckoutPath}, service.configuration.FetchTimeout())
	if cloneError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, repositoryURL, cloneError)
	}
	return nil
}

func (service *Service) rollBackOneCommit(executionContext context.Context, repositoryPath string) {
	service.executeGit(executionContext, repositoryPath, []string{gitResetSubcommandConstant, gitResetHardFlagConstant, gitPreviousCommitReference}, nil)
}

func (service *Service) cachePathForURL(repositoryURL string) string {
	repositoryName := strings.TrimSuffix(filepath.Base(repositoryURL), ".git")
	return service.cachePathForName(repositoryName)
}

func (service *Service) cachePathForName(repositoryName string) string {
	return filepath.Join(service.configuration.CacheRoot, repositoryName)
}

func (service *Service) executeGit(executionContext context.Context, workingDirectory string, arguments []string, environmentVariables map[string]string) (execshell.ExecutionResult, error) {
	return service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: environmentVariables,
		Timeout:              service.configuration.CommandTimeout(),
	})
}

func (service *Service) executeGitWithTimeout(executionContext context.Context, workingDirectory string, arguments []string, timeout time.Duration) (execshell.ExecutionResult, error) {
	return service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
		Timeout:          timeout,
	})
}

func directoryExists(candidatePath string) bool {
	pathInformation, statError := os.Stat(candidatePath)
	if statError != nil {
		return false
	}
	return pathInformation.IsDir()
}
