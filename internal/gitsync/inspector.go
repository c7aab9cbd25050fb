package gitsync

import (
	"context"
	"errors"
	"strings"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
)

const (
	inspectorExecutorMissingMessageConstant = "git executor not configured for repository inspection"

	gitRevParseSubcommandConstant         = "rev-parse"
	gitStatusSubcommandConstant           = "status"
	gitLSRemoteSubcommandConstant         = "ls-remote"
	gitConfigSubcommandConstant           = "config"
	gitAbbrevRefFlagConstant              = "--abbrev-ref"
	gitHeadReferenceConstant              = "HEAD"
	gitStatusPorcelainFlagConstant        = "--porcelain"
	gitLSRemoteExitCodeFlagConstant       = "--exit-code"
	gitInsideWorkTreeFlagConstant         = "--is-inside-work-tree"
	gitSuperprojectFlagConstant           = "--show-superproject-working-tree"
	gitConfigFileFlagConstant             = "-f"
	gitModulesFileNameConstant            = ".gitmodules"
	gitConfigGetRegexpFlagConstant        = "--get-regexp"
	gitSubmodulePathConfigPatternConstant = `submodule\..*\.path`
	localRepositoryReferenceConstant      = "."
	remoteReferenceSeparatorConstant      = "/"
	trueLiteralConstant                   = "true"
)

// ErrInspectorExecutorNotConfigured indicates the inspector was built without an executor.
var ErrInspectorExecutorNotConfigured = errors.New(inspectorExecutorMissingMessageConstant)

// RepositoryInspector answers questions about repository state without mutating it.
type RepositoryInspector struct {
	executor GitExecutor
}

// NewRepositoryInspector constructs a RepositoryInspector around the provided executor.
func NewRepositoryInspector(executor GitExecutor) (*RepositoryInspector, error) {
	if executor == nil {
		return nil, ErrInspectorExecutorNotConfigured
	}
	return &RepositoryInspector{executor: executor}, nil
}

// CurrentBranch reports the branch checked out in the repository, or HEAD when detached.
func (inspector *RepositoryInspector) CurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitAbbrevRefFlagConstant, gitHeadReferenceConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// RevisionOf resolves a commit-ish to its full commit identifier.
func (inspector *RepositoryInspector) RevisionOf(executionContext context.Context, repositoryPath string, commitish string) (string, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, commitish},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// IsWorkingTreeClean reports whether the repository has no pending changes.
func (inspector *RepositoryInspector) IsWorkingTreeClean(executionContext context.Context, repositoryPath string) (bool, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false, executionError
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) == 0, nil
}

// RemoteBranchExists reports whether a remote-tracking branch matching the name is known locally.
func (inspector *RepositoryInspector) RemoteBranchExists(executionContext context.Context, repositoryPath string, remoteName string, branchName string) (bool, error) {
	remoteReference := remoteName + remoteReferenceSeparatorConstant + branchName
	_, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitLSRemoteSubcommandConstant, gitLSRemoteExitCodeFlagConstant, localRepositoryReferenceConstant, remoteReference},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		commandFailure := execshell.CommandFailedError{}
		if errors.As(executionError, &commandFailure) {
			return false, nil
		}
		return false, executionError
	}
	return true, nil
}

// IsInsideWorkTree reports whether the directory lives inside a version-controlled tree.
func (inspector *RepositoryInspector) IsInsideWorkTree(executionContext context.Context, directoryPath string) (bool, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitInsideWorkTreeFlagConstant},
		WorkingDirectory: directoryPath,
	})
	if executionError != nil {
		commandFailure := execshell.CommandFailedError{}
		if errors.As(executionError, &commandFailure) {
			return false, nil
		}
		return false, executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput) == trueLiteralConstant, nil
}

// SuperprojectPath reports the working tree of the parent repository when the
// directory is a submodule checkout, or an empty string otherwise.
func (inspector *RepositoryInspector) SuperprojectPath(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitSuperprojectFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// SubmodulePaths lists the submodule paths recorded in the repository's .gitmodules file.
func (inspector *RepositoryInspector) SubmodulePaths(executionContext context.Context, repositoryPath string) ([]string, error) {
	executionResult, executionError := inspector.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{
			gitConfigSubcommandConstant,
			gitConfigFileFlagConstant,
			gitModulesFileNameConstant,
			gitConfigGetRegexpFlagConstant,
			gitSubmodulePathConfigPatternConstant,
		},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		commandFailure := execshell.CommandFailedError{}
		if errors.As(executionError, &commandFailure) {
			return nil, nil
		}
		return nil, executionError
	}

	submodulePaths := []string{}
	for _, configurationLine := range strings.Split(executionResult.StandardOutput, "\n") {
		trimmedLine := strings.TrimSpace(configurationLine)
		if len(trimmedLine) == 0 {
			continue
		}
		lineFields := strings.Fields(trimmedLine)
		if len(lineFields) < 2 {
			continue
		}
		submodulePaths = append(submodulePaths, lineFields[len(lineFields)-1])
	}
	return submodulePaths, nil
}
