package gitsync

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
)

const (
	commandUseConstant              = "git-sync"
	commandShortDescriptionConstant = "Safely synchronize build workspaces with remote Git repositories"
	commandLongDescriptionConstant  = "git-sync serializes fetches, destructive checkouts, rebases, and pushes so concurrent build jobs can share repository checkouts and a clone cache."

	syncToUseConstant              = "sync-to <repository-url> <workspace-path> <revision>"
	syncToShortDescriptionConstant = "Bring a workspace to an exact revision, cloning through the shared cache when needed"
	pullUseConstant                = "pull <repository-path>"
	pullShortDescriptionConstant   = "Switch to the pull branch, fetch, rebase, and update submodules"
	pushUseConstant                = "push <repository-path>"
	pushShortDescriptionConstant   = "Fetch, rebase, and push the current branch, rolling back on failure"
	commitAndPushUseConstant       = "commit-and-push <repository-path>"
	commitAndPushShortDescription  = "Commit local changes and push, updating the parent submodule pointer"
	fetchUseConstant               = "fetch <repository-path>"
	fetchShortDescriptionConstant  = "Fetch tags and updates from the remote under the fetch lock"
	checkoutUseConstant            = "destructive-checkout <repository-path> <revision>"
	checkoutShortDescription       = "Discard all local modifications and check out a revision"
	submodulesUseConstant          = "update-submodules <repository-path> [submodule-path ...]"
	submodulesShortDescription     = "Update submodules recursively, reusing the shared cache for linked checkouts"
	largeFilesUseConstant          = "lfs <pull|push|prune> <repository-path>"
	largeFilesShortDescription     = "Run a git-lfs operation under the large-file lock"

	flagMessageNameConstant        = "message"
	flagMessageDescriptionConstant = "Commit message used for the workspace and any parent pointer commit"

	commandExecutionErrorTemplate       = "git synchronization failed: %w"
	unsupportedLargeFileOperationFormat = "unsupported large-file operation %q"
	defaultCommitMessageConstant        = "Automated commit"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies synchronization settings.
type ConfigurationProvider func() Configuration

// HumanReadableLoggingProvider reports whether console-friendly command narration is enabled.
type HumanReadableLoggingProvider func() bool

// CommandBuilder assembles the Cobra command tree for workspace synchronization.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider HumanReadableLoggingProvider
	Executor                     GitExecutor
	LockManager                  LockManager
}

// Build constructs the git-sync command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(builder.buildSyncToCommand())
	command.AddCommand(builder.buildPullCommand())
	command.AddCommand(builder.buildPushCommand())
	command.AddCommand(builder.buildCommitAndPushCommand())
	command.AddCommand(builder.buildFetchCommand())
	command.AddCommand(builder.buildDestructiveCheckoutCommand())
	command.AddCommand(builder.buildUpdateSubmodulesCommand())
	command.AddCommand(builder.buildLargeFilesCommand())

	return command, nil
}

func (builder *CommandBuilder) buildSyncToCommand() *cobra.Command {
	return &cobra.Command{
		Use:   syncToUseConstant,
		Short: syncToShortDescriptionConstant,
		Args:  cobra.ExactArgs(3),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.SyncTo(command.Context(), arguments[0], arguments[1], arguments[2]))
		},
	}
}

func (builder *CommandBuilder) buildPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   pullUseConstant,
		Short: pullShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.Pull(command.Context(), arguments[0]))
		},
	}
}

func (builder *CommandBuilder) buildPushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   pushUseConstant,
		Short: pushShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.Push(command.Context(), PushOptions{RepositoryPath: arguments[0]}))
		},
	}
}

func (builder *CommandBuilder) buildCommitAndPushCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commitAndPushUseConstant,
		Short: commitAndPushShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			commitMessage, _ := command.Flags().GetString(flagMessageNameConstant)
			if len(strings.TrimSpace(commitMessage)) == 0 {
				commitMessage = defaultCommitMessageConstant
			}

			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.CommitAndPush(command.Context(), CommitAndPushOptions{
				RepositoryPath: arguments[0],
				CommitMessage:  commitMessage,
			}))
		},
	}
	command.Flags().String(flagMessageNameConstant, defaultCommitMessageConstant, flagMessageDescriptionConstant)
	return command
}

func (builder *CommandBuilder) buildFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   fetchUseConstant,
		Short: fetchShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.Fetch(command.Context(), arguments[0]))
		},
	}
}

func (builder *CommandBuilder) buildDestructiveCheckoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   checkoutUseConstant,
		Short: checkoutShortDescription,
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.DestructiveCheckout(command.Context(), arguments[0], arguments[1]))
		},
	}
}

func (builder *CommandBuilder) buildUpdateSubmodulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   submodulesUseConstant,
		Short: submodulesShortDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.UpdateSubmodules(command.Context(), arguments[0], arguments[1:]...))
		},
	}
}

func (builder *CommandBuilder) buildLargeFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   largeFilesUseConstant,
		Short: largeFilesShortDescription,
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			operation := LargeFileOperation(strings.ToLower(strings.TrimSpace(arguments[0])))
			switch operation {
			case LargeFilePull, LargeFilePush, LargeFilePrune:
			default:
				return fmt.Errorf(unsupportedLargeFileOperationFormat, arguments[0])
			}

			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}
			return wrapExecutionError(service.SynchronizeLargeFiles(command.Context(), arguments[1], operation))
		},
	}
}

func (builder *CommandBuilder) resolveService() (*Service, error) {
	logger := builder.resolveLogger()

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return nil, executorError
	}

	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	lockManager := builder.LockManager
	if lockManager == nil {
		lockManager = NewFlockLockManager()
	}

	return NewService(Dependencies{
		Executor:    executor,
		LockManager: lockManager,
		Logger:      logger,
	}, configuration)
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (GitExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	commandRunner := execshell.NewOSCommandRunner()

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner, eventObservers...)
	if creationError != nil {
		return nil, creationError
	}

	return shellExecutor, nil
}

func wrapExecutionError(executionError error) error {
	if executionError == nil {
		return nil
	}
	return fmt.Errorf(commandExecutionErrorTemplate, executionError)
}
