package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
)

const (
	gitFetchSubcommandNameConstant     = "fetch"
	gitCloneSubcommandNameConstant     = "clone"
	gitCheckoutSubcommandNameConstant  = "checkout"
	gitRebaseSubcommandNameConstant    = "rebase"
	gitResetSubcommandNameConstant     = "reset"
	gitSubmoduleSubcommandNameConstant = "submodule"
	gitPushSubcommandNameConstant      = "push"
	gitCommitSubcommandNameConstant    = "commit"
	gitRebaseAbortFlagConstant         = "--abort"
	argumentFlagPrefixConstant         = "-"
)

const (
	gitFetchStartTemplateConstant        = "Fetching updates into %s"
	gitFetchSuccessTemplateConstant      = "Fetched updates into %s"
	gitFetchFailureTemplateConstant      = "Failed to fetch updates into %s (exit code %d%s)"
	gitCloneStartTemplateConstant        = "Cloning %s"
	gitCloneSuccessTemplateConstant      = "Cloned %s"
	gitCloneFailureTemplateConstant      = "Failed to clone %s (exit code %d%s)"
	gitCheckoutStartTemplateConstant     = "Checking out %s in %s"
	gitCheckoutSuccessTemplateConstant   = "Checked out %s in %s"
	gitCheckoutFailureTemplateConstant   = "Failed to check out %s in %s (exit code %d%s)"
	gitRebaseStartTemplateConstant       = "Rebasing in %s"
	gitRebaseSuccessTemplateConstant     = "Rebased in %s"
	gitRebaseFailureTemplateConstant     = "Rebase failed in %s (exit code %d%s)"
	gitRebaseAbortStartTemplateConstant  = "Aborting rebase in %s"
	gitRebaseAbortDoneTemplateConstant   = "Aborted rebase in %s"
	gitResetStartTemplateConstant        = "Resetting working tree in %s"
	gitResetSuccessTemplateConstant      = "Reset working tree in %s"
	gitResetFailureTemplateConstant      = "Failed to reset working tree in %s (exit code %d%s)"
	gitSubmoduleStartTemplateConstant    = "Updating submodules in %s"
	gitSubmoduleSuccessTemplateConstant  = "Updated submodules in %s"
	gitSubmoduleFailureTemplateConstant  = "Failed to update submodules in %s (exit code %d%s)"
	gitPushStartTemplateConstant         = "Pushing from %s"
	gitPushSuccessTemplateConstant       = "Pushed from %s"
	gitPushFailureTemplateConstant       = "Failed to push from %s (exit code %d%s)"
	gitCommitStartTemplateConstant       = "Committing staged changes in %s"
	gitCommitSuccessTemplateConstant     = "Committed staged changes in %s"
	gitCommitFailureTemplateConstant     = "Failed to commit staged changes in %s (exit code %d%s)"
	lfsOperationStartTemplateConstant    = "Synchronizing large files (%s) in %s"
	lfsOperationSuccessTemplateConstant  = "Synchronized large files (%s) in %s"
	lfsOperationFailureTemplateConstant  = "Failed to synchronize large files (%s) in %s (exit code %d%s)"
	virtualenvStartMessageConstant       = "Provisioning virtual environment"
	virtualenvSuccessMessageConstant     = "Provisioned virtual environment"
	virtualenvFailureTemplateConstant    = "Failed to provision virtual environment (exit code %d%s)"
	pipInstallStartTemplateConstant      = "Installing dependencies in %s"
	pipInstallSuccessTemplateConstant    = "Installed dependencies in %s"
	pipInstallFailureTemplateConstant    = "Failed to install dependencies in %s (exit code %d%s)"
	alertDeliveryStartMessageConstant    = "Dispatching alert"
	alertDeliverySuccessMessageConstant  = "Dispatched alert"
	alertDeliveryFailureTemplateConstant = "Failed to dispatch alert (exit code %d%s)"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandGitLFS:
		return formatter.describeLFSMessage(command, result, failure, stage)
	case CommandVirtualenv:
		return formatter.describeStagedMessage(stage, command, result, failure,
			virtualenvStartMessageConstant,
			virtualenvSuccessMessageConstant,
			fmt.Sprintf(virtualenvFailureTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
	case CommandPip:
		workingDirectory := formatter.describeWorkingDirectory(command)
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(pipInstallStartTemplateConstant, workingDirectory),
			fmt.Sprintf(pipInstallSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(pipInstallFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
	case CommandAlert:
		return formatter.describeStagedMessage(stage, command, result, failure,
			alertDeliveryStartMessageConstant,
			alertDeliverySuccessMessageConstant,
			fmt.Sprintf(alertDeliveryFailureTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeStagedMessage(stage messageStage, command ShellCommand, result ExecutionResult, failure error, startMessage string, successMessage string, failureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	case messageStageFailure:
		return failureMessage
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	subcommand := strings.TrimSpace(command.Details.Arguments[0])
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)

	switch subcommand {
	case gitFetchSubcommandNameConstant:
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitFetchStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitFetchSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitFetchFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitCloneSubcommandNameConstant:
		cloneTarget := formatter.describeTrailingArgument(command)
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitCloneStartTemplateConstant, cloneTarget),
			fmt.Sprintf(gitCloneSuccessTemplateConstant, cloneTarget),
			fmt.Sprintf(gitCloneFailureTemplateConstant, cloneTarget, result.ExitCode, standardErrorSuffix))
	case gitCheckoutSubcommandNameConstant:
		checkoutTarget := formatter.describeTrailingArgument(command)
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitCheckoutStartTemplateConstant, checkoutTarget, workingDirectory),
			fmt.Sprintf(gitCheckoutSuccessTemplateConstant, checkoutTarget, workingDirectory),
			fmt.Sprintf(gitCheckoutFailureTemplateConstant, checkoutTarget, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitRebaseSubcommandNameConstant:
		if containsArgument(command.Details.Arguments, gitRebaseAbortFlagConstant) {
			return formatter.describeStagedMessage(stage, command, result, failure,
				fmt.Sprintf(gitRebaseAbortStartTemplateConstant, workingDirectory),
				fmt.Sprintf(gitRebaseAbortDoneTemplateConstant, workingDirectory),
				fmt.Sprintf(gitRebaseFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
		}
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitRebaseStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitRebaseSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitRebaseFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitResetSubcommandNameConstant:
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitResetStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitResetSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitResetFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitSubmoduleSubcommandNameConstant:
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitSubmoduleStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitSubmoduleSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitSubmoduleFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitPushSubcommandNameConstant:
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitPushStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitPushSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitPushFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitCommitSubcommandNameConstant:
		return formatter.describeStagedMessage(stage, command, result, failure,
			fmt.Sprintf(gitCommitStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitCommitSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitCommitFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeLFSMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	lfsOperation := strings.TrimSpace(command.Details.Arguments[0])
	return formatter.describeStagedMessage(stage, command, result, failure,
		fmt.Sprintf(lfsOperationStartTemplateConstant, lfsOperation, workingDirectory),
		fmt.Sprintf(lfsOperationSuccessTemplateConstant, lfsOperation, workingDirectory),
		fmt.Sprintf(lfsOperationFailureTemplateConstant, lfsOperation, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeTrailingArgument(command ShellCommand) string {
	for argumentIndex := len(command.Details.Arguments) - 1; argumentIndex > 0; argumentIndex-- {
		candidateArgument := strings.TrimSpace(command.Details.Arguments[argumentIndex])
		if len(candidateArgument) > 0 && !strings.HasPrefix(candidateArgument, argumentFlagPrefixConstant) {
			return candidateArgument
		}
	}
	return formatter.describeWorkingDirectory(command)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func containsArgument(arguments []string, wantedArgument string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == wantedArgument {
			return true
		}
	}
	return false
}
