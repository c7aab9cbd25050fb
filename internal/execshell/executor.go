package execshell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "logger not configured"
	commandRunnerNotConfiguredMessageConstant = "command runner not configured"
	commandFailedErrorTemplateConstant        = "%s exited with code %d%s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	commandTimedOutErrorTemplateConstant      = "%s timed out after %s"
	standardErrorDetailTemplateConstant       = ": %s"
	logFieldCommandNameConstant               = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
)

// Supported external tool names.
const (
	CommandGit        CommandName = "git"
	CommandGitLFS     CommandName = "git-lfs"
	CommandVirtualenv CommandName = "virtualenv"
	CommandPip        CommandName = "pip"
	CommandAlert      CommandName = "alert"
)

// CommandName identifies an external executable invoked through the executor.
type CommandName string

// CommandDetails describes a single tool invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	Timeout              time.Duration
}

// ShellCommand combines a tool name with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ErrLoggerNotConfigured indicates the executor was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was built without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command including captured standard error output.
func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	if len(failure.Result.StandardError) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, failure.Result.StandardError)
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, failure.Command.Name, failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, failure.Command.Name, failure.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// CommandTimedOutError reports a command terminated by its execution deadline.
type CommandTimedOutError struct {
	Command ShellCommand
	Timeout time.Duration
}

// Error describes the timed-out command.
func (failure CommandTimedOutError) Error() string {
	return fmt.Sprintf(commandTimedOutErrorTemplateConstant, failure.Command.Name, failure.Timeout)
}

// ShellExecutor coordinates external tool execution with logging, timeouts, and lifecycle events.
type ShellExecutor struct {
	logger           *zap.Logger
	commandRunner    CommandRunner
	messageFormatter CommandMessageFormatter
	eventObservers   []CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor from the provided logger, runner, and optional observers.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, eventObservers ...CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	retainedObservers := make([]CommandEventObserver, 0, len(eventObservers))
	for _, observer := range eventObservers {
		if observer != nil {
			retainedObservers = append(retainedObservers, observer)
		}
	}

	return &ShellExecutor{
		logger:           logger,
		commandRunner:    commandRunner,
		messageFormatter: CommandMessageFormatter{},
		eventObservers:   retainedObservers,
	}, nil
}

// Execute runs the supplied command, honoring its timeout, and reports the result.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(
		executor.messageFormatter.BuildStartedMessage(command),
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
	for _, observer := range executor.eventObservers {
		observer.CommandStarted(command)
	}

	boundedContext := executionContext
	if command.Details.Timeout > 0 {
		var cancelExecution context.CancelFunc
		boundedContext, cancelExecution = context.WithTimeout(executionContext, command.Details.Timeout)
		defer cancelExecution()
	}

	executionResult, runError := executor.commandRunner.Run(boundedContext, command)
	if runError != nil {
		executionFailure := CommandExecutionError{Command: command, Cause: runError}
		executor.logger.Error(
			executor.messageFormatter.BuildExecutionFailureMessage(command, runError),
			zap.String(logFieldCommandNameConstant, string(command.Name)),
		)
		for _, observer := range executor.eventObservers {
			observer.CommandExecutionFailed(command, runError)
		}
		return ExecutionResult{}, executionFailure
	}

	if executionResult.ExitCode != 0 {
		if deadlineError := boundedContext.Err(); errors.Is(deadlineError, context.DeadlineExceeded) {
			timeoutFailure := CommandTimedOutError{Command: command, Timeout: command.Details.Timeout}
			executor.logger.Error(
				timeoutFailure.Error(),
				zap.String(logFieldCommandNameConstant, string(command.Name)),
			)
			for _, observer := range executor.eventObservers {
				observer.CommandExecutionFailed(command, timeoutFailure)
			}
			return executionResult, timeoutFailure
		}

		commandFailure := CommandFailedError{Command: command, Result: executionResult}
		executor.logger.Error(
			executor.messageFormatter.BuildFailureMessage(command, executionResult),
			zap.String(logFieldCommandNameConstant, string(command.Name)),
			zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
		)
		for _, observer := range executor.eventObservers {
			observer.CommandCompleted(command, executionResult)
		}
		return executionResult, commandFailure
	}

	executor.logger.Debug(
		executor.messageFormatter.BuildSuccessMessage(command),
		zap.String(logFieldCommandNameConstant, string(command.Name)),
	)
	for _, observer := range executor.eventObservers {
		observer.CommandCompleted(command, executionResult)
	}

	return executionResult, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitLFS runs the git large-file-storage extension with the provided details.
func (executor *ShellExecutor) ExecuteGitLFS(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGitLFS, Details: details})
}

// ExecuteVirtualenv runs the virtual environment tool with the provided details.
func (executor *ShellExecutor) ExecuteVirtualenv(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandVirtualenv, Details: details})
}

// ExecutePip runs the dependency installer with the provided details.
func (executor *ShellExecutor) ExecutePip(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandPip, Details: details})
}

// ExecuteAlert runs the external alert dispatching tool with the provided details.
func (executor *ShellExecutor) ExecuteAlert(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandAlert, Details: details})
}

// ExecuteTool runs an arbitrary configured executable with the provided details.
func (executor *ShellExecutor) ExecuteTool(executionContext context.Context, toolName CommandName, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: toolName, Details: details})
}
