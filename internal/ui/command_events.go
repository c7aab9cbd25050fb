package ui

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
)

// CommandEventFormatter builds one-line summaries of command lifecycle events.
type CommandEventFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandEventFormatter) BuildStartedMessage(command execshell.ShellCommand) string {
	return "Running " + commandLabel(command)
}

// BuildSuccessMessage formats the message describing a command that exited zero.
func (formatter CommandEventFormatter) BuildSuccessMessage(command execshell.ShellCommand) string {
	return "Completed " + commandLabel(command)
}

// BuildFailureMessage formats the message describing a non-zero exit,
// including trailing standard error output when the command produced any.
func (formatter CommandEventFormatter) BuildFailureMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	failureMessage := fmt.Sprintf("%s failed with exit code %d", commandLabel(command), result.ExitCode)
	if trimmedStandardError := strings.TrimSpace(result.StandardError); len(trimmedStandardError) > 0 {
		failureMessage += ": " + trimmedStandardError
	}
	return failureMessage
}

// BuildExecutionFailureMessage formats the message describing a command that
// could not be run at all.
func (formatter CommandEventFormatter) BuildExecutionFailureMessage(command execshell.ShellCommand, failure error) string {
	failureDescription := "unknown error"
	if failure != nil {
		failureDescription = failure.Error()
	}
	return fmt.Sprintf("%s failed: %s", commandLabel(command), failureDescription)
}

func commandLabel(command execshell.ShellCommand) string {
	labelParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		labelParts = append(labelParts, strings.Join(command.Details.Arguments, " "))
	}
	label := strings.Join(labelParts, " ")

	if workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory); len(workingDirectory) > 0 {
		label += fmt.Sprintf(" (in %s)", workingDirectory)
	}
	return label
}

// ConsoleCommandEventLogger narrates command lifecycle events through a zap
// logger configured for console output.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter CommandEventFormatter
}

// NewConsoleCommandEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger, formatter: CommandEventFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(command execshell.ShellCommand) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver. Non-zero exits
// log at warning level so they stand out in the build console.
func (eventLogger *ConsoleCommandEventLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if eventLogger == nil {
		return
	}
	if result.ExitCode == 0 {
		eventLogger.logger.Info(eventLogger.formatter.BuildSuccessMessage(command))
		return
	}
	eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(command, result))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(command, failure))
}
