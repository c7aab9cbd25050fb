package execshell

// CommandEventObserver receives lifecycle notifications for external command
// execution. Observers must not block; they run inline with the command.
type CommandEventObserver interface {
	// CommandStarted fires just before the command process is spawned.
	CommandStarted(command ShellCommand)
	// CommandCompleted fires once the command finished with an exit code.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed fires when the command could not run at all.
	CommandExecutionFailed(command ShellCommand, failure error)
}
