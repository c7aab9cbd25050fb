// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging, per-command timeouts, and lifecycle events
// via ShellExecutor, exposes OSCommandRunner for default process execution,
// and defines the abstractions jenkins-tools uses to run git, git-lfs,
// virtualenv, pip, and the alert dispatcher in a testable manner.
package execshell
