// Package ui formats external command activity for human readers.
//
// Build operators watching a job console get concise one-line summaries of
// the git, pip, and alert invocations while full telemetry keeps flowing
// through the structured logger.
package ui
