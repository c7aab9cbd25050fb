// Package utils exposes reusable helpers consumed by multiple commands.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment overrides, and zap logging for the CLI, along
// with small output and context helpers shared by the tool commands.
package utils
