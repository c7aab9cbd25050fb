package alert

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
	"github.com/linkedinyou/jenkins-tools/internal/utils/flags"
)

const (
	commandUseConstant              = "alert <message>"
	commandShortDescriptionConstant = "Send a graded message to the chat room and the log sink"
	commandLongDescriptionConstant  = "alert decrypts the chat credentials, detects markup to pick formatted or plain delivery, and mirrors the message to the structured log at the mapped level."

	flagSeverityNameConstant        = "severity"
	flagSeverityDescriptionConstant = "message severity"

	unsupportedSeverityErrorFormat = "unsupported severity %q"
	commandExecutionErrorTemplate  = "alert delivery failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies chat alerting settings.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the alert command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	SecretsConfigurationProvider func() secrets.Configuration
	HumanReadableLoggingProvider func() bool
	Executor                     AlertExecutor
}

// Build constructs the alert command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			severityName, _ := command.Flags().GetString(flagSeverityNameConstant)
			severity := Severity(strings.ToLower(strings.TrimSpace(severityName)))
			switch severity {
			case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
			default:
				return fmt.Errorf(unsupportedSeverityErrorFormat, severityName)
			}

			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			sendError := service.Send(command.Context(), severity, strings.Join(arguments, " "))
			if sendError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, sendError)
			}
			return nil
		},
	}
	severityUsage := flags.FormatChoiceUsage(string(SeverityInfo), []string{
		string(SeverityInfo),
		string(SeverityWarning),
		string(SeverityError),
		string(SeverityCritical),
	}, flagSeverityDescriptionConstant)
	command.Flags().String(flagSeverityNameConstant, string(SeverityInfo), severityUsage)
	return command, nil
}

func (builder *CommandBuilder) resolveService() (*Service, error) {
	logger := builder.resolveLogger()

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return nil, executorError
	}

	secretsConfiguration := secrets.Configuration{}
	if builder.SecretsConfigurationProvider != nil {
		secretsConfiguration = builder.SecretsConfigurationProvider()
	}
	secretsService, secretsError := secrets.NewService(secrets.Dependencies{Logger: logger}, secretsConfiguration)
	if secretsError != nil {
		return nil, secretsError
	}

	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	return NewService(Dependencies{
		Logger:   logger,
		Executor: executor,
		Secrets:  secretsService,
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

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (AlertExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	return execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), eventObservers...)
}
