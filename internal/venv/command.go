package venv

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
	"github.com/linkedinyou/jenkins-tools/internal/utils/flags"
)

const (
	commandUseConstant              = "venv"
	commandShortDescriptionConstant = "Provision and reuse isolated interpreter environments"
	commandLongDescriptionConstant  = "venv idempotently provisions the shared interpreter environment, optionally alongside a debug-capable sibling, and prints the activation exports for child processes."

	provisionUseConstant          = "provision"
	provisionShortDescription     = "Create or reuse the interpreter environment and print activation exports"
	installUseConstant            = "install-requirements <requirements-file>"
	installShortDescription       = "Install pinned packages into the provisioned environment"
	flagDebugNameConstant         = "debug"
	flagDebugDescriptionConstant  = "Also provision the debug-capable sibling environment"
	environmentExportTemplate     = "export %s=%s\n"
	commandExecutionErrorTemplate = "environment provisioning failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies environment provisioning settings.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the venv command tree.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	Executor                     ToolExecutor
}

// Build constructs the venv command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(builder.buildProvisionCommand())
	command.AddCommand(builder.buildInstallCommand())

	return command, nil
}

func (builder *CommandBuilder) buildProvisionCommand() *cobra.Command {
	var includeDebug bool
	command := &cobra.Command{
		Use:   provisionUseConstant,
		Short: provisionShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			activation, provisionError := service.Provision(command.Context(), ProvisionOptions{IncludeDebugEnvironment: includeDebug})
			if provisionError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, provisionError)
			}

			environmentVariables := activation.EnvironmentVariables(os.Getenv("PATH"))
			variableNames := make([]string, 0, len(environmentVariables))
			for variableName := range environmentVariables {
				variableNames = append(variableNames, variableName)
			}
			sort.Strings(variableNames)
			for _, variableName := range variableNames {
				fmt.Fprintf(command.OutOrStdout(), environmentExportTemplate, variableName, environmentVariables[variableName])
			}
			return nil
		},
	}
	flags.AddToggleFlag(command.Flags(), &includeDebug, flagDebugNameConstant, false, flagDebugDescriptionConstant)
	return command
}

func (builder *CommandBuilder) buildInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   installUseConstant,
		Short: installShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			activation, provisionError := service.Provision(command.Context(), ProvisionOptions{})
			if provisionError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, provisionError)
			}

			installError := service.InstallRequirements(command.Context(), activation, arguments[0])
			if installError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, installError)
			}
			return nil
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

	return NewService(Dependencies{
		Logger:   logger,
		Executor: executor,
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

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (ToolExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	return execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), eventObservers...)
}
