package workspace

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
)

const (
	commandUseConstant              = "workspace"
	commandShortDescriptionConstant = "Prepare and maintain the build environment directory layout"
	commandLongDescriptionConstant  = "workspace resolves the build directory layout, refuses to run from inside a version-controlled tree, prunes expired temporary files, and swaps directories without interrupting readers."

	setupUseConstant            = "setup"
	setupShortDescription       = "Resolve and create the workspace directory layout"
	pruneUseConstant            = "prune-temp"
	pruneShortDescription       = "Delete temporary entries older than the retention window"
	fastMoveUseConstant         = "fast-move <source> <destination>"
	fastMoveShortDescription    = "Replace the destination with the source, parking prior contents"
	environmentExportTemplate   = "export %s=%s\n"
	commandExecutionErrorFormat = "workspace maintenance failed: %w"
	workingDirectoryErrorFormat = "failed to determine working directory: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies workspace settings.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the workspace command tree.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	Inspector                    WorkTreeInspector
}

// Build constructs the workspace command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(builder.buildSetupCommand())
	command.AddCommand(builder.buildPruneCommand())
	command.AddCommand(builder.buildFastMoveCommand())

	return command, nil
}

func (builder *CommandBuilder) buildSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   setupUseConstant,
		Short: setupShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			workingDirectory, workingDirectoryError := os.Getwd()
			if workingDirectoryError != nil {
				return fmt.Errorf(workingDirectoryErrorFormat, workingDirectoryError)
			}

			resolvedPaths, resolveError := service.Resolve(command.Context(), workingDirectory)
			if resolveError != nil {
				return fmt.Errorf(commandExecutionErrorFormat, resolveError)
			}

			environmentVariables := resolvedPaths.EnvironmentVariables()
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
}

func (builder *CommandBuilder) buildPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   pruneUseConstant,
		Short: pruneShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			pruneError := service.PruneTemporaryFiles(time.Now())
			if pruneError != nil {
				return fmt.Errorf(commandExecutionErrorFormat, pruneError)
			}
			return nil
		},
	}
}

func (builder *CommandBuilder) buildFastMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   fastMoveUseConstant,
		Short: fastMoveShortDescription,
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			moveError := service.FastMove(arguments[0], arguments[1])
			if moveError != nil {
				return fmt.Errorf(commandExecutionErrorFormat, moveError)
			}

			service.SweepParkedEntries()
			return nil
		},
	}
}

func (builder *CommandBuilder) resolveService() (*Service, error) {
	logger := builder.resolveLogger()

	inspector, inspectorError := builder.resolveInspector(logger)
	if inspectorError != nil {
		return nil, inspectorError
	}

	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	return NewService(Dependencies{
		Logger:    logger,
		Inspector: inspector,
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

func (builder *CommandBuilder) resolveInspector(logger *zap.Logger) (WorkTreeInspector, error) {
	if builder.Inspector != nil {
		return builder.Inspector, nil
	}

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), eventObservers...)
	if executorError != nil {
		return nil, executorError
	}

	return gitsync.NewRepositoryInspector(shellExecutor)
}
