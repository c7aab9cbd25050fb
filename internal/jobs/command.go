package jobs

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
	"github.com/linkedinyou/jenkins-tools/internal/videos"
)

const (
	commandUseConstant              = "job"
	commandShortDescriptionConstant = "Run declarative CI jobs defined in YAML files"
	commandLongDescriptionConstant  = "job loads an ordered list of synchronization and publishing steps from a YAML definition and executes them sequentially, stopping at the first failure."

	runUseConstant              = "run <job-file>"
	runShortDescriptionConstant = "Execute every step of a job definition in order"

	commandExecutionErrorTemplate = "job execution failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the job Cobra command.
type CommandBuilder struct {
	LoggerProvider                   LoggerProvider
	SyncConfigurationProvider        func() gitsync.Configuration
	VideosConfigurationProvider      func() videos.Configuration
	EnvironmentConfigurationProvider func() venv.Configuration
	SecretsConfigurationProvider     func() secrets.Configuration
	Synchronizer                     Synchronizer
	Videos                           VideoSynchronizer
}

// Build constructs the job command and its run subcommand.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(&cobra.Command{
		Use:   runUseConstant,
		Short: runShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configurationError := LoadConfiguration(arguments[0])
			if configurationError != nil {
				return configurationError
			}

			runner, runnerError := builder.resolveRunner()
			if runnerError != nil {
				return runnerError
			}

			runError := runner.Run(command.Context(), configuration)
			if runError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, runError)
			}
			return nil
		},
	})

	return command, nil
}

func (builder *CommandBuilder) resolveRunner() (*Runner, error) {
	logger := builder.resolveLogger()

	synchronizer, synchronizerError := builder.resolveSynchronizer(logger)
	if synchronizerError != nil {
		return nil, synchronizerError
	}

	videoSynchronizer, videosError := builder.resolveVideos(logger)
	if videosError != nil {
		return nil, videosError
	}

	return NewRunner(Dependencies{
		Logger:       logger,
		Synchronizer: synchronizer,
		Videos:       videoSynchronizer,
	})
}

func (builder *CommandBuilder) resolveSynchronizer(logger *zap.Logger) (Synchronizer, error) {
	if builder.Synchronizer != nil {
		return builder.Synchronizer, nil
	}

	commandRunner := execshell.NewOSCommandRunner()
	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner)
	if creationError != nil {
		return nil, creationError
	}

	return gitsync.NewService(gitsync.Dependencies{
		Executor:    shellExecutor,
		LockManager: gitsync.NewFlockLockManager(),
		Logger:      logger,
	}, builder.resolveSyncConfiguration())
}

func (builder *CommandBuilder) resolveVideos(logger *zap.Logger) (VideoSynchronizer, error) {
	if builder.Videos != nil {
		return builder.Videos, nil
	}

	workflowBuilder := videos.CommandBuilder{
		LoggerProvider:                   func() *zap.Logger { return logger },
		ConfigurationProvider:            builder.VideosConfigurationProvider,
		SyncConfigurationProvider:        builder.SyncConfigurationProvider,
		EnvironmentConfigurationProvider: builder.EnvironmentConfigurationProvider,
		SecretsConfigurationProvider:     builder.SecretsConfigurationProvider,
	}
	return workflowBuilder.ResolveWorkflow()
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

func (builder *CommandBuilder) resolveSyncConfiguration() gitsync.Configuration {
	if builder.SyncConfigurationProvider == nil {
		return gitsync.Configuration{}
	}
	return builder.SyncConfigurationProvider()
}
