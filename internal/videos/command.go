package videos

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
)

const (
	commandUseConstant              = "videos-sync"
	commandShortDescriptionConstant = "Refresh the stored video metadata from the video platform and publish it"
	commandLongDescriptionConstant  = "videos-sync provisions the interpreter environment, decrypts credentials, pulls the translations checkout, runs the metadata fetch tool, and commits the refreshed listings."

	commandExecutionErrorTemplate = "video metadata sync failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies video sync settings.
type ConfigurationProvider func() Configuration

// CommandExecutor runs every external command the workflow relies on.
type CommandExecutor interface {
	gitsync.GitExecutor
	venv.ToolExecutor
	ToolExecutor
}

// CommandBuilder assembles the videos-sync Cobra command.
type CommandBuilder struct {
	LoggerProvider                   LoggerProvider
	ConfigurationProvider            ConfigurationProvider
	SyncConfigurationProvider        func() gitsync.Configuration
	EnvironmentConfigurationProvider func() venv.Configuration
	SecretsConfigurationProvider     func() secrets.Configuration
	HumanReadableLoggingProvider     func() bool
	Executor                         CommandExecutor
	LockManager                      gitsync.LockManager
}

// Build constructs the videos-sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			workflow, workflowError := builder.ResolveWorkflow()
			if workflowError != nil {
				return workflowError
			}

			runError := workflow.Run(command.Context())
			if runError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, runError)
			}
			return nil
		},
	}, nil
}

// ResolveWorkflow wires the provisioning, secrets, and synchronization
// collaborators into a runnable workflow.
func (builder *CommandBuilder) ResolveWorkflow() (*Workflow, error) {
	logger := builder.resolveLogger()

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return nil, executorError
	}

	environmentService, environmentError := venv.NewService(venv.Dependencies{
		Logger:   logger,
		Executor: executor,
	}, builder.resolveEnvironmentConfiguration())
	if environmentError != nil {
		return nil, environmentError
	}

	secretsService, secretsError := secrets.NewService(secrets.Dependencies{
		Logger: logger,
	}, builder.resolveSecretsConfiguration())
	if secretsError != nil {
		return nil, secretsError
	}

	lockManager := builder.LockManager
	if lockManager == nil {
		lockManager = gitsync.NewFlockLockManager()
	}

	synchronizationService, synchronizationError := gitsync.NewService(gitsync.Dependencies{
		Executor:    executor,
		LockManager: lockManager,
		Logger:      logger,
	}, builder.resolveSyncConfiguration())
	if synchronizationError != nil {
		return nil, synchronizationError
	}

	return NewWorkflow(Dependencies{
		Logger:       logger,
		Provisioner:  environmentService,
		Secrets:      secretsService,
		Synchronizer: synchronizationService,
		Executor:     executor,
	}, builder.resolveConfiguration())
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

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (CommandExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	commandRunner := execshell.NewOSCommandRunner()

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner, eventObservers...)
	if creationError != nil {
		return nil, creationError
	}

	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return Configuration{}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveSyncConfiguration() gitsync.Configuration {
	if builder.SyncConfigurationProvider == nil {
		return gitsync.Configuration{}
	}
	return builder.SyncConfigurationProvider()
}

func (builder *CommandBuilder) resolveEnvironmentConfiguration() venv.Configuration {
	if builder.EnvironmentConfigurationProvider == nil {
		return venv.Configuration{}
	}
	return builder.EnvironmentConfigurationProvider()
}

func (builder *CommandBuilder) resolveSecretsConfiguration() secrets.Configuration {
	if builder.SecretsConfigurationProvider == nil {
		return secrets.Configuration{}
	}
	return builder.SecretsConfigurationProvider()
}
