package pipeline

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/alert"
	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/ui"
)

const (
	commandUseConstant              = "deploy"
	commandShortDescriptionConstant = "Coordinate the multi-stage deploy shared across build jobs"
	commandLongDescriptionConstant  = "deploy sequences the stages of a deploy that span several build jobs sharing one workspace, guarded by a single deploy lock directory with recorded state."

	acquireLockUseConstant        = "acquire-lock"
	acquireLockShortDescription   = "Take the deploy lock and record the initial deploy state"
	mergeFromMasterUseConstant    = "merge-from-master"
	mergeFromMasterShort          = "Bring the deploy branch up to date with master before deploying"
	setDefaultUseConstant         = "set-default"
	setDefaultShortDescription    = "Promote the deployed version to the live traffic default"
	manualTestUseConstant         = "manual-test"
	manualTestShortDescription    = "Announce that the deployed version is ready for manual testing"
	finishSuccessUseConstant      = "finish-with-success"
	finishSuccessShort            = "Merge the deployed revision to master, tag it, and release the lock"
	finishFailureUseConstant      = "finish-with-failure"
	finishFailureShort            = "Abandon the deploy and release the lock, keeping a backup"
	finishRollbackUseConstant     = "finish-with-rollback"
	finishRollbackShort           = "Tag the deploy as rolled back and release the lock"
	finishUnlockUseConstant       = "finish-with-unlock"
	finishUnlockShortDescription  = "Release the deploy lock without recording an outcome"
	relockUseConstant             = "relock"
	relockShortDescription        = "Restore the deploy lock from its backup after a mistaken unlock"
	flagTokenNameConstant         = "token"
	flagTokenDescriptionConstant  = "Deploy token printed by acquire-lock, verified against the lock state"
	flagRevisionNameConstant      = "revision"
	flagRevisionDescription       = "Revision being deployed"
	flagDeployerEmailNameConstant = "deployer-email"
	flagDeployerEmailDescription  = "Email address of the person running the deploy"

	commandExecutionErrorTemplate = "deploy stage failed: %w"
	acquiredTokenOutputTemplate   = "deploy lock acquired: version %s token %s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies deploy pipeline settings.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the deploy command and its stage subcommands.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	AlertConfigurationProvider   func() alert.Configuration
	SecretsConfigurationProvider func() secrets.Configuration
	HumanReadableLoggingProvider func() bool
	Executor                     gitsync.GitExecutor
	Alerter                      Alerter
	ToolRunner                   ToolRunner
}

// Build constructs the deploy command tree.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(builder.buildAcquireLockCommand())
	command.AddCommand(builder.buildStageCommand(mergeFromMasterUseConstant, mergeFromMasterShort, (*Service).MergeFromMaster))
	command.AddCommand(builder.buildStageCommand(setDefaultUseConstant, setDefaultShortDescription, (*Service).SetDefault))
	command.AddCommand(builder.buildStageCommand(manualTestUseConstant, manualTestShortDescription, (*Service).ManualTest))
	command.AddCommand(builder.buildStageCommand(finishSuccessUseConstant, finishSuccessShort, (*Service).FinishWithSuccess))
	command.AddCommand(builder.buildStageCommand(finishFailureUseConstant, finishFailureShort, (*Service).FinishWithFailure))
	command.AddCommand(builder.buildStageCommand(finishRollbackUseConstant, finishRollbackShort, (*Service).FinishWithRollback))
	command.AddCommand(builder.buildStageCommand(finishUnlockUseConstant, finishUnlockShortDescription, (*Service).FinishWithUnlock))
	command.AddCommand(builder.buildRelockCommand())

	return command, nil
}

func (builder *CommandBuilder) buildAcquireLockCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   acquireLockUseConstant,
		Short: acquireLockShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			gitRevision, _ := command.Flags().GetString(flagRevisionNameConstant)
			deployerEmail, _ := command.Flags().GetString(flagDeployerEmailNameConstant)

			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			deployProperties, acquireError := service.AcquireLock(command.Context(), AcquireOptions{
				GitRevision:   gitRevision,
				DeployerEmail: deployerEmail,
			})
			if acquireError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, acquireError)
			}

			fmt.Fprintf(command.OutOrStdout(), acquiredTokenOutputTemplate, deployProperties.VersionName, deployProperties.Token)
			return nil
		},
	}
	command.Flags().String(flagRevisionNameConstant, "", flagRevisionDescription)
	command.Flags().String(flagDeployerEmailNameConstant, "", flagDeployerEmailDescription)
	return command
}

func (builder *CommandBuilder) buildStageCommand(useConstant string, shortDescription string, stage func(*Service, context.Context, string) error) *cobra.Command {
	command := &cobra.Command{
		Use:   useConstant,
		Short: shortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			suppliedToken, _ := command.Flags().GetString(flagTokenNameConstant)

			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			stageError := stage(service, command.Context(), suppliedToken)
			if stageError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, stageError)
			}
			return nil
		},
	}
	command.Flags().String(flagTokenNameConstant, "", flagTokenDescriptionConstant)
	return command
}

func (builder *CommandBuilder) buildRelockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   relockUseConstant,
		Short: relockShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			relockError := service.Relock(command.Context())
			if relockError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, relockError)
			}
			return nil
		},
	}
}

func (builder *CommandBuilder) resolveService() (*Service, error) {
	logger := builder.resolveLogger()

	var eventObservers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObservers = append(eventObservers, ui.NewConsoleCommandEventLogger(logger))
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), eventObservers...)
	if executorError != nil {
		return nil, executorError
	}

	var executor gitsync.GitExecutor = shellExecutor
	if builder.Executor != nil {
		executor = builder.Executor
	}

	var toolRunner ToolRunner = shellExecutor
	if builder.ToolRunner != nil {
		toolRunner = builder.ToolRunner
	}

	alerter, alerterError := builder.resolveAlerter(logger, shellExecutor)
	if alerterError != nil {
		return nil, alerterError
	}

	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	return NewService(Dependencies{
		Logger:     logger,
		Executor:   executor,
		Alerter:    alerter,
		ToolRunner: toolRunner,
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

func (builder *CommandBuilder) resolveAlerter(logger *zap.Logger, executor alert.AlertExecutor) (Alerter, error) {
	if builder.Alerter != nil {
		return builder.Alerter, nil
	}

	secretsConfiguration := secrets.Configuration{}
	if builder.SecretsConfigurationProvider != nil {
		secretsConfiguration = builder.SecretsConfigurationProvider()
	}
	secretsService, secretsError := secrets.NewService(secrets.Dependencies{Logger: logger}, secretsConfiguration)
	if secretsError != nil {
		return nil, secretsError
	}

	alertConfiguration := alert.Configuration{}
	if builder.AlertConfigurationProvider != nil {
		alertConfiguration = builder.AlertConfigurationProvider()
	}

	return alert.NewService(alert.Dependencies{
		Logger:   logger,
		Executor: executor,
		Secrets:  secretsService,
	}, alertConfiguration)
}
