package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/alert"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/jobs"
	"github.com/linkedinyou/jenkins-tools/internal/pipeline"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/utils"
	"github.com/linkedinyou/jenkins-tools/internal/utils/flags"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
	"github.com/linkedinyou/jenkins-tools/internal/videos"
	"github.com/linkedinyou/jenkins-tools/internal/workspace"
)

const (
	applicationNameConstant                 = "jenkins-tools"
	applicationShortDescriptionConstant     = "Command-line toolkit for continuous-integration build jobs"
	applicationLongDescriptionConstant      = "jenkins-tools drives build-side housekeeping: locked git synchronization against a shared clone cache, interpreter environment provisioning, secrets decryption, chat alerting, deploy pipeline stages, and declarative CI jobs."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant               = "JENKINSTOOLS"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	rootCommandInfoMessageConstant          = "jenkins-tools CLI executed"
	rootCommandDebugMessageConstant         = "jenkins-tools CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	toolsConfigurationKeyConstant           = "tools"
	workspaceConfigurationKeyConstant       = toolsConfigurationKeyConstant + ".workspace"
	venvConfigurationKeyConstant            = toolsConfigurationKeyConstant + ".venv"
	secretsConfigurationKeyConstant         = toolsConfigurationKeyConstant + ".secrets"
	alertConfigurationKeyConstant           = toolsConfigurationKeyConstant + ".alert"
	syncConfigurationKeyConstant            = toolsConfigurationKeyConstant + ".sync"
	videosConfigurationKeyConstant          = toolsConfigurationKeyConstant + ".videos"
	deployConfigurationKeyConstant          = toolsConfigurationKeyConstant + ".deploy"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for CLI subcommands grouped by tool.
type ApplicationToolsConfiguration struct {
	Workspace workspace.Configuration `mapstructure:"workspace"`
	Venv      venv.Configuration      `mapstructure:"venv"`
	Secrets   secrets.Configuration   `mapstructure:"secrets"`
	Alert     alert.Configuration     `mapstructure:"alert"`
	Sync      gitsync.Configuration   `mapstructure:"sync"`
	Videos    videos.Configuration    `mapstructure:"videos"`
	Deploy    pipeline.Configuration  `mapstructure:"deploy"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	embeddedConfiguration, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfiguration, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.SetOut(utils.NewFlushingWriter(os.Stdout))
	cobraCommand.SetErr(utils.NewFlushingWriter(os.Stderr))
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	workspaceBuilder := workspace.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() workspace.Configuration {
			return application.configuration.Tools.Workspace
		},
	}
	if workspaceCommand, workspaceBuildError := workspaceBuilder.Build(); workspaceBuildError == nil {
		cobraCommand.AddCommand(workspaceCommand)
	}

	venvBuilder := venv.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() venv.Configuration {
			return application.configuration.Tools.Venv
		},
	}
	if venvCommand, venvBuildError := venvBuilder.Build(); venvBuildError == nil {
		cobraCommand.AddCommand(venvCommand)
	}

	secretsBuilder := secrets.CommandBuilder{
		LoggerProvider: loggerProvider,
		ConfigurationProvider: func() secrets.Configuration {
			return application.configuration.Tools.Secrets
		},
	}
	if secretsCommand, secretsBuildError := secretsBuilder.Build(); secretsBuildError == nil {
		cobraCommand.AddCommand(secretsCommand)
	}

	alertBuilder := alert.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() alert.Configuration {
			return application.configuration.Tools.Alert
		},
		SecretsConfigurationProvider: func() secrets.Configuration {
			return application.configuration.Tools.Secrets
		},
	}
	if alertCommand, alertBuildError := alertBuilder.Build(); alertBuildError == nil {
		cobraCommand.AddCommand(alertCommand)
	}

	syncBuilder := gitsync.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() gitsync.Configuration {
			return application.configuration.Tools.Sync
		},
	}
	if syncCommand, syncBuildError := syncBuilder.Build(); syncBuildError == nil {
		cobraCommand.AddCommand(syncCommand)
	}

	videosBuilder := videos.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() videos.Configuration {
			return application.configuration.Tools.Videos
		},
		SyncConfigurationProvider: func() gitsync.Configuration {
			return application.configuration.Tools.Sync
		},
		EnvironmentConfigurationProvider: func() venv.Configuration {
			return application.configuration.Tools.Venv
		},
		SecretsConfigurationProvider: func() secrets.Configuration {
			return application.configuration.Tools.Secrets
		},
	}
	if videosCommand, videosBuildError := videosBuilder.Build(); videosBuildError == nil {
		cobraCommand.AddCommand(videosCommand)
	}

	deployBuilder := pipeline.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() pipeline.Configuration {
			return application.configuration.Tools.Deploy
		},
		AlertConfigurationProvider: func() alert.Configuration {
			return application.configuration.Tools.Alert
		},
		SecretsConfigurationProvider: func() secrets.Configuration {
			return application.configuration.Tools.Secrets
		},
	}
	if deployCommand, deployBuildError := deployBuilder.Build(); deployBuildError == nil {
		cobraCommand.AddCommand(deployCommand)
	}

	jobsBuilder := jobs.CommandBuilder{
		LoggerProvider: loggerProvider,
		SyncConfigurationProvider: func() gitsync.Configuration {
			return application.configuration.Tools.Sync
		},
		VideosConfigurationProvider: func() videos.Configuration {
			return application.configuration.Tools.Videos
		},
		EnvironmentConfigurationProvider: func() venv.Configuration {
			return application.configuration.Tools.Venv
		},
		SecretsConfigurationProvider: func() secrets.Configuration {
			return application.configuration.Tools.Secrets
		},
	}
	if jobsCommand, jobsBuildError := jobsBuilder.Build(); jobsBuildError == nil {
		cobraCommand.AddCommand(jobsCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	application.rootCommand.SetArgs(flags.NormalizeToggleArguments(os.Args[1:]))
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	defaultValueGroups := []map[string]any{
		workspace.DefaultConfigurationValues(workspaceConfigurationKeyConstant),
		venv.DefaultConfigurationValues(venvConfigurationKeyConstant),
		secrets.DefaultConfigurationValues(secretsConfigurationKeyConstant),
		alert.DefaultConfigurationValues(alertConfigurationKeyConstant),
		gitsync.DefaultConfigurationValues(syncConfigurationKeyConstant),
		videos.DefaultConfigurationValues(videosConfigurationKeyConstant),
		pipeline.DefaultConfigurationValues(deployConfigurationKeyConstant),
	}
	for _, defaultValueGroup := range defaultValueGroups {
		for configurationKey, configurationValue := range defaultValueGroup {
			defaultValues[configurationKey] = configurationValue
		}
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	loggerInstance, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerInstance

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	rootCommandFields := []zap.Field{
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	}
	if configurationFilePath, configurationFileRecorded := application.commandContextAccessor.ConfigurationFilePath(command.Context()); configurationFileRecorded {
		rootCommandFields = append(rootCommandFields, zap.String(configurationFileFieldConstant, configurationFilePath))
	}

	application.logger.Info(rootCommandInfoMessageConstant, rootCommandFields...)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
