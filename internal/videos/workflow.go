package videos

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
)

const (
	loggerMissingMessageConstant       = "logger not configured"
	provisionerMissingMessageConstant  = "environment provisioner not configured"
	secretsMissingMessageConstant      = "secrets preparer not configured"
	synchronizerMissingMessageConstant = "git synchronizer not configured"
	executorMissingMessageConstant     = "tool executor not configured"
	repositoryMissingMessageConstant   = "repository path not configured"

	provisionErrorTemplateConstant    = "unable to provision environment: %w"
	secretsErrorTemplateConstant      = "unable to prepare credentials: %w"
	requirementsErrorTemplateConstant = "unable to install requirements: %w"
	translationsErrorTemplateConstant = "unable to refresh translations submodule: %w"
	fetchToolErrorTemplateConstant    = "video metadata fetch failed: %w"
	publishErrorTemplateConstant      = "unable to publish refreshed video lists: %w"

	defaultTranslationsPathConstant = "intl/translations"
	defaultFetchToolNameConstant    = "sync_videos"
	defaultRequirementsFileConstant = "requirements.txt"
	defaultCommitMessageConstant    = "Automated update of video list files"

	forceCommitVariableNameConstant = "FORCE_COMMIT"
	forceCommitEnabledValueConstant = "1"

	logFieldRepositoryConstant = "repository"
	logMessageWorkflowComplete = "video metadata sync complete"
)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrProvisionerNotConfigured indicates the environment provisioner dependency was missing.
var ErrProvisionerNotConfigured = errors.New(provisionerMissingMessageConstant)

// ErrSecretsNotConfigured indicates the secrets preparer dependency was missing.
var ErrSecretsNotConfigured = errors.New(secretsMissingMessageConstant)

// ErrSynchronizerNotConfigured indicates the git synchronizer dependency was missing.
var ErrSynchronizerNotConfigured = errors.New(synchronizerMissingMessageConstant)

// ErrExecutorNotConfigured indicates the tool executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ErrRepositoryNotConfigured indicates the repository path setting was missing.
var ErrRepositoryNotConfigured = errors.New(repositoryMissingMessageConstant)

// EnvironmentProvisioner prepares the interpreter environment for the fetch tool.
type EnvironmentProvisioner interface {
	Provision(executionContext context.Context, options venv.ProvisionOptions) (venv.Activation, error)
	InstallRequirements(executionContext context.Context, activation venv.Activation, requirementsFilePath string) error
}

// SecretsPreparer decrypts credentials for the fetch tool.
type SecretsPreparer interface {
	Decrypt() (secrets.Result, error)
}

// Synchronizer performs the git operations the workflow needs.
type Synchronizer interface {
	Pull(executionContext context.Context, repositoryPath string) error
	CommitAndPush(executionContext context.Context, options gitsync.CommitAndPushOptions) error
}

// ToolExecutor runs the external metadata-fetching executable.
type ToolExecutor interface {
	ExecuteTool(executionContext context.Context, toolName execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Configuration captures the video metadata sync settings.
type Configuration struct {
	RepositoryPath       string `mapstructure:"repository_path"`
	TranslationsPath     string `mapstructure:"translations_path"`
	FetchToolName        string `mapstructure:"fetch_tool"`
	RequirementsFilePath string `mapstructure:"requirements_file"`
	CommitMessage        string `mapstructure:"commit_message"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".translations_path": defaultTranslationsPathConstant,
		configurationPrefix + ".fetch_tool":        defaultFetchToolNameConstant,
		configurationPrefix + ".requirements_file": defaultRequirementsFileConstant,
		configurationPrefix + ".commit_message":    defaultCommitMessageConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.TranslationsPath)) == 0 {
		resolvedConfiguration.TranslationsPath = defaultTranslationsPathConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.FetchToolName)) == 0 {
		resolvedConfiguration.FetchToolName = defaultFetchToolNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.RequirementsFilePath)) == 0 {
		resolvedConfiguration.RequirementsFilePath = defaultRequirementsFileConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.CommitMessage)) == 0 {
		resolvedConfiguration.CommitMessage = defaultCommitMessageConstant
	}
	return resolvedConfiguration
}

// Dependencies enumerates the collaborators required by the workflow.
type Dependencies struct {
	Logger       *zap.Logger
	Provisioner  EnvironmentProvisioner
	Secrets      SecretsPreparer
	Synchronizer Synchronizer
	Executor     ToolExecutor
}

// Workflow refreshes the locally stored video list files from the video
// platform and publishes the result.
type Workflow struct {
	logger        *zap.Logger
	provisioner   EnvironmentProvisioner
	secrets       SecretsPreparer
	synchronizer  Synchronizer
	executor      ToolExecutor
	configuration Configuration
}

// NewWorkflow constructs a video metadata sync workflow from dependencies and configuration.
func NewWorkflow(dependencies Dependencies, configuration Configuration) (*Workflow, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Provisioner == nil {
		return nil, ErrProvisionerNotConfigured
	}
	if dependencies.Secrets == nil {
		return nil, ErrSecretsNotConfigured
	}
	if dependencies.Synchronizer == nil {
		return nil, ErrSynchronizerNotConfigured
	}
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	return &Workflow{
		logger:        dependencies.Logger,
		provisioner:   dependencies.Provisioner,
		secrets:       dependencies.Secrets,
		synchronizer:  dependencies.Synchronizer,
		executor:      dependencies.Executor,
		configuration: configuration.WithDefaults(),
	}, nil
}

// Run provisions the environment, decrypts credentials, installs the fetch
// tool's dependencies, pulls the latest translations, refreshes the video
// list files, and commits and pushes the result. The commit bypasses the
// test-plan policy through the override variable since the change is
// machine generated.
func (workflow *Workflow) Run(executionContext context.Context) error {
	if len(strings.TrimSpace(workflow.configuration.RepositoryPath)) == 0 {
		return ErrRepositoryNotConfigured
	}

	activation, provisionError := workflow.provisioner.Provision(executionContext, venv.ProvisionOptions{})
	if provisionError != nil {
		return fmt.Errorf(provisionErrorTemplateConstant, provisionError)
	}

	decryptionResult, decryptionError := workflow.secrets.Decrypt()
	if decryptionError != nil {
		return fmt.Errorf(secretsErrorTemplateConstant, decryptionError)
	}

	if requirementsError := workflow.provisioner.InstallRequirements(executionContext, activation, workflow.configuration.RequirementsFilePath); requirementsError != nil {
		return fmt.Errorf(requirementsErrorTemplateConstant, requirementsError)
	}

	translationsCheckoutPath := filepath.Join(workflow.configuration.RepositoryPath, workflow.configuration.TranslationsPath)
	if pullError := workflow.synchronizer.Pull(executionContext, translationsCheckoutPath); pullError != nil {
		return fmt.Errorf(translationsErrorTemplateConstant, pullError)
	}

	fetchToolEnvironment := decryptionResult.EnvironmentVariables()
	if !activation.AlreadyActive {
		fetchToolEnvironment["VIRTUAL_ENV"] = activation.EnvironmentPath
	}
	_, fetchError := workflow.executor.ExecuteTool(executionContext, execshell.CommandName(workflow.configuration.FetchToolName), execshell.CommandDetails{
		WorkingDirectory:     workflow.configuration.RepositoryPath,
		EnvironmentVariables: fetchToolEnvironment,
	})
	if fetchError != nil {
		return fmt.Errorf(fetchToolErrorTemplateConstant, fetchError)
	}

	publishError := workflow.synchronizer.CommitAndPush(executionContext, gitsync.CommitAndPushOptions{
		RepositoryPath: workflow.configuration.RepositoryPath,
		CommitMessage:  workflow.configuration.CommitMessage,
		EnvironmentVariables: map[string]string{
			forceCommitVariableNameConstant: forceCommitEnabledValueConstant,
		},
	})
	if publishError != nil {
		return fmt.Errorf(publishErrorTemplateConstant, publishError)
	}

	workflow.logger.Info(logMessageWorkflowComplete, zap.String(logFieldRepositoryConstant, workflow.configuration.RepositoryPath))
	return nil
}
