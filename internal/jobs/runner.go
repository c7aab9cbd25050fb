package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

const (
	runnerLoggerRequiredMessageConstant       = "job runner requires a logger"
	runnerSynchronizerRequiredMessageConstant = "job runner requires a synchronizer"
	runnerVideosRequiredMessageConstant       = "job runner requires a video sync workflow"
	stepOptionsDecodeErrorTemplateConstant    = "step %d (%s): failed to decode options: %w"
	stepExecutionErrorTemplateConstant        = "step %d (%s) failed: %w"
	stepRepositoryRequiredMessageConstant     = "step requires a repository path"
	stepRepositoryURLRequiredMessageConstant  = "step requires a repository url"
	stepWorkspaceRequiredMessageConstant      = "step requires a workspace path"
	stepRevisionRequiredMessageConstant       = "step requires a revision"
	stepSubmodulesRequiredMessageConstant     = "step requires at least one submodule path"
	logMessageStepStartingConstant            = "running job step"
	logMessageJobCompletedConstant            = "job completed"
	logFieldStepIndexConstant                 = "step"
	logFieldOperationConstant                 = "operation"
	logFieldJobNameConstant                   = "job"
	defaultCommitMessageConstant              = "Automated commit"
	forceCommitVariableNameConstant           = "FORCE_COMMIT"
	forceCommitVariableValueConstant          = "1"
)

// Runner dependency validation errors.
var (
	ErrRunnerLoggerNotConfigured       = errors.New(runnerLoggerRequiredMessageConstant)
	ErrRunnerSynchronizerNotConfigured = errors.New(runnerSynchronizerRequiredMessageConstant)
	ErrRunnerVideosNotConfigured       = errors.New(runnerVideosRequiredMessageConstant)
)

// Synchronizer executes repository synchronization operations for job steps.
type Synchronizer interface {
	SyncTo(executionContext context.Context, repositoryURL string, workspacePath string, revision string) error
	Pull(executionContext context.Context, repositoryPath string) error
	Push(executionContext context.Context, options gitsync.PushOptions) error
	CommitAndPush(executionContext context.Context, options gitsync.CommitAndPushOptions) error
	UpdateSubmodules(executionContext context.Context, repositoryPath string, submodulePaths ...string) error
}

// VideoSynchronizer runs the video metadata sync workflow for job steps.
type VideoSynchronizer interface {
	Run(executionContext context.Context) error
}

// Dependencies carries the collaborators required by the job runner.
type Dependencies struct {
	Logger       *zap.Logger
	Synchronizer Synchronizer
	Videos       VideoSynchronizer
}

// Runner executes declarative job steps sequentially.
type Runner struct {
	logger       *zap.Logger
	synchronizer Synchronizer
	videos       VideoSynchronizer
}

// NewRunner validates dependencies and constructs a job runner.
func NewRunner(dependencies Dependencies) (*Runner, error) {
	if dependencies.Logger == nil {
		return nil, ErrRunnerLoggerNotConfigured
	}
	if dependencies.Synchronizer == nil {
		return nil, ErrRunnerSynchronizerNotConfigured
	}
	if dependencies.Videos == nil {
		return nil, ErrRunnerVideosNotConfigured
	}

	return &Runner{
		logger:       dependencies.Logger,
		synchronizer: dependencies.Synchronizer,
		videos:       dependencies.Videos,
	}, nil
}

type syncToStepOptions struct {
	RepositoryURL string `mapstructure:"repository_url"`
	WorkspacePath string `mapstructure:"workspace"`
	Revision      string `mapstructure:"revision"`
}

type repositoryStepOptions struct {
	RepositoryPath string `mapstructure:"repository"`
}

type commitStepOptions struct {
	RepositoryPath string `mapstructure:"repository"`
	Message        string `mapstructure:"message"`
	ForceCommit    bool   `mapstructure:"force_commit"`
}

type submoduleStepOptions struct {
	RepositoryPath string   `mapstructure:"repository"`
	Submodules     []string `mapstructure:"submodules"`
}

// Run executes every configured step in order and stops at the first failure.
func (runner *Runner) Run(executionContext context.Context, configuration Configuration) error {
	for stepIndex, stepConfiguration := range configuration.Steps {
		runner.logger.Info(
			logMessageStepStartingConstant,
			zap.Int(logFieldStepIndexConstant, stepIndex),
			zap.String(logFieldOperationConstant, string(stepConfiguration.Operation)),
		)

		stepError := runner.runStep(executionContext, stepConfiguration)
		if stepError != nil {
			return fmt.Errorf(stepExecutionErrorTemplateConstant, stepIndex, stepConfiguration.Operation, stepError)
		}
	}

	runner.logger.Info(logMessageJobCompletedConstant, zap.String(logFieldJobNameConstant, configuration.Name))
	return nil
}

func (runner *Runner) runStep(executionContext context.Context, stepConfiguration StepConfiguration) error {
	switch stepConfiguration.Operation {
	case OperationTypeSyncTo:
		var options syncToStepOptions
		if decodeError := decodeStepOptions(stepConfiguration.Options, &options); decodeError != nil {
			return decodeError
		}
		if len(strings.TrimSpace(options.RepositoryURL)) == 0 {
			return errors.New(stepRepositoryURLRequiredMessageConstant)
		}
		if len(strings.TrimSpace(options.WorkspacePath)) == 0 {
			return errors.New(stepWorkspaceRequiredMessageConstant)
		}
		if len(strings.TrimSpace(options.Revision)) == 0 {
			return errors.New(stepRevisionRequiredMessageConstant)
		}
		return runner.synchronizer.SyncTo(executionContext, options.RepositoryURL, options.WorkspacePath, options.Revision)
	case OperationTypePull:
		options, optionsError := decodeRepositoryOptions(stepConfiguration.Options)
		if optionsError != nil {
			return optionsError
		}
		return runner.synchronizer.Pull(executionContext, options.RepositoryPath)
	case OperationTypePush:
		options, optionsError := decodeRepositoryOptions(stepConfiguration.Options)
		if optionsError != nil {
			return optionsError
		}
		return runner.synchronizer.Push(executionContext, gitsync.PushOptions{RepositoryPath: options.RepositoryPath})
	case OperationTypeCommitAndPush:
		var options commitStepOptions
		if decodeError := decodeStepOptions(stepConfiguration.Options, &options); decodeError != nil {
			return decodeError
		}
		if len(strings.TrimSpace(options.RepositoryPath)) == 0 {
			return errors.New(stepRepositoryRequiredMessageConstant)
		}
		commitMessage := options.Message
		if len(strings.TrimSpace(commitMessage)) == 0 {
			commitMessage = defaultCommitMessageConstant
		}
		commitOptions := gitsync.CommitAndPushOptions{
			RepositoryPath: options.RepositoryPath,
			CommitMessage:  commitMessage,
		}
		if options.ForceCommit {
			commitOptions.EnvironmentVariables = map[string]string{forceCommitVariableNameConstant: forceCommitVariableValueConstant}
		}
		return runner.synchronizer.CommitAndPush(executionContext, commitOptions)
	case OperationTypeUpdateSubmodules:
		var options submoduleStepOptions
		if decodeError := decodeStepOptions(stepConfiguration.Options, &options); decodeError != nil {
			return decodeError
		}
		if len(strings.TrimSpace(options.RepositoryPath)) == 0 {
			return errors.New(stepRepositoryRequiredMessageConstant)
		}
		if len(options.Submodules) == 0 {
			return errors.New(stepSubmodulesRequiredMessageConstant)
		}
		return runner.synchronizer.UpdateSubmodules(executionContext, options.RepositoryPath, options.Submodules...)
	case OperationTypeVideosSync:
		return runner.videos.Run(executionContext)
	default:
		return fmt.Errorf(configurationUnknownOperationTemplate, 0, stepConfiguration.Operation)
	}
}

func decodeRepositoryOptions(rawOptions map[string]any) (repositoryStepOptions, error) {
	var options repositoryStepOptions
	if decodeError := decodeStepOptions(rawOptions, &options); decodeError != nil {
		return repositoryStepOptions{}, decodeError
	}
	if len(strings.TrimSpace(options.RepositoryPath)) == 0 {
		return repositoryStepOptions{}, errors.New(stepRepositoryRequiredMessageConstant)
	}
	return options, nil
}

func decodeStepOptions(rawOptions map[string]any, target any) error {
	if rawOptions == nil {
		return nil
	}
	return mapstructure.Decode(rawOptions, target)
}
