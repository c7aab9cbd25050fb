package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/alert"
	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

const (
	stageAcquireLockConstant       = "acquire-lock"
	stageMergeFromMasterConstant   = "merge-from-master"
	stageSetDefaultConstant        = "set-default"
	stageManualTestConstant        = "manual-test"
	stageFinishWithSuccessConstant = "finish-with-success"
	stageFinishWithFailureConstant = "finish-with-failure"
	stageFinishWithRollbackConst   = "finish-with-rollback"
	stageFinishWithUnlockConstant  = "finish-with-unlock"
	stageRelockConstant            = "relock"

	loggerMissingMessageConstant     = "logger not configured"
	executorMissingMessageConstant   = "git executor not configured"
	alerterMissingMessageConstant    = "alerter not configured"
	toolRunnerMissingMessageConstant = "deploy tool runner not configured"

	stageNotPermittedMessageConstant = "stage is not a permitted next step"
	tokenMismatchMessageConstant     = "deploy token does not match the lock"
	lockNotHeldMessageConstant       = "deploy lock is not held; running without the lock"
	deployFromMasterMessageConstant  = "refusing to deploy from the master branch"
	mergeConflictMessageConstant     = "merge from master conflicted and was aborted"
	pushRaceLostMessageConstant      = "remote moved during the deploy push; local state was reset"

	stageErrorTemplateConstant = "deploy stage %s failed: %w"

	deployTagTemplateConstant    = "gae-%s"
	badDeployTagTemplateConstant = "gae-%s-bad"

	waitingAlertTemplateConstant      = "%s is waiting for the deploy lock (next in line, waited %s)"
	stillWaitingAlertTemplateConstant = "%s is still waiting for the deploy lock (waited %s)"
	lockTimeoutAlertTemplateConstant  = "%s gave up waiting for the deploy lock after %s; run %s or %s if the current deploy is stuck"
	lockAcquiredAlertTemplateConstant = "%s acquired the deploy lock for version <b>%s</b> (revision %s)"
	setDefaultAlertTemplateConstant   = "version <b>%s</b> is now serving live traffic; monitor it before manual testing"
	setDefaultFailedAlertTemplate     = "promoting version %s to the traffic default failed"
	manualTestAlertTemplateConstant   = "version <b>%s</b> is deployed and ready for manual testing; finish with %s, %s, or %s"
	successAlertTemplateConstant      = "deploy of version <b>%s</b> succeeded; master now includes %s"
	failureAlertTemplateConstant      = "deploy of version %s was marked failed; the lock was released"
	rollbackAlertTemplateConstant     = "deploy of version %s was rolled back; the revision is tagged %s"
	unlockAlertTemplateConstant       = "the deploy lock was released manually"
	relockAlertTemplateConstant       = "the previous deploy lock was restored"
	notPermittedAlertTemplate         = "ignoring %s: permitted next steps are %s"
	tokenMismatchAlertTemplate        = "ignoring %s: the supplied deploy token does not match the current deploy"
	withoutLockAlertTemplate          = "ignoring %s: no deploy lock is held"

	defaultAcquireTimeoutSecondsConst = 3600
	defaultAlertIntervalSecondsConst  = 600
	defaultPollIntervalSecondsConst   = 10
	defaultMasterBranchConstant       = "master"
	defaultRemoteNameConstant         = "origin"
	defaultSetDefaultCommandConstant  = "set-default"

	gitFetchSubcommandConstant       = "fetch"
	gitFetchPruneFlagConstant        = "--prune"
	gitTagsFlagConstant              = "--tags"
	gitMergeBaseSubcommandConstant   = "merge-base"
	gitMergeBaseAncestorFlagConstant = "--is-ancestor"
	gitMergeSubcommandConstant       = "merge"
	gitMergeAbortFlagConstant        = "--abort"
	gitPushSubcommandConstant        = "push"
	gitResetSubcommandConstant       = "reset"
	gitResetHardFlagConstant         = "--hard"
	gitCheckoutSubcommandConstant    = "checkout"
	gitTagSubcommandConstant         = "tag"
	gitHeadReferenceConstant         = "HEAD"
	gitPreviousCommitReferenceConst  = "HEAD^"
	gitPathspecSeparatorConstant     = "--"
)

// ErrStageNotPermitted indicates the stage is not among the recorded next steps.
var ErrStageNotPermitted = errors.New(stageNotPermittedMessageConstant)

// ErrTokenMismatch indicates the supplied deploy token does not match the lock.
var ErrTokenMismatch = errors.New(tokenMismatchMessageConstant)

// ErrLockNotHeld indicates a stage ran without a held deploy lock.
var ErrLockNotHeld = errors.New(lockNotHeldMessageConstant)

// ErrDeployFromMaster indicates a deploy was attempted directly from master.
var ErrDeployFromMaster = errors.New(deployFromMasterMessageConstant)

// ErrMergeConflict indicates the merge from master conflicted.
var ErrMergeConflict = errors.New(mergeConflictMessageConstant)

// ErrPushRaceLost indicates the remote moved while the deploy pushed.
var ErrPushRaceLost = errors.New(pushRaceLostMessageConstant)

// Alerter forwards pipeline notifications to the chat room.
type Alerter interface {
	Send(executionContext context.Context, severity alert.Severity, message string) error
}

// ToolRunner executes the external deploy tool that promotes a version to the
// live traffic default.
type ToolRunner interface {
	ExecuteTool(executionContext context.Context, toolName execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Configuration captures the deploy pipeline settings.
type Configuration struct {
	LockDirectory         string `mapstructure:"lock_directory"`
	RepositoryPath        string `mapstructure:"repository_path"`
	AcquireTimeoutSeconds int    `mapstructure:"acquire_timeout_seconds"`
	AlertIntervalSeconds  int    `mapstructure:"alert_interval_seconds"`
	PollIntervalSeconds   int    `mapstructure:"poll_interval_seconds"`
	MasterBranch          string `mapstructure:"master_branch"`
	RemoteName            string `mapstructure:"remote_name"`
	SetDefaultCommand     string `mapstructure:"set_default_command"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".acquire_timeout_seconds": defaultAcquireTimeoutSecondsConst,
		configurationPrefix + ".alert_interval_seconds":  defaultAlertIntervalSecondsConst,
		configurationPrefix + ".poll_interval_seconds":   defaultPollIntervalSecondsConst,
		configurationPrefix + ".master_branch":           defaultMasterBranchConstant,
		configurationPrefix + ".remote_name":             defaultRemoteNameConstant,
		configurationPrefix + ".set_default_command":     defaultSetDefaultCommandConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if resolvedConfiguration.AcquireTimeoutSeconds <= 0 {
		resolvedConfiguration.AcquireTimeoutSeconds = defaultAcquireTimeoutSecondsConst
	}
	if resolvedConfiguration.AlertIntervalSeconds <= 0 {
		resolvedConfiguration.AlertIntervalSeconds = defaultAlertIntervalSecondsConst
	}
	if resolvedConfiguration.PollIntervalSeconds <= 0 {
		resolvedConfiguration.PollIntervalSeconds = defaultPollIntervalSecondsConst
	}
	if len(strings.TrimSpace(resolvedConfiguration.MasterBranch)) == 0 {
		resolvedConfiguration.MasterBranch = defaultMasterBranchConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.RemoteName)) == 0 {
		resolvedConfiguration.RemoteName = defaultRemoteNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.SetDefaultCommand)) == 0 {
		resolvedConfiguration.SetDefaultCommand = defaultSetDefaultCommandConstant
	}
	return resolvedConfiguration
}

// AcquireTimeout returns the bounded wait for the deploy lock.
func (configuration Configuration) AcquireTimeout() time.Duration {
	return time.Duration(configuration.AcquireTimeoutSeconds) * time.Second
}

// AlertInterval returns how often waiting deploys re-alert the chat room.
func (configuration Configuration) AlertInterval() time.Duration {
	return time.Duration(configuration.AlertIntervalSeconds) * time.Second
}

// PollInterval returns the lock acquisition retry interval.
func (configuration Configuration) PollInterval() time.Duration {
	return time.Duration(configuration.PollIntervalSeconds) * time.Second
}

// Dependencies enumerates the collaborators required by the pipeline service.
type Dependencies struct {
	Logger     *zap.Logger
	Executor   gitsync.GitExecutor
	Alerter    Alerter
	ToolRunner ToolRunner
}

// AcquireOptions configures the acquire-lock stage.
type AcquireOptions struct {
	GitRevision   string
	DeployerEmail string
}

// Service sequences the multi-stage deploy shared across build jobs.
type Service struct {
	logger        *zap.Logger
	executor      gitsync.GitExecutor
	alerter       Alerter
	toolRunner    ToolRunner
	inspector     *gitsync.RepositoryInspector
	lock          *DirectoryLock
	configuration Configuration
	timeNow       func() time.Time
}

// NewService constructs a pipeline Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, errors.New(loggerMissingMessageConstant)
	}
	if dependencies.Executor == nil {
		return nil, errors.New(executorMissingMessageConstant)
	}
	if dependencies.Alerter == nil {
		return nil, errors.New(alerterMissingMessageConstant)
	}
	if dependencies.ToolRunner == nil {
		return nil, errors.New(toolRunnerMissingMessageConstant)
	}

	repositoryInspector, inspectorError := gitsync.NewRepositoryInspector(dependencies.Executor)
	if inspectorError != nil {
		return nil, inspectorError
	}

	resolvedConfiguration := configuration.WithDefaults()
	return &Service{
		logger:        dependencies.Logger,
		executor:      dependencies.Executor,
		alerter:       dependencies.Alerter,
		toolRunner:    dependencies.ToolRunner,
		inspector:     repositoryInspector,
		lock:          NewDirectoryLock(resolvedConfiguration.LockDirectory, resolvedConfiguration.PollInterval()),
		configuration: resolvedConfiguration,
		timeNow:       time.Now,
	}, nil
}

// AcquireLock takes the deploy lock, busy-waiting with queue alerts, and
// records the initial deploy state. A timed-out wait alerts with the manual
// recovery stages and fails without writing any state.
func (service *Service) AcquireLock(executionContext context.Context, options AcquireOptions) (Properties, error) {
	alertedOnce := false
	lastAlertAt := time.Duration(0)
	waitObserver := func(waited time.Duration) {
		if !alertedOnce {
			alertedOnce = true
			lastAlertAt = waited
			service.alerter.Send(executionContext, alert.SeverityInfo,
				fmt.Sprintf(waitingAlertTemplateConstant, usernameFromEmail(options.DeployerEmail), waited.Round(time.Second)))
			return
		}
		if waited-lastAlertAt >= service.configuration.AlertInterval() {
			lastAlertAt = waited
			service.alerter.Send(executionContext, alert.SeverityInfo,
				fmt.Sprintf(stillWaitingAlertTemplateConstant, usernameFromEmail(options.DeployerEmail), waited.Round(time.Second)))
		}
	}

	if acquireError := service.lock.Acquire(executionContext, service.configuration.AcquireTimeout(), waitObserver); acquireError != nil {
		if errors.Is(acquireError, ErrLockTimedOut) {
			service.alerter.Send(executionContext, alert.SeverityError,
				fmt.Sprintf(lockTimeoutAlertTemplateConstant,
					usernameFromEmail(options.DeployerEmail),
					service.configuration.AcquireTimeout(),
					stageFinishWithUnlockConstant,
					stageRelockConstant))
		}
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageAcquireLockConstant, acquireError)
	}

	resolvedRevision, revisionError := service.inspector.RevisionOf(executionContext, service.configuration.RepositoryPath, options.GitRevision)
	if revisionError != nil {
		service.lock.Release(false)
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageAcquireLockConstant, revisionError)
	}

	deployProperties := NewProperties(resolvedRevision, options.DeployerEmail, service.timeNow())
	deployProperties.PossibleNextSteps = []string{stageMergeFromMasterConstant}
	if writeError := deployProperties.Write(service.lock.DirectoryPath()); writeError != nil {
		service.lock.Release(false)
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageAcquireLockConstant, writeError)
	}

	service.alerter.Send(executionContext, alert.SeverityInfo,
		fmt.Sprintf(lockAcquiredAlertTemplateConstant, deployProperties.DeployerUsername, deployProperties.VersionName, shortRevision(resolvedRevision)))
	return deployProperties, nil
}

// MergeFromMaster brings the deploy revision up to date with master before
// anything is deployed. Deploying master itself is refused; a merge conflict
// aborts the merge and fails the stage.
func (service *Service) MergeFromMaster(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageMergeFromMasterConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	currentBranch, branchError := service.inspector.CurrentBranch(executionContext, service.configuration.RepositoryPath)
	if branchError == nil && currentBranch == service.configuration.MasterBranch {
		service.recordOutcome(deployProperties, ErrDeployFromMaster, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageMergeFromMasterConstant, ErrDeployFromMaster)
	}

	if _, fetchError := service.executeGit(executionContext, []string{gitFetchSubcommandConstant, gitFetchPruneFlagConstant, gitTagsFlagConstant, service.configuration.RemoteName}); fetchError != nil {
		service.recordOutcome(deployProperties, fetchError, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageMergeFromMasterConstant, fetchError)
	}

	masterReference := service.configuration.RemoteName + "/" + service.configuration.MasterBranch

	// Fast path: the deploy revision already contains everything on master.
	if _, ancestorError := service.executeGit(executionContext, []string{gitMergeBaseSubcommandConstant, gitMergeBaseAncestorFlagConstant, masterReference, gitHeadReferenceConstant}); ancestorError == nil {
		service.recordOutcome(deployProperties, nil, []string{stageSetDefaultConstant})
		return nil
	}

	if _, mergeError := service.executeGit(executionContext, []string{gitMergeSubcommandConstant, masterReference}); mergeError != nil {
		service.executeGit(executionContext, []string{gitMergeSubcommandConstant, gitMergeAbortFlagConstant})
		service.recordOutcome(deployProperties, ErrMergeConflict, nil)
		service.alerter.Send(executionContext, alert.SeverityError, mergeConflictMessageConstant)
		return fmt.Errorf(stageErrorTemplateConstant, stageMergeFromMasterConstant, ErrMergeConflict)
	}

	if _, pushError := service.executeGit(executionContext, []string{gitPushSubcommandConstant, service.configuration.RemoteName, gitHeadReferenceConstant}); pushError != nil {
		service.executeGit(executionContext, []string{gitResetSubcommandConstant, gitResetHardFlagConstant, gitPreviousCommitReferenceConst})
		service.recordOutcome(deployProperties, ErrPushRaceLost, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageMergeFromMasterConstant, ErrPushRaceLost)
	}

	service.recordOutcome(deployProperties, nil, []string{stageSetDefaultConstant})
	return nil
}

// SetDefault promotes the deployed version to the live traffic default by
// running the configured deploy tool, then hands off to manual testing. The
// tool owns the App Engine interaction; this stage gates it, records the
// outcome, and alerts the room either way.
func (service *Service) SetDefault(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageSetDefaultConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	_, toolError := service.toolRunner.ExecuteTool(executionContext, execshell.CommandName(service.configuration.SetDefaultCommand), execshell.CommandDetails{
		Arguments:        []string{deployProperties.VersionName},
		WorkingDirectory: service.configuration.RepositoryPath,
	})
	if toolError != nil {
		service.recordOutcome(deployProperties, toolError, nil)
		service.alerter.Send(executionContext, alert.SeverityError,
			fmt.Sprintf(setDefaultFailedAlertTemplate, deployProperties.VersionName))
		return fmt.Errorf(stageErrorTemplateConstant, stageSetDefaultConstant, toolError)
	}

	service.alerter.Send(executionContext, alert.SeverityInfo,
		fmt.Sprintf(setDefaultAlertTemplateConstant, deployProperties.VersionName))
	service.recordOutcome(deployProperties, nil, []string{stageManualTestConstant})
	return nil
}

// ManualTest alerts the deployer with testing instructions and the finishing stages.
func (service *Service) ManualTest(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageManualTestConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	service.alerter.Send(executionContext, alert.SeverityInfo,
		fmt.Sprintf(manualTestAlertTemplateConstant,
			deployProperties.VersionName,
			stageFinishWithSuccessConstant,
			stageFinishWithFailureConstant,
			stageFinishWithRollbackConst))

	service.recordOutcome(deployProperties, nil, []string{
		stageManualTestConstant,
		stageFinishWithSuccessConstant,
		stageFinishWithFailureConstant,
		stageFinishWithRollbackConst,
	})
	return nil
}

// FinishWithSuccess merges the deployed revision into master, tags the
// deploy, pushes, and releases the lock without keeping a backup.
func (service *Service) FinishWithSuccess(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageFinishWithSuccessConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	masterBranch := service.configuration.MasterBranch
	masterReference := service.configuration.RemoteName + "/" + masterBranch

	mergeSteps := [][]string{
		{gitFetchSubcommandConstant, gitFetchPruneFlagConstant, gitTagsFlagConstant, service.configuration.RemoteName},
		{gitCheckoutSubcommandConstant, masterBranch, gitPathspecSeparatorConstant},
		{gitResetSubcommandConstant, gitResetHardFlagConstant, masterReference},
	}
	for _, mergeStep := range mergeSteps {
		if _, stepError := service.executeGit(executionContext, mergeStep); stepError != nil {
			service.recordOutcome(deployProperties, stepError, nil)
			return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, stepError)
		}
	}

	if _, mergeError := service.executeGit(executionContext, []string{gitMergeSubcommandConstant, deployProperties.GitRevision}); mergeError != nil {
		service.executeGit(executionContext, []string{gitMergeSubcommandConstant, gitMergeAbortFlagConstant})
		service.recordOutcome(deployProperties, ErrMergeConflict, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, ErrMergeConflict)
	}

	deployTag := fmt.Sprintf(deployTagTemplateConstant, deployProperties.VersionName)
	if _, tagError := service.executeGit(executionContext, []string{gitTagSubcommandConstant, deployTag, deployProperties.GitRevision}); tagError != nil {
		service.recordOutcome(deployProperties, tagError, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, tagError)
	}

	if _, pushError := service.executeGit(executionContext, []string{gitPushSubcommandConstant, service.configuration.RemoteName, masterBranch}); pushError != nil {
		service.executeGit(executionContext, []string{gitResetSubcommandConstant, gitResetHardFlagConstant, masterReference})
		service.recordOutcome(deployProperties, ErrPushRaceLost, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, ErrPushRaceLost)
	}
	if _, pushTagsError := service.executeGit(executionContext, []string{gitPushSubcommandConstant, service.configuration.RemoteName, gitTagsFlagConstant}); pushTagsError != nil {
		service.recordOutcome(deployProperties, pushTagsError, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, pushTagsError)
	}

	if releaseError := service.lock.Release(false); releaseError != nil {
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithSuccessConstant, releaseError)
	}

	service.alerter.Send(executionContext, alert.SeverityInfo,
		fmt.Sprintf(successAlertTemplateConstant, deployProperties.VersionName, shortRevision(deployProperties.GitRevision)))
	return nil
}

// FinishWithFailure releases the lock (keeping the backup) and alerts.
func (service *Service) FinishWithFailure(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageFinishWithFailureConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	if releaseError := service.lock.Release(true); releaseError != nil {
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithFailureConstant, releaseError)
	}
	service.alerter.Send(executionContext, alert.SeverityWarning,
		fmt.Sprintf(failureAlertTemplateConstant, deployProperties.VersionName))
	return nil
}

// FinishWithRollback tags the deploy as bad, releases the lock (keeping the
// backup), and alerts.
func (service *Service) FinishWithRollback(executionContext context.Context, suppliedToken string) error {
	deployProperties, gateError := service.verifyStage(executionContext, stageFinishWithRollbackConst, suppliedToken)
	if gateError != nil {
		return gateError
	}

	badDeployTag := fmt.Sprintf(badDeployTagTemplateConstant, deployProperties.VersionName)
	if _, tagError := service.executeGit(executionContext, []string{gitTagSubcommandConstant, badDeployTag, deployProperties.GitRevision}); tagError != nil {
		service.recordOutcome(deployProperties, tagError, nil)
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithRollbackConst, tagError)
	}
	service.executeGit(executionContext, []string{gitPushSubcommandConstant, service.configuration.RemoteName, gitTagsFlagConstant})

	if releaseError := service.lock.Release(true); releaseError != nil {
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithRollbackConst, releaseError)
	}
	service.alerter.Send(executionContext, alert.SeverityWarning,
		fmt.Sprintf(rollbackAlertTemplateConstant, deployProperties.VersionName, badDeployTag))
	return nil
}

// FinishWithUnlock releases the lock unconditionally, keeping the backup so
// the deploy can be restored with relock.
func (service *Service) FinishWithUnlock(executionContext context.Context, suppliedToken string) error {
	_, gateError := service.verifyStage(executionContext, stageFinishWithUnlockConstant, suppliedToken)
	if gateError != nil {
		return gateError
	}

	if releaseError := service.lock.Release(true); releaseError != nil {
		return fmt.Errorf(stageErrorTemplateConstant, stageFinishWithUnlockConstant, releaseError)
	}
	service.alerter.Send(executionContext, alert.SeverityInfo, unlockAlertTemplateConstant)
	return nil
}

// Relock restores a mistakenly released deploy lock from its backup.
func (service *Service) Relock(executionContext context.Context) error {
	if relockError := service.lock.Relock(); relockError != nil {
		return fmt.Errorf(stageErrorTemplateConstant, stageRelockConstant, relockError)
	}
	service.alerter.Send(executionContext, alert.SeverityInfo, relockAlertTemplateConstant)
	return nil
}

func (service *Service) verifyStage(executionContext context.Context, stageName string, suppliedToken string) (Properties, error) {
	if !PropertiesFileExists(service.lock.DirectoryPath()) {
		service.alerter.Send(executionContext, alert.SeverityError, fmt.Sprintf(withoutLockAlertTemplate, stageName))
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageName, ErrLockNotHeld)
	}

	deployProperties, readError := ReadProperties(service.lock.DirectoryPath())
	if readError != nil {
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageName, readError)
	}

	if !deployProperties.PermitsStep(stageName) {
		service.alerter.Send(executionContext, alert.SeverityWarning,
			fmt.Sprintf(notPermittedAlertTemplate, stageName, strings.Join(deployProperties.PossibleNextSteps, ", ")))
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageName, ErrStageNotPermitted)
	}

	if len(suppliedToken) > 0 && suppliedToken != deployProperties.Token {
		service.alerter.Send(executionContext, alert.SeverityWarning, fmt.Sprintf(tokenMismatchAlertTemplate, stageName))
		return Properties{}, fmt.Errorf(stageErrorTemplateConstant, stageName, ErrTokenMismatch)
	}

	return deployProperties, nil
}

func (service *Service) recordOutcome(deployProperties Properties, stageFailure error, nextSteps []string) {
	if stageFailure != nil {
		deployProperties.LastError = stageFailure.Error()
	} else {
		deployProperties.LastError = ""
	}
	if nextSteps != nil {
		deployProperties.PossibleNextSteps = nextSteps
	}
	if writeError := deployProperties.Write(service.lock.DirectoryPath()); writeError != nil {
		service.logger.Error("unable to record deploy state", zap.Error(writeError))
	}
}

func (service *Service) executeGit(executionContext context.Context, arguments []string) (execshell.ExecutionResult, error) {
	return service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: service.configuration.RepositoryPath,
	})
}

func shortRevision(gitRevision string) string {
	if len(gitRevision) > versionRevisionPrefixLength {
		return gitRevision[:versionRevisionPrefixLength]
	}
	return gitRevision
}
