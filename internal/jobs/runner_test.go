package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/jobs"
)

type recordingToolkit struct {
	calls          []string
	commitOptions  []gitsync.CommitAndPushOptions
	failingCall    string
	failingError   error
	videoRunCount  int
	videoRunError  error
	submoduleLists [][]string
}

func (toolkit *recordingToolkit) record(call string) error {
	toolkit.calls = append(toolkit.calls, call)
	if toolkit.failingCall == call {
		return toolkit.failingError
	}
	return nil
}

func (toolkit *recordingToolkit) SyncTo(_ context.Context, repositoryURL string, workspacePath string, revision string) error {
	return toolkit.record(fmt.Sprintf("sync-to %s %s %s", repositoryURL, workspacePath, revision))
}

func (toolkit *recordingToolkit) Pull(_ context.Context, repositoryPath string) error {
	return toolkit.record("pull " + repositoryPath)
}

func (toolkit *recordingToolkit) Push(_ context.Context, options gitsync.PushOptions) error {
	return toolkit.record("push " + options.RepositoryPath)
}

func (toolkit *recordingToolkit) CommitAndPush(_ context.Context, options gitsync.CommitAndPushOptions) error {
	toolkit.commitOptions = append(toolkit.commitOptions, options)
	return toolkit.record("commit-and-push " + options.RepositoryPath)
}

func (toolkit *recordingToolkit) UpdateSubmodules(_ context.Context, repositoryPath string, submodulePaths ...string) error {
	toolkit.submoduleLists = append(toolkit.submoduleLists, submodulePaths)
	return toolkit.record("update-submodules " + repositoryPath)
}

func (toolkit *recordingToolkit) Run(_ context.Context) error {
	toolkit.videoRunCount++
	toolkit.calls = append(toolkit.calls, "videos-sync")
	return toolkit.videoRunError
}

func newRunnerFixture(testInstance *testing.T) (*jobs.Runner, *recordingToolkit) {
	testInstance.Helper()

	toolkit := &recordingToolkit{}
	runner, runnerError := jobs.NewRunner(jobs.Dependencies{
		Logger:       zap.NewNop(),
		Synchronizer: toolkit,
		Videos:       toolkit,
	})
	require.NoError(testInstance, runnerError)
	return runner, toolkit
}

func TestNewRunnerValidatesDependencies(testInstance *testing.T) {
	toolkit := &recordingToolkit{}

	testCases := []struct {
		name          string
		dependencies  jobs.Dependencies
		expectedError error
	}{
		{
			name:          "missing_logger",
			dependencies:  jobs.Dependencies{Synchronizer: toolkit, Videos: toolkit},
			expectedError: jobs.ErrRunnerLoggerNotConfigured,
		},
		{
			name:          "missing_synchronizer",
			dependencies:  jobs.Dependencies{Logger: zap.NewNop(), Videos: toolkit},
			expectedError: jobs.ErrRunnerSynchronizerNotConfigured,
		},
		{
			name:          "missing_videos",
			dependencies:  jobs.Dependencies{Logger: zap.NewNop(), Synchronizer: toolkit},
			expectedError: jobs.ErrRunnerVideosNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			_, runnerError := jobs.NewRunner(testCase.dependencies)
			require.ErrorIs(subtestInstance, runnerError, testCase.expectedError)
		})
	}
}

func TestRunExecutesStepsInOrder(testInstance *testing.T) {
	runner, toolkit := newRunnerFixture(testInstance)

	configuration := jobs.Configuration{
		Name: "nightly-refresh",
		Steps: []jobs.StepConfiguration{
			{
				Operation: jobs.OperationTypeSyncTo,
				Options: map[string]any{
					"repository_url": "git@github.com:example/webapp",
					"workspace":      "/jobs/webapp",
					"revision":       "master",
				},
			},
			{
				Operation: jobs.OperationTypePull,
				Options:   map[string]any{"repository": "/jobs/webapp/intl/translations"},
			},
			{
				Operation: jobs.OperationTypeUpdateSubmodules,
				Options: map[string]any{
					"repository": "/jobs/webapp",
					"submodules": []string{"intl/translations", "khan-exercises"},
				},
			},
			{Operation: jobs.OperationTypeVideosSync},
			{
				Operation: jobs.OperationTypePush,
				Options:   map[string]any{"repository": "/jobs/webapp"},
			},
		},
	}

	require.NoError(testInstance, runner.Run(context.Background(), configuration))
	require.Equal(testInstance, []string{
		"sync-to git@github.com:example/webapp /jobs/webapp master",
		"pull /jobs/webapp/intl/translations",
		"update-submodules /jobs/webapp",
		"videos-sync",
		"push /jobs/webapp",
	}, toolkit.calls)
	require.Equal(testInstance, [][]string{{"intl/translations", "khan-exercises"}}, toolkit.submoduleLists)
	require.Equal(testInstance, 1, toolkit.videoRunCount)
}

func TestRunStopsAtTheFirstFailure(testInstance *testing.T) {
	runner, toolkit := newRunnerFixture(testInstance)
	toolkit.failingCall = "pull /jobs/webapp"
	toolkit.failingError = errors.New("remote unreachable")

	configuration := jobs.Configuration{
		Steps: []jobs.StepConfiguration{
			{Operation: jobs.OperationTypePull, Options: map[string]any{"repository": "/jobs/webapp"}},
			{Operation: jobs.OperationTypeVideosSync},
		},
	}

	runError := runner.Run(context.Background(), configuration)
	require.Error(testInstance, runError)
	require.Contains(testInstance, runError.Error(), "step 0 (pull) failed")
	require.Contains(testInstance, runError.Error(), "remote unreachable")
	require.Zero(testInstance, toolkit.videoRunCount)
}

func TestRunAppliesCommitDefaults(testInstance *testing.T) {
	runner, toolkit := newRunnerFixture(testInstance)

	configuration := jobs.Configuration{
		Steps: []jobs.StepConfiguration{
			{
				Operation: jobs.OperationTypeCommitAndPush,
				Options:   map[string]any{"repository": "/jobs/webapp"},
			},
			{
				Operation: jobs.OperationTypeCommitAndPush,
				Options: map[string]any{
					"repository":   "/jobs/webapp",
					"message":      "Automated update of video list files",
					"force_commit": true,
				},
			},
		},
	}

	require.NoError(testInstance, runner.Run(context.Background(), configuration))
	require.Len(testInstance, toolkit.commitOptions, 2)
	require.Equal(testInstance, "Automated commit", toolkit.commitOptions[0].CommitMessage)
	require.Empty(testInstance, toolkit.commitOptions[0].EnvironmentVariables)
	require.Equal(testInstance, "Automated update of video list files", toolkit.commitOptions[1].CommitMessage)
	require.Equal(testInstance, "1", toolkit.commitOptions[1].EnvironmentVariables["FORCE_COMMIT"])
}

func TestRunValidatesStepOptions(testInstance *testing.T) {
	testCases := []struct {
		name          string
		step          jobs.StepConfiguration
		expectedError string
	}{
		{
			name:          "sync_to_missing_revision",
			step:          jobs.StepConfiguration{Operation: jobs.OperationTypeSyncTo, Options: map[string]any{"repository_url": "url", "workspace": "/w"}},
			expectedError: "requires a revision",
		},
		{
			name:          "pull_missing_repository",
			step:          jobs.StepConfiguration{Operation: jobs.OperationTypePull},
			expectedError: "requires a repository path",
		},
		{
			name:          "submodules_missing_paths",
			step:          jobs.StepConfiguration{Operation: jobs.OperationTypeUpdateSubmodules, Options: map[string]any{"repository": "/jobs/webapp"}},
			expectedError: "at least one submodule",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			runner, toolkit := newRunnerFixture(subtestInstance)

			runError := runner.Run(context.Background(), jobs.Configuration{Steps: []jobs.StepConfiguration{testCase.step}})
			require.Error(subtestInstance, runError)
			require.Contains(subtestInstance, runError.Error(), testCase.expectedError)
			require.Empty(subtestInstance, toolkit.commitOptions)
		})
	}
}
