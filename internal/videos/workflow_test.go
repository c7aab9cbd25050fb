package videos_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
	"github.com/linkedinyou/jenkins-tools/internal/videos"
)

const testRepositoryPathConstant = "/srv/jobs/webapp"

type workflowCollaborators struct {
	provisionCalls    int
	installedManifest string
	decryptCalls      int
	pulledPaths       []string
	commitOptions     []gitsync.CommitAndPushOptions
	toolInvocations   []execshell.ShellCommand

	provisionError error
	decryptError   error
	pullError      error
	fetchError     error
}

func (collaborators *workflowCollaborators) Provision(_ context.Context, _ venv.ProvisionOptions) (venv.Activation, error) {
	collaborators.provisionCalls++
	if collaborators.provisionError != nil {
		return venv.Activation{}, collaborators.provisionError
	}
	return venv.Activation{EnvironmentPath: "/srv/env/env"}, nil
}

func (collaborators *workflowCollaborators) InstallRequirements(_ context.Context, _ venv.Activation, requirementsFilePath string) error {
	collaborators.installedManifest = requirementsFilePath
	return nil
}

func (collaborators *workflowCollaborators) Decrypt() (secrets.Result, error) {
	collaborators.decryptCalls++
	if collaborators.decryptError != nil {
		return secrets.Result{}, collaborators.decryptError
	}
	return secrets.Result{SearchPathVariable: "PYTHONPATH", SearchPathValue: "/srv/secrets"}, nil
}

func (collaborators *workflowCollaborators) Pull(_ context.Context, repositoryPath string) error {
	collaborators.pulledPaths = append(collaborators.pulledPaths, repositoryPath)
	return collaborators.pullError
}

func (collaborators *workflowCollaborators) CommitAndPush(_ context.Context, options gitsync.CommitAndPushOptions) error {
	collaborators.commitOptions = append(collaborators.commitOptions, options)
	return nil
}

func (collaborators *workflowCollaborators) ExecuteTool(_ context.Context, toolName execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	collaborators.toolInvocations = append(collaborators.toolInvocations, execshell.ShellCommand{Name: toolName, Details: details})
	if collaborators.fetchError != nil {
		return execshell.ExecutionResult{ExitCode: 1}, collaborators.fetchError
	}
	return execshell.ExecutionResult{}, nil
}

func newVideosWorkflow(testInstance *testing.T, collaborators *workflowCollaborators, configuration videos.Configuration) *videos.Workflow {
	testInstance.Helper()

	workflow, creationError := videos.NewWorkflow(videos.Dependencies{
		Logger:       zap.NewNop(),
		Provisioner:  collaborators,
		Secrets:      collaborators,
		Synchronizer: collaborators,
		Executor:     collaborators,
	}, configuration)
	require.NoError(testInstance, creationError)

	return workflow
}

func TestNewWorkflowValidatesDependencies(testInstance *testing.T) {
	collaborators := &workflowCollaborators{}
	testCases := []struct {
		name          string
		dependencies  videos.Dependencies
		expectedError error
	}{
		{
			name:          "missing_logger",
			dependencies:  videos.Dependencies{Provisioner: collaborators, Secrets: collaborators, Synchronizer: collaborators, Executor: collaborators},
			expectedError: videos.ErrLoggerNotConfigured,
		},
		{
			name:          "missing_provisioner",
			dependencies:  videos.Dependencies{Logger: zap.NewNop(), Secrets: collaborators, Synchronizer: collaborators, Executor: collaborators},
			expectedError: videos.ErrProvisionerNotConfigured,
		},
		{
			name:          "missing_secrets",
			dependencies:  videos.Dependencies{Logger: zap.NewNop(), Provisioner: collaborators, Synchronizer: collaborators, Executor: collaborators},
			expectedError: videos.ErrSecretsNotConfigured,
		},
		{
			name:          "missing_synchronizer",
			dependencies:  videos.Dependencies{Logger: zap.NewNop(), Provisioner: collaborators, Secrets: collaborators, Executor: collaborators},
			expectedError: videos.ErrSynchronizerNotConfigured,
		},
		{
			name:          "missing_executor",
			dependencies:  videos.Dependencies{Logger: zap.NewNop(), Provisioner: collaborators, Secrets: collaborators, Synchronizer: collaborators},
			expectedError: videos.ErrExecutorNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			_, creationError := videos.NewWorkflow(testCase.dependencies, videos.Configuration{})
			require.ErrorIs(subtestInstance, creationError, testCase.expectedError)
		})
	}
}

func TestRunRequiresRepositoryPath(testInstance *testing.T) {
	workflow := newVideosWorkflow(testInstance, &workflowCollaborators{}, videos.Configuration{})
	require.ErrorIs(testInstance, workflow.Run(context.Background()), videos.ErrRepositoryNotConfigured)
}

func TestRunSequencesTheSync(testInstance *testing.T) {
	collaborators := &workflowCollaborators{}
	workflow := newVideosWorkflow(testInstance, collaborators, videos.Configuration{RepositoryPath: testRepositoryPathConstant})

	require.NoError(testInstance, workflow.Run(context.Background()))

	require.Equal(testInstance, 1, collaborators.provisionCalls)
	require.Equal(testInstance, 1, collaborators.decryptCalls)
	require.Equal(testInstance, "requirements.txt", collaborators.installedManifest)
	require.Equal(testInstance, []string{filepath.Join(testRepositoryPathConstant, "intl/translations")}, collaborators.pulledPaths)

	require.Len(testInstance, collaborators.toolInvocations, 1)
	toolInvocation := collaborators.toolInvocations[0]
	require.Equal(testInstance, execshell.CommandName("sync_videos"), toolInvocation.Name)
	require.Equal(testInstance, testRepositoryPathConstant, toolInvocation.Details.WorkingDirectory)
	require.Equal(testInstance, "/srv/secrets", toolInvocation.Details.EnvironmentVariables["PYTHONPATH"])
	require.Equal(testInstance, "/srv/env/env", toolInvocation.Details.EnvironmentVariables["VIRTUAL_ENV"])

	require.Len(testInstance, collaborators.commitOptions, 1)
	commitOptions := collaborators.commitOptions[0]
	require.Equal(testInstance, testRepositoryPathConstant, commitOptions.RepositoryPath)
	require.Equal(testInstance, "Automated update of video list files", commitOptions.CommitMessage)
	require.Equal(testInstance, "1", commitOptions.EnvironmentVariables["FORCE_COMMIT"])
}

func TestRunStopsWhenTranslationsPullFails(testInstance *testing.T) {
	pullFailure := errors.New("rebase failed and was aborted")
	collaborators := &workflowCollaborators{pullError: pullFailure}
	workflow := newVideosWorkflow(testInstance, collaborators, videos.Configuration{RepositoryPath: testRepositoryPathConstant})

	require.ErrorIs(testInstance, workflow.Run(context.Background()), pullFailure)
	require.Empty(testInstance, collaborators.toolInvocations)
	require.Empty(testInstance, collaborators.commitOptions)
}

func TestRunStopsWhenFetchToolFails(testInstance *testing.T) {
	fetchFailure := errors.New("metadata endpoint unavailable")
	collaborators := &workflowCollaborators{fetchError: fetchFailure}
	workflow := newVideosWorkflow(testInstance, collaborators, videos.Configuration{RepositoryPath: testRepositoryPathConstant})

	require.ErrorIs(testInstance, workflow.Run(context.Background()), fetchFailure)
	require.Empty(testInstance, collaborators.commitOptions)
}
