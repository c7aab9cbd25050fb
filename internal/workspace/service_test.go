package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/workspace"
)

type stubWorkTreeInspector struct {
	insideWorkTree bool
	inspectionErr  error
}

func (inspector *stubWorkTreeInspector) IsInsideWorkTree(_ context.Context, _ string) (bool, error) {
	return inspector.insideWorkTree, inspector.inspectionErr
}

func newWorkspaceService(testInstance *testing.T, inspector workspace.WorkTreeInspector, configuration workspace.Configuration) *workspace.Service {
	testInstance.Helper()

	service, creationError := workspace.NewService(workspace.Dependencies{
		Logger:    zap.NewNop(),
		Inspector: inspector,
	}, configuration)
	require.NoError(testInstance, creationError)

	return service
}

func testConfiguration(baseDirectory string) workspace.Configuration {
	return workspace.Configuration{
		WorkspaceRoot:    filepath.Join(baseDirectory, "jobs"),
		TempDirectory:    filepath.Join(baseDirectory, "tmp"),
		SecretsDirectory: filepath.Join(baseDirectory, "secrets"),
		VirtualenvRoot:   filepath.Join(baseDirectory, "env"),
	}
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	testCases := []struct {
		name          string
		dependencies  workspace.Dependencies
		expectedError error
	}{
		{
			name:          "missing_logger",
			dependencies:  workspace.Dependencies{Inspector: &stubWorkTreeInspector{}},
			expectedError: workspace.ErrLoggerNotConfigured,
		},
		{
			name:          "missing_inspector",
			dependencies:  workspace.Dependencies{Logger: zap.NewNop()},
			expectedError: workspace.ErrInspectorNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			_, creationError := workspace.NewService(testCase.dependencies, workspace.Configuration{})
			require.ErrorIs(subtestInstance, creationError, testCase.expectedError)
		})
	}
}

func TestResolveCreatesDirectoryLayout(testInstance *testing.T) {
	baseDirectory := testInstance.TempDir()
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, testConfiguration(baseDirectory))

	resolvedPaths, resolveError := service.Resolve(context.Background(), baseDirectory)
	require.NoError(testInstance, resolveError)

	for _, directoryPath := range []string{
		resolvedPaths.WorkspaceRoot,
		resolvedPaths.TempDirectory,
		resolvedPaths.SecretsDirectory,
		resolvedPaths.VirtualenvRoot,
	} {
		directoryInformation, statError := os.Stat(directoryPath)
		require.NoError(testInstance, statError)
		require.True(testInstance, directoryInformation.IsDir())
	}

	derivedEnvironment := resolvedPaths.EnvironmentVariables()
	require.Equal(testInstance, resolvedPaths.WorkspaceRoot, derivedEnvironment["WORKSPACE_ROOT"])
	require.Equal(testInstance, resolvedPaths.TempDirectory, derivedEnvironment["TMPDIR"])
}

func TestResolveRefusesVersionControlledWorkingDirectory(testInstance *testing.T) {
	baseDirectory := testInstance.TempDir()
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{insideWorkTree: true}, testConfiguration(baseDirectory))

	_, resolveError := service.Resolve(context.Background(), baseDirectory)
	require.ErrorIs(testInstance, resolveError, workspace.ErrInsideWorkTree)
}

func TestPruneTemporaryFilesRemovesExpiredEntries(testInstance *testing.T) {
	baseDirectory := testInstance.TempDir()
	configuration := testConfiguration(baseDirectory)
	require.NoError(testInstance, os.MkdirAll(configuration.TempDirectory, 0o755))

	expiredFilePath := filepath.Join(configuration.TempDirectory, "stale_artifact")
	require.NoError(testInstance, os.WriteFile(expiredFilePath, []byte("stale"), 0o644))
	expiredModTime := time.Now().Add(-6 * 24 * time.Hour)
	require.NoError(testInstance, os.Chtimes(expiredFilePath, expiredModTime, expiredModTime))

	freshFilePath := filepath.Join(configuration.TempDirectory, "fresh_artifact")
	require.NoError(testInstance, os.WriteFile(freshFilePath, []byte("fresh"), 0o644))

	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, configuration)
	require.NoError(testInstance, service.PruneTemporaryFiles(time.Now()))

	_, expiredStatError := os.Stat(expiredFilePath)
	require.True(testInstance, os.IsNotExist(expiredStatError))
	_, freshStatError := os.Stat(freshFilePath)
	require.NoError(testInstance, freshStatError)
}

func TestPruneTemporaryFilesToleratesMissingDirectory(testInstance *testing.T) {
	configuration := testConfiguration(filepath.Join(testInstance.TempDir(), "never_created"))
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, configuration)
	require.NoError(testInstance, service.PruneTemporaryFiles(time.Now()))
}

func TestFastMoveParksPreviousDestination(testInstance *testing.T) {
	baseDirectory := testInstance.TempDir()
	configuration := testConfiguration(baseDirectory)
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, configuration)

	sourceDirectory := filepath.Join(baseDirectory, "incoming")
	require.NoError(testInstance, os.MkdirAll(sourceDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(sourceDirectory, "payload"), []byte("new"), 0o644))

	destinationDirectory := filepath.Join(baseDirectory, "current")
	require.NoError(testInstance, os.MkdirAll(destinationDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(destinationDirectory, "payload"), []byte("old"), 0o644))

	require.NoError(testInstance, service.FastMove(sourceDirectory, destinationDirectory))

	movedPayload, readError := os.ReadFile(filepath.Join(destinationDirectory, "payload"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "new", string(movedPayload))

	parkedEntries := service.ParkedEntries()
	require.Len(testInstance, parkedEntries, 1)
	parkedPayload, parkedReadError := os.ReadFile(filepath.Join(parkedEntries[0], "payload"))
	require.NoError(testInstance, parkedReadError)
	require.Equal(testInstance, "old", string(parkedPayload))

	service.SweepParkedEntries()
	_, sweptStatError := os.Stat(parkedEntries[0])
	require.True(testInstance, os.IsNotExist(sweptStatError))
	require.Empty(testInstance, service.ParkedEntries())
}

func TestFastMoveWithoutExistingDestination(testInstance *testing.T) {
	baseDirectory := testInstance.TempDir()
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, testConfiguration(baseDirectory))

	sourceFilePath := filepath.Join(baseDirectory, "artifact")
	require.NoError(testInstance, os.WriteFile(sourceFilePath, []byte("contents"), 0o644))
	destinationFilePath := filepath.Join(baseDirectory, "artifact_final")

	require.NoError(testInstance, service.FastMove(sourceFilePath, destinationFilePath))
	require.Empty(testInstance, service.ParkedEntries())

	movedContents, readError := os.ReadFile(destinationFilePath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "contents", string(movedContents))
}

func TestFastMoveValidatesArguments(testInstance *testing.T) {
	service := newWorkspaceService(testInstance, &stubWorkTreeInspector{}, testConfiguration(testInstance.TempDir()))

	require.ErrorIs(testInstance, service.FastMove("", "destination"), workspace.ErrSourcePathRequired)
	require.ErrorIs(testInstance, service.FastMove("source", ""), workspace.ErrDestinationPathRequired)
}
