package gitsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

func TestRepositoryInspectorRequiresExecutor(testInstance *testing.T) {
	_, creationError := gitsync.NewRepositoryInspector(nil)
	require.ErrorIs(testInstance, creationError, gitsync.ErrInspectorExecutorNotConfigured)
}

func TestRepositoryInspectorCurrentBranch(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.standardOutputs["rev-parse --abbrev-ref HEAD"] = "release-candidate\n"
	inspector, creationError := gitsync.NewRepositoryInspector(executor)
	require.NoError(testInstance, creationError)

	branchName, branchError := inspector.CurrentBranch(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "release-candidate", branchName)
}

func TestRepositoryInspectorWorkingTreeCleanliness(testInstance *testing.T) {
	testCases := []struct {
		name           string
		statusOutput   string
		expectedResult bool
	}{
		{name: "clean_tree", statusOutput: "\n", expectedResult: true},
		{name: "dirty_tree", statusOutput: " M intl/translations\n?? new_file\n", expectedResult: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			executor := newScriptedGitExecutor()
			executor.standardOutputs["status --porcelain"] = testCase.statusOutput
			inspector, creationError := gitsync.NewRepositoryInspector(executor)
			require.NoError(subtestInstance, creationError)

			treeClean, inspectionError := inspector.IsWorkingTreeClean(context.Background(), testRepositoryPathConstant)
			require.NoError(subtestInstance, inspectionError)
			require.Equal(subtestInstance, testCase.expectedResult, treeClean)
		})
	}
}

func TestRepositoryInspectorRemoteBranchExists(testInstance *testing.T) {
	testCases := []struct {
		name           string
		lookupFails    bool
		expectedResult bool
	}{
		{name: "known_branch", lookupFails: false, expectedResult: true},
		{name: "unknown_branch", lookupFails: true, expectedResult: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			executor := newScriptedGitExecutor()
			if testCase.lookupFails {
				executor.failingPrefixes["ls-remote --exit-code ."] = commandFailure("ls-remote")
			}
			inspector, creationError := gitsync.NewRepositoryInspector(executor)
			require.NoError(subtestInstance, creationError)

			branchExists, lookupError := inspector.RemoteBranchExists(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, "master")
			require.NoError(subtestInstance, lookupError)
			require.Equal(subtestInstance, testCase.expectedResult, branchExists)

			require.Equal(subtestInstance, []string{"ls-remote --exit-code . origin/master"}, executor.gitArgumentLines())
		})
	}
}

func TestRepositoryInspectorIsInsideWorkTree(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.standardOutputs["rev-parse --is-inside-work-tree"] = "true\n"
	inspector, creationError := gitsync.NewRepositoryInspector(executor)
	require.NoError(testInstance, creationError)

	insideWorkTree, inspectionError := inspector.IsInsideWorkTree(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, inspectionError)
	require.True(testInstance, insideWorkTree)
}

func TestRepositoryInspectorIsInsideWorkTreeReportsFalseOutsideRepositories(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.failingPrefixes["rev-parse --is-inside-work-tree"] = commandFailure("rev-parse")
	inspector, creationError := gitsync.NewRepositoryInspector(executor)
	require.NoError(testInstance, creationError)

	insideWorkTree, inspectionError := inspector.IsInsideWorkTree(context.Background(), "/tmp/not-a-repository")
	require.NoError(testInstance, inspectionError)
	require.False(testInstance, insideWorkTree)
}

func TestRepositoryInspectorSubmodulePaths(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.standardOutputs["config -f .gitmodules"] = "submodule.intl/translations.path intl/translations\nsubmodule.khan-exercises.path khan-exercises\n"
	inspector, creationError := gitsync.NewRepositoryInspector(executor)
	require.NoError(testInstance, creationError)

	submodulePaths, listError := inspector.SubmodulePaths(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"intl/translations", "khan-exercises"}, submodulePaths)
}

func TestRepositoryInspectorSubmodulePathsWithoutModulesFile(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.failingPrefixes["config -f .gitmodules"] = commandFailure("config")
	inspector, creationError := gitsync.NewRepositoryInspector(executor)
	require.NoError(testInstance, creationError)

	submodulePaths, listError := inspector.SubmodulePaths(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, listError)
	require.Empty(testInstance, submodulePaths)
}
