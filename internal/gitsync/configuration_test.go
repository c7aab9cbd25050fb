package gitsync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

func TestConfigurationWithDefaults(testInstance *testing.T) {
	resolvedConfiguration := gitsync.Configuration{}.WithDefaults()

	require.Equal(testInstance, "origin", resolvedConfiguration.RemoteName)
	require.Equal(testInstance, "master", resolvedConfiguration.PullBranch)
	require.Equal(testInstance, []string{"intl/translations", "khan-exercises"}, resolvedConfiguration.LinkedSubmodules)
	require.Equal(testInstance, 120*time.Minute, resolvedConfiguration.FetchTimeout())
	require.Equal(testInstance, 60*time.Minute, resolvedConfiguration.CommandTimeout())
	require.Equal(testInstance, 7230*time.Second, resolvedConfiguration.LockWait())
}

func TestConfigurationWithDefaultsKeepsExplicitValues(testInstance *testing.T) {
	resolvedConfiguration := gitsync.Configuration{
		RemoteName:          "upstream",
		PullBranch:          "main",
		LinkedSubmodules:    []string{},
		FetchTimeoutMinutes: 5,
		LockWaitSeconds:     30,
	}.WithDefaults()

	require.Equal(testInstance, "upstream", resolvedConfiguration.RemoteName)
	require.Equal(testInstance, "main", resolvedConfiguration.PullBranch)
	require.Empty(testInstance, resolvedConfiguration.LinkedSubmodules)
	require.Equal(testInstance, 5*time.Minute, resolvedConfiguration.FetchTimeout())
	require.Equal(testInstance, 30*time.Second, resolvedConfiguration.LockWait())
}

func TestConfigurationIsLinkedSubmodule(testInstance *testing.T) {
	testCases := []struct {
		name           string
		submodulePath  string
		expectedResult bool
	}{
		{name: "linked_translations", submodulePath: "intl/translations", expectedResult: true},
		{name: "linked_exercises", submodulePath: "khan-exercises", expectedResult: true},
		{name: "padded_linked_path", submodulePath: " khan-exercises ", expectedResult: true},
		{name: "unlinked_path", submodulePath: "vendor/internal-tools", expectedResult: false},
	}

	resolvedConfiguration := gitsync.Configuration{}.WithDefaults()
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			require.Equal(subtestInstance, testCase.expectedResult, resolvedConfiguration.IsLinkedSubmodule(testCase.submodulePath))
		})
	}
}

func TestDefaultConfigurationValuesArePrefixed(testInstance *testing.T) {
	defaultValues := gitsync.DefaultConfigurationValues("sync")

	require.Equal(testInstance, "origin", defaultValues["sync.remote_name"])
	require.Equal(testInstance, "master", defaultValues["sync.pull_branch"])
	require.Equal(testInstance, 7230, defaultValues["sync.lock_wait_seconds"])
}
