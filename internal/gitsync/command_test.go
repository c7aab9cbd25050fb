package gitsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkedinyou/jenkins-tools/internal/gitsync"
)

func TestCommandBuilderRegistersSubcommands(testInstance *testing.T) {
	builder := &gitsync.CommandBuilder{}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	require.Equal(testInstance, "git-sync", command.Name())

	expectedSubcommands := []string{
		"sync-to",
		"pull",
		"push",
		"commit-and-push",
		"fetch",
		"destructive-checkout",
		"update-submodules",
		"lfs",
	}
	registeredSubcommands := []string{}
	for _, subcommand := range command.Commands() {
		registeredSubcommands = append(registeredSubcommands, subcommand.Name())
	}
	for _, expectedSubcommand := range expectedSubcommands {
		require.Contains(testInstance, registeredSubcommands, expectedSubcommand)
	}
}

func TestCommandBuilderRunsFetchSubcommand(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	builder := &gitsync.CommandBuilder{
		Executor:    executor,
		LockManager: &recordingLockManager{},
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetArgs([]string{"fetch", testRepositoryPathConstant})
	require.NoError(testInstance, command.ExecuteContext(context.Background()))
	require.Equal(testInstance, []string{"fetch --prune --tags origin"}, executor.gitArgumentLines())
}

func TestCommandBuilderRejectsUnknownLargeFileOperation(testInstance *testing.T) {
	builder := &gitsync.CommandBuilder{
		Executor:    newScriptedGitExecutor(),
		LockManager: &recordingLockManager{},
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetArgs([]string{"lfs", "fsck", testRepositoryPathConstant})
	command.SilenceErrors = true
	command.SilenceUsage = true
	require.Error(testInstance, command.ExecuteContext(context.Background()))
}
