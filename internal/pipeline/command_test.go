package pipeline_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/pipeline"
)

func TestCommandBuilderRegistersStageSubcommands(testInstance *testing.T) {
	builder := pipeline.CommandBuilder{LoggerProvider: zap.NewNop}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	require.Equal(testInstance, "deploy", command.Use)

	registeredNames := map[string]bool{}
	for _, subcommand := range command.Commands() {
		registeredNames[subcommand.Name()] = true
	}
	expectedNames := []string{
		"acquire-lock",
		"merge-from-master",
		"set-default",
		"manual-test",
		"finish-with-success",
		"finish-with-failure",
		"finish-with-rollback",
		"finish-with-unlock",
		"relock",
	}
	for _, expectedName := range expectedNames {
		require.True(testInstance, registeredNames[expectedName], expectedName)
	}
}

func TestAcquireLockCommandPrintsVersionAndToken(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.standardOutputs["rev-parse "+testRevisionConstant] = testRevisionConstant + "\n"
	lockDirectory := filepath.Join(testInstance.TempDir(), "deploy.lockdir")

	builder := pipeline.CommandBuilder{
		LoggerProvider: zap.NewNop,
		ConfigurationProvider: func() pipeline.Configuration {
			return pipeline.Configuration{
				LockDirectory:         lockDirectory,
				AcquireTimeoutSeconds: 1,
				PollIntervalSeconds:   1,
			}
		},
		Executor: executor,
		Alerter:  &recordingAlerter{},
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(outputBuffer)
	command.SetArgs([]string{"acquire-lock", "--revision", testRevisionConstant, "--deployer-email", testDeployerEmailConstant})
	command.SilenceErrors = true
	command.SilenceUsage = true

	require.NoError(testInstance, command.Execute())
	require.Contains(testInstance, outputBuffer.String(), "deploy lock acquired")
	require.Contains(testInstance, outputBuffer.String(), testRevisionConstant[:8])
	require.DirExists(testInstance, lockDirectory)
}

func TestStageCommandReportsMissingLock(testInstance *testing.T) {
	lockDirectory := filepath.Join(testInstance.TempDir(), "deploy.lockdir")

	builder := pipeline.CommandBuilder{
		LoggerProvider: zap.NewNop,
		ConfigurationProvider: func() pipeline.Configuration {
			return pipeline.Configuration{LockDirectory: lockDirectory}
		},
		Executor: newScriptedGitExecutor(),
		Alerter:  &recordingAlerter{},
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetArgs([]string{"manual-test"})
	command.SilenceErrors = true
	command.SilenceUsage = true

	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.ErrorIs(testInstance, executionError, pipeline.ErrLockNotHeld)
}
