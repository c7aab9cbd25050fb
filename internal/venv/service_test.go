package venv_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/venv"
)

type provisioningToolExecutor struct {
	virtualenvCommands []execshell.CommandDetails
	pipCommands        []execshell.CommandDetails
}

func (executor *provisioningToolExecutor) ExecuteVirtualenv(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.virtualenvCommands = append(executor.virtualenvCommands, details)

	environmentPath := details.Arguments[len(details.Arguments)-1]
	if creationError := os.MkdirAll(filepath.Join(environmentPath, "bin"), 0o755); creationError != nil {
		return execshell.ExecutionResult{}, creationError
	}
	if writeError := os.WriteFile(filepath.Join(environmentPath, "bin", "activate"), []byte("# activate"), 0o644); writeError != nil {
		return execshell.ExecutionResult{}, writeError
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *provisioningToolExecutor) ExecutePip(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.pipCommands = append(executor.pipCommands, details)
	return execshell.ExecutionResult{}, nil
}

func inactiveEnvironmentLookup(string) (string, bool) {
	return "", false
}

func newProvisioningService(testInstance *testing.T, executor venv.ToolExecutor, lookup venv.EnvironmentLookup, configuration venv.Configuration) *venv.Service {
	testInstance.Helper()

	service, creationError := venv.NewService(venv.Dependencies{
		Logger:            zap.NewNop(),
		Executor:          executor,
		EnvironmentLookup: lookup,
	}, configuration)
	require.NoError(testInstance, creationError)

	return service
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	_, missingLoggerError := venv.NewService(venv.Dependencies{Executor: &provisioningToolExecutor{}}, venv.Configuration{})
	require.ErrorIs(testInstance, missingLoggerError, venv.ErrLoggerNotConfigured)

	_, missingExecutorError := venv.NewService(venv.Dependencies{Logger: zap.NewNop()}, venv.Configuration{})
	require.ErrorIs(testInstance, missingExecutorError, venv.ErrExecutorNotConfigured)
}

func TestProvisionCreatesEnvironmentAndDefaultLink(testInstance *testing.T) {
	rootDirectory := testInstance.TempDir()
	executor := &provisioningToolExecutor{}
	service := newProvisioningService(testInstance, executor, inactiveEnvironmentLookup, venv.Configuration{RootDirectory: rootDirectory})

	activation, provisionError := service.Provision(context.Background(), venv.ProvisionOptions{})
	require.NoError(testInstance, provisionError)
	require.False(testInstance, activation.AlreadyActive)
	require.Equal(testInstance, filepath.Join(rootDirectory, "env"), activation.EnvironmentPath)

	require.Len(testInstance, executor.virtualenvCommands, 1)
	require.Equal(testInstance, []string{"--python", "python", activation.EnvironmentPath}, executor.virtualenvCommands[0].Arguments)

	linkTarget, readLinkError := os.Readlink(filepath.Join(rootDirectory, "default"))
	require.NoError(testInstance, readLinkError)
	require.Equal(testInstance, activation.EnvironmentPath, linkTarget)

	derivedEnvironment := activation.EnvironmentVariables("/usr/bin")
	require.Equal(testInstance, activation.EnvironmentPath, derivedEnvironment["VIRTUAL_ENV"])
	require.True(testInstance, strings.HasPrefix(derivedEnvironment["PATH"], filepath.Join(activation.EnvironmentPath, "bin")))
}

func TestProvisionIsIdempotent(testInstance *testing.T) {
	rootDirectory := testInstance.TempDir()
	executor := &provisioningToolExecutor{}
	service := newProvisioningService(testInstance, executor, inactiveEnvironmentLookup, venv.Configuration{RootDirectory: rootDirectory})

	_, firstError := service.Provision(context.Background(), venv.ProvisionOptions{})
	require.NoError(testInstance, firstError)
	_, secondError := service.Provision(context.Background(), venv.ProvisionOptions{})
	require.NoError(testInstance, secondError)

	require.Len(testInstance, executor.virtualenvCommands, 1)
}

func TestProvisionSkipsWorkInsideActiveEnvironment(testInstance *testing.T) {
	executor := &provisioningToolExecutor{}
	activeLookup := func(variableName string) (string, bool) {
		require.Equal(testInstance, "VIRTUAL_ENV", variableName)
		return "/existing/env", true
	}
	service := newProvisioningService(testInstance, executor, activeLookup, venv.Configuration{RootDirectory: testInstance.TempDir()})

	activation, provisionError := service.Provision(context.Background(), venv.ProvisionOptions{})
	require.NoError(testInstance, provisionError)
	require.True(testInstance, activation.AlreadyActive)
	require.Equal(testInstance, "/existing/env", activation.EnvironmentPath)
	require.Empty(testInstance, executor.virtualenvCommands)
	require.Empty(testInstance, activation.EnvironmentVariables("/usr/bin"))
}

func TestProvisionWritesDebugReadmeOnce(testInstance *testing.T) {
	rootDirectory := testInstance.TempDir()
	executor := &provisioningToolExecutor{}
	service := newProvisioningService(testInstance, executor, inactiveEnvironmentLookup, venv.Configuration{RootDirectory: rootDirectory})

	_, firstError := service.Provision(context.Background(), venv.ProvisionOptions{IncludeDebugEnvironment: true})
	require.NoError(testInstance, firstError)

	readmePath := filepath.Join(rootDirectory, "env_debug", "README.debugging")
	readmeContents, readError := os.ReadFile(readmePath)
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(readmeContents), "debugging")

	require.NoError(testInstance, os.WriteFile(readmePath, []byte("edited"), 0o644))
	_, secondError := service.Provision(context.Background(), venv.ProvisionOptions{IncludeDebugEnvironment: true})
	require.NoError(testInstance, secondError)

	preservedContents, rereadError := os.ReadFile(readmePath)
	require.NoError(testInstance, rereadError)
	require.Equal(testInstance, "edited", string(preservedContents))
}

func TestInstallRequirementsRunsPip(testInstance *testing.T) {
	executor := &provisioningToolExecutor{}
	service := newProvisioningService(testInstance, executor, inactiveEnvironmentLookup, venv.Configuration{RootDirectory: testInstance.TempDir()})

	activation := venv.Activation{EnvironmentPath: "/srv/env"}
	require.NoError(testInstance, service.InstallRequirements(context.Background(), activation, "requirements.txt"))

	require.Len(testInstance, executor.pipCommands, 1)
	require.Equal(testInstance, []string{"install", "-r", "requirements.txt"}, executor.pipCommands[0].Arguments)
	require.Equal(testInstance, "/srv/env", executor.pipCommands[0].EnvironmentVariables["VIRTUAL_ENV"])
}
