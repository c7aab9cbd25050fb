package alert_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/linkedinyou/jenkins-tools/internal/alert"
	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
)

type recordingAlertExecutor struct {
	dispatchedCommands []execshell.CommandDetails
	dispatchError      error
}

func (executor *recordingAlertExecutor) ExecuteAlert(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.dispatchedCommands = append(executor.dispatchedCommands, details)
	if executor.dispatchError != nil {
		return execshell.ExecutionResult{ExitCode: 1}, executor.dispatchError
	}
	return execshell.ExecutionResult{}, nil
}

type stubSecretsPreparer struct {
	decryptCalls int
	decryptError error
}

func (preparer *stubSecretsPreparer) Decrypt() (secrets.Result, error) {
	preparer.decryptCalls++
	if preparer.decryptError != nil {
		return secrets.Result{}, preparer.decryptError
	}
	return secrets.Result{SearchPathVariable: "PYTHONPATH", SearchPathValue: "/srv/secrets"}, nil
}

func newAlertService(testInstance *testing.T, executor alert.AlertExecutor, preparer alert.SecretsPreparer, configuration alert.Configuration) *alert.Service {
	testInstance.Helper()

	service, creationError := alert.NewService(alert.Dependencies{
		Logger:   zap.NewNop(),
		Executor: executor,
		Secrets:  preparer,
	}, configuration)
	require.NoError(testInstance, creationError)

	return service
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	_, missingLoggerError := alert.NewService(alert.Dependencies{Executor: &recordingAlertExecutor{}}, alert.Configuration{})
	require.ErrorIs(testInstance, missingLoggerError, alert.ErrLoggerNotConfigured)

	_, missingExecutorError := alert.NewService(alert.Dependencies{Logger: zap.NewNop()}, alert.Configuration{})
	require.ErrorIs(testInstance, missingExecutorError, alert.ErrExecutorNotConfigured)
}

func TestSendDispatchesPlainMessages(testInstance *testing.T) {
	executor := &recordingAlertExecutor{}
	preparer := &stubSecretsPreparer{}
	service := newAlertService(testInstance, executor, preparer, alert.Configuration{ChatRoom: "deploys", SenderName: "BuildBot"})

	sendError := service.Send(context.Background(), alert.SeverityInfo, "deploy finished")
	require.NoError(testInstance, sendError)

	require.Equal(testInstance, 1, preparer.decryptCalls)
	require.Len(testInstance, executor.dispatchedCommands, 1)

	dispatchedCommand := executor.dispatchedCommands[0]
	require.Equal(testInstance, []string{"--chat", "deploys", "--sender", "BuildBot", "--severity", "info"}, dispatchedCommand.Arguments)
	require.Equal(testInstance, []byte("deploy finished"), dispatchedCommand.StandardInput)
	require.Equal(testInstance, "/srv/secrets", dispatchedCommand.EnvironmentVariables["PYTHONPATH"])
}

func TestSendDetectsMarkup(testInstance *testing.T) {
	testCases := []struct {
		name         string
		message      string
		expectedHTML bool
	}{
		{name: "plain_text", message: "deploy finished", expectedHTML: false},
		{name: "bold_markup", message: "deploy <b>failed</b>", expectedHTML: true},
		{name: "link_markup", message: `see <a href="http://example.com">the log</a>`, expectedHTML: true},
		{name: "comparison_is_not_markup", message: "queue depth 3 < 5", expectedHTML: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			executor := &recordingAlertExecutor{}
			service := newAlertService(subtestInstance, executor, nil, alert.Configuration{})

			require.NoError(subtestInstance, service.Send(context.Background(), alert.SeverityWarning, testCase.message))
			require.Len(subtestInstance, executor.dispatchedCommands, 1)

			dispatchedArguments := executor.dispatchedCommands[0].Arguments
			if testCase.expectedHTML {
				require.Contains(subtestInstance, dispatchedArguments, "--html")
			} else {
				require.NotContains(subtestInstance, dispatchedArguments, "--html")
			}
		})
	}
}

func TestSendMirrorsMessageToLogSink(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zap.InfoLevel)
	service, creationError := alert.NewService(alert.Dependencies{
		Logger:   zap.New(observedCore),
		Executor: &recordingAlertExecutor{},
	}, alert.Configuration{ChatRoom: "deploys"})
	require.NoError(testInstance, creationError)

	require.NoError(testInstance, service.Send(context.Background(), alert.SeverityError, "deploy failed"))

	logEntries := observedLogs.All()
	require.Len(testInstance, logEntries, 1)
	require.Equal(testInstance, zap.ErrorLevel, logEntries[0].Level)
	require.Equal(testInstance, "deploy failed", logEntries[0].Message)
}

func TestSendReportsCredentialFailures(testInstance *testing.T) {
	credentialFailure := errors.New("passphrase file is empty")
	executor := &recordingAlertExecutor{}
	service := newAlertService(testInstance, executor, &stubSecretsPreparer{decryptError: credentialFailure}, alert.Configuration{})

	sendError := service.Send(context.Background(), alert.SeverityInfo, "message")
	require.ErrorIs(testInstance, sendError, credentialFailure)
	require.Empty(testInstance, executor.dispatchedCommands)
}

func TestSendRejectsEmptyMessages(testInstance *testing.T) {
	service := newAlertService(testInstance, &recordingAlertExecutor{}, nil, alert.Configuration{})
	require.ErrorIs(testInstance, service.Send(context.Background(), alert.SeverityInfo, "  "), alert.ErrMessageRequired)
}
