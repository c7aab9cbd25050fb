package alert

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
	"github.com/linkedinyou/jenkins-tools/internal/secrets"
)

const (
	loggerMissingMessageConstant   = "logger not configured"
	executorMissingMessageConstant = "alert executor not configured"
	messageRequiredMessageConstant = "alert message must be provided"

	dispatchErrorTemplateConstant    = "unable to dispatch alert: %w"
	credentialsErrorTemplateConstant = "unable to prepare alerting credentials: %w"

	defaultChatRoomConstant   = "1s and 0s: deploys"
	defaultSenderNameConstant = "Mr Monkey"

	chatRoomFlagConstant = "--chat"
	senderFlagConstant   = "--sender"
	severityFlagConstant = "--severity"
	htmlFlagConstant     = "--html"

	logFieldRoomConstant     = "room"
	logFieldSeverityConstant = "severity"
)

// markupPattern recognizes simple HTML tags used by formatted chat messages.
var markupPattern = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrExecutorNotConfigured indicates the alert executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ErrMessageRequired indicates the alert message argument was empty.
var ErrMessageRequired = errors.New(messageRequiredMessageConstant)

// Severity grades an alert message.
type Severity string

// Supported alert severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AlertExecutor abstracts invocation of the external alert-dispatching tool.
type AlertExecutor interface {
	ExecuteAlert(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// SecretsPreparer makes alerting credentials available before dispatch.
type SecretsPreparer interface {
	Decrypt() (secrets.Result, error)
}

// Configuration captures the chat sink settings.
type Configuration struct {
	ChatRoom   string `mapstructure:"chat_room"`
	SenderName string `mapstructure:"sender_name"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".chat_room":   defaultChatRoomConstant,
		configurationPrefix + ".sender_name": defaultSenderNameConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.ChatRoom)) == 0 {
		resolvedConfiguration.ChatRoom = defaultChatRoomConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.SenderName)) == 0 {
		resolvedConfiguration.SenderName = defaultSenderNameConstant
	}
	return resolvedConfiguration
}

// Dependencies enumerates the collaborators required by the alerting service.
type Dependencies struct {
	Logger   *zap.Logger
	Executor AlertExecutor
	Secrets  SecretsPreparer
}

// Service forwards graded messages to the chat room and the log sink.
type Service struct {
	logger        *zap.Logger
	executor      AlertExecutor
	secrets       SecretsPreparer
	configuration Configuration
}

// NewService constructs an alerting Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	return &Service{
		logger:        dependencies.Logger,
		executor:      dependencies.Executor,
		secrets:       dependencies.Secrets,
		configuration: configuration.WithDefaults(),
	}, nil
}

// Send forwards the message to the chat room through the external alert tool
// and mirrors it to the log sink at the mapped level. Messages containing
// HTML markup are delivered formatted. Credentials are decrypted first when
// a secrets preparer is configured.
func (service *Service) Send(executionContext context.Context, severity Severity, message string) error {
	trimmedMessage := strings.TrimSpace(message)
	if len(trimmedMessage) == 0 {
		return ErrMessageRequired
	}

	alertEnvironment := map[string]string{}
	if service.secrets != nil {
		decryptionResult, decryptionError := service.secrets.Decrypt()
		if decryptionError != nil {
			return fmt.Errorf(credentialsErrorTemplateConstant, decryptionError)
		}
		alertEnvironment = decryptionResult.EnvironmentVariables()
	}

	service.logToSink(severity, trimmedMessage)

	alertArguments := []string{
		chatRoomFlagConstant, service.configuration.ChatRoom,
		senderFlagConstant, service.configuration.SenderName,
		severityFlagConstant, string(severity),
	}
	if markupPattern.MatchString(trimmedMessage) {
		alertArguments = append(alertArguments, htmlFlagConstant)
	}

	_, dispatchError := service.executor.ExecuteAlert(executionContext, execshell.CommandDetails{
		Arguments:            alertArguments,
		EnvironmentVariables: alertEnvironment,
		StandardInput:        []byte(trimmedMessage),
	})
	if dispatchError != nil {
		return fmt.Errorf(dispatchErrorTemplateConstant, dispatchError)
	}
	return nil
}

func (service *Service) logToSink(severity Severity, message string) {
	logFields := []zap.Field{
		zap.String(logFieldRoomConstant, service.configuration.ChatRoom),
		zap.String(logFieldSeverityConstant, string(severity)),
	}
	switch severity {
	case SeverityInfo:
		service.logger.Info(message, logFields...)
	case SeverityWarning:
		service.logger.Warn(message, logFields...)
	default:
		service.logger.Error(message, logFields...)
	}
}
