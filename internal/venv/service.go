package venv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/linkedinyou/jenkins-tools/internal/execshell"
)

const (
	loggerMissingMessageConstant   = "logger not configured"
	executorMissingMessageConstant = "tool executor not configured"

	provisionErrorTemplateConstant    = "unable to provision virtual environment %s: %w"
	linkErrorTemplateConstant         = "unable to link default environment %s: %w"
	readmeWriteErrorTemplateConstant  = "unable to write %s: %w"
	installErrorTemplateConstant      = "unable to install requirements from %s: %w"
	rootCreationErrorTemplateConstant = "unable to create virtual environment root %s: %w"

	defaultEnvironmentNameConstant      = "env"
	defaultDebugEnvironmentNameConstant = "env_debug"
	defaultLinkNameConstant             = "default"
	defaultPythonBinaryConstant         = "python"

	virtualEnvEnvironmentNameConstant = "VIRTUAL_ENV"
	pathEnvironmentNameConstant       = "PATH"
	pathListSeparatorConstant         = string(os.PathListSeparator)

	activateScriptRelativePathConstant = "bin/activate"
	binDirectoryNameConstant           = "bin"

	pipInstallSubcommandConstant = "install"
	pipRequirementsFlagConstant  = "-r"
	virtualenvPythonFlagConstant = "--python"

	debugReadmeFileNameConstant = "README.debugging"
	debugReadmeContentConstant  = "This directory holds a second interpreter environment built with\n" +
		"debugging symbols enabled. Activate it instead of the normal environment\n" +
		"when a job needs to run under a debugger or produce native stack traces.\n" +
		"It is provisioned automatically and safe to delete; the next job that\n" +
		"asks for it will rebuild it.\n"

	directoryPermissionsConstant = 0o755
	readmePermissionsConstant    = 0o644

	logFieldEnvironmentConstant  = "environment"
	logMessageAlreadyActive      = "already inside a virtual environment; skipping provisioning"
	logMessageEnvironmentReused  = "virtual environment already provisioned"
	logMessageEnvironmentCreated = "virtual environment created"
)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrExecutorNotConfigured indicates the tool executor dependency was missing.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ToolExecutor abstracts virtualenv and pip invocation.
type ToolExecutor interface {
	ExecuteVirtualenv(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecutePip(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// EnvironmentLookup reads a variable from the process environment.
type EnvironmentLookup func(variableName string) (string, bool)

// Configuration captures the interpreter environment layout.
type Configuration struct {
	RootDirectory        string `mapstructure:"root"`
	EnvironmentName      string `mapstructure:"environment_name"`
	DebugEnvironmentName string `mapstructure:"debug_environment_name"`
	DefaultLinkName      string `mapstructure:"default_link_name"`
	PythonBinary         string `mapstructure:"python_binary"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".environment_name":       defaultEnvironmentNameConstant,
		configurationPrefix + ".debug_environment_name": defaultDebugEnvironmentNameConstant,
		configurationPrefix + ".default_link_name":      defaultLinkNameConstant,
		configurationPrefix + ".python_binary":          defaultPythonBinaryConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.EnvironmentName)) == 0 {
		resolvedConfiguration.EnvironmentName = defaultEnvironmentNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.DebugEnvironmentName)) == 0 {
		resolvedConfiguration.DebugEnvironmentName = defaultDebugEnvironmentNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.DefaultLinkName)) == 0 {
		resolvedConfiguration.DefaultLinkName = defaultLinkNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.PythonBinary)) == 0 {
		resolvedConfiguration.PythonBinary = defaultPythonBinaryConstant
	}
	return resolvedConfiguration
}

// Dependencies enumerates the collaborators required by the provisioning service.
type Dependencies struct {
	Logger            *zap.Logger
	Executor          ToolExecutor
	EnvironmentLookup EnvironmentLookup
}

// ProvisionOptions configures a provisioning run.
type ProvisionOptions struct {
	IncludeDebugEnvironment bool
}

// Activation describes an environment ready for child processes.
type Activation struct {
	EnvironmentPath string
	AlreadyActive   bool
}

// EnvironmentVariables returns the variables a child process needs to run inside the environment.
func (activation Activation) EnvironmentVariables(currentPath string) map[string]string {
	if activation.AlreadyActive {
		return map[string]string{}
	}
	binDirectory := filepath.Join(activation.EnvironmentPath, binDirectoryNameConstant)
	return map[string]string{
		virtualEnvEnvironmentNameConstant: activation.EnvironmentPath,
		pathEnvironmentNameConstant:       binDirectory + pathListSeparatorConstant + currentPath,
	}
}

// Service provisions isolated interpreter environments.
type Service struct {
	logger            *zap.Logger
	executor          ToolExecutor
	environmentLookup EnvironmentLookup
	configuration     Configuration
}

// NewService constructs a provisioning Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Executor == nil {
		return nil, ErrExecutorNotConfigured
	}

	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}

	return &Service{
		logger:            dependencies.Logger,
		executor:          dependencies.Executor,
		environmentLookup: environmentLookup,
		configuration:     configuration.WithDefaults(),
	}, nil
}

// Provision idempotently creates the interpreter environment, optionally a
// second debug-capable one, and points the default link at the normal
// environment. Running inside an active environment is a no-op.
func (service *Service) Provision(executionContext context.Context, options ProvisionOptions) (Activation, error) {
	if activeEnvironment, environmentActive := service.environmentLookup(virtualEnvEnvironmentNameConstant); environmentActive && len(activeEnvironment) > 0 {
		service.logger.Debug(logMessageAlreadyActive, zap.String(logFieldEnvironmentConstant, activeEnvironment))
		return Activation{EnvironmentPath: activeEnvironment, AlreadyActive: true}, nil
	}

	if creationError := os.MkdirAll(service.configuration.RootDirectory, directoryPermissionsConstant); creationError != nil {
		return Activation{}, fmt.Errorf(rootCreationErrorTemplateConstant, service.configuration.RootDirectory, creationError)
	}

	environmentPath := filepath.Join(service.configuration.RootDirectory, service.configuration.EnvironmentName)
	if provisionError := service.provisionEnvironment(executionContext, environmentPath); provisionError != nil {
		return Activation{}, provisionError
	}

	if options.IncludeDebugEnvironment {
		debugEnvironmentPath := filepath.Join(service.configuration.RootDirectory, service.configuration.DebugEnvironmentName)
		debugAlreadyProvisioned := environmentExists(debugEnvironmentPath)
		if provisionError := service.provisionEnvironment(executionContext, debugEnvironmentPath); provisionError != nil {
			return Activation{}, provisionError
		}
		if !debugAlreadyProvisioned {
			readmePath := filepath.Join(debugEnvironmentPath, debugReadmeFileNameConstant)
			if writeError := os.WriteFile(readmePath, []byte(debugReadmeContentConstant), readmePermissionsConstant); writeError != nil {
				return Activation{}, fmt.Errorf(readmeWriteErrorTemplateConstant, readmePath, writeError)
			}
		}
	}

	if linkError := service.linkDefaultEnvironment(environmentPath); linkError != nil {
		return Activation{}, linkError
	}

	return Activation{EnvironmentPath: environmentPath}, nil
}

// InstallRequirements installs the dependency manifest into the provisioned environment.
func (service *Service) InstallRequirements(executionContext context.Context, activation Activation, requirementsFilePath string) error {
	pipDetails := execshell.CommandDetails{
		Arguments: []string{pipInstallSubcommandConstant, pipRequirementsFlagConstant, requirementsFilePath},
	}
	if !activation.AlreadyActive {
		pipDetails.EnvironmentVariables = map[string]string{virtualEnvEnvironmentNameConstant: activation.EnvironmentPath}
	}
	if _, installError := service.executor.ExecutePip(executionContext, pipDetails); installError != nil {
		return fmt.Errorf(installErrorTemplateConstant, requirementsFilePath, installError)
	}
	return nil
}

func (service *Service) provisionEnvironment(executionContext context.Context, environmentPath string) error {
	if environmentExists(environmentPath) {
		service.logger.Debug(logMessageEnvironmentReused, zap.String(logFieldEnvironmentConstant, environmentPath))
		return nil
	}

	_, provisionError := service.executor.ExecuteVirtualenv(executionContext, execshell.CommandDetails{
		Arguments: []string{virtualenvPythonFlagConstant, service.configuration.PythonBinary, environmentPath},
	})
	if provisionError != nil {
		return fmt.Errorf(provisionErrorTemplateConstant, environmentPath, provisionError)
	}

	service.logger.Info(logMessageEnvironmentCreated, zap.String(logFieldEnvironmentConstant, environmentPath))
	return nil
}

func (service *Service) linkDefaultEnvironment(environmentPath string) error {
	defaultLinkPath := filepath.Join(service.configuration.RootDirectory, service.configuration.DefaultLinkName)

	if existingTarget, readLinkError := os.Readlink(defaultLinkPath); readLinkError == nil {
		if existingTarget == environmentPath {
			return nil
		}
		if removalError := os.Remove(defaultLinkPath); removalError != nil {
			return fmt.Errorf(linkErrorTemplateConstant, defaultLinkPath, removalError)
		}
	}

	if linkError := os.Symlink(environmentPath, defaultLinkPath); linkError != nil {
		return fmt.Errorf(linkErrorTemplateConstant, defaultLinkPath, linkError)
	}
	return nil
}

func environmentExists(environmentPath string) bool {
	activateScriptPath := filepath.Join(environmentPath, filepath.FromSlash(activateScriptRelativePathConstant))
	_, statError := os.Stat(activateScriptPath)
	return statError == nil
}
