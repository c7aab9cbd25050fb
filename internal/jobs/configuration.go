package jobs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configurationLoadErrorTemplateConstant   = "failed to load job configuration: %w"
	configurationParseErrorTemplateConstant  = "failed to parse job configuration: %w"
	configurationPathRequiredMessageConstant = "job configuration path must be provided"
	configurationEmptyStepsMessageConstant   = "job configuration must define at least one step"
	configurationOperationMissingMessage     = "job step missing operation name"
	configurationUnknownOperationTemplate    = "job step %d uses unknown operation %q"
)

// OperationType identifies supported job operations.
type OperationType string

// Supported job operations.
const (
	OperationTypeSyncTo           OperationType = OperationType("sync-to")
	OperationTypePull             OperationType = OperationType("pull")
	OperationTypePush             OperationType = OperationType("push")
	OperationTypeCommitAndPush    OperationType = OperationType("commit-and-push")
	OperationTypeUpdateSubmodules OperationType = OperationType("update-submodules")
	OperationTypeVideosSync       OperationType = OperationType("videos-sync")
)

var knownOperationTypes = map[OperationType]struct{}{
	OperationTypeSyncTo:           {},
	OperationTypePull:             {},
	OperationTypePush:             {},
	OperationTypeCommitAndPush:    {},
	OperationTypeUpdateSubmodules: {},
	OperationTypeVideosSync:       {},
}

// Configuration describes the ordered steps of a declarative CI job.
type Configuration struct {
	Name  string              `yaml:"name"`
	Steps []StepConfiguration `yaml:"steps"`
}

// StepConfiguration associates an operation type with declarative options.
type StepConfiguration struct {
	Operation OperationType  `yaml:"operation"`
	Options   map[string]any `yaml:"with"`
}

// LoadConfiguration reads a job definition from disk and validates it.
func LoadConfiguration(filePath string) (Configuration, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Configuration{}, errors.New(configurationPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Configuration{}, fmt.Errorf(configurationLoadErrorTemplateConstant, readError)
	}

	var configuration Configuration
	if unmarshalError := yaml.Unmarshal(contentBytes, &configuration); unmarshalError != nil {
		return Configuration{}, fmt.Errorf(configurationParseErrorTemplateConstant, unmarshalError)
	}

	if len(configuration.Steps) == 0 {
		return Configuration{}, errors.New(configurationEmptyStepsMessageConstant)
	}

	for stepIndex := range configuration.Steps {
		trimmedOperation := strings.TrimSpace(string(configuration.Steps[stepIndex].Operation))
		if len(trimmedOperation) == 0 {
			return Configuration{}, errors.New(configurationOperationMissingMessage)
		}
		normalizedOperation := OperationType(trimmedOperation)
		if _, operationKnown := knownOperationTypes[normalizedOperation]; !operationKnown {
			return Configuration{}, fmt.Errorf(configurationUnknownOperationTemplate, stepIndex, trimmedOperation)
		}
		configuration.Steps[stepIndex].Operation = normalizedOperation
	}

	return configuration, nil
}
