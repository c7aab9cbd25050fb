package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"go.uber.org/zap"
)

const (
	loggerMissingMessageConstant        = "logger not configured"
	passphraseEmptyMessageConstant      = "passphrase file is empty"
	encryptedFileConfigurationMessage   = "encrypted secrets file not configured"
	passphraseFileConfigurationMessage  = "passphrase file not configured"
	outputDirectoryConfigurationMessage = "secrets output directory not configured"

	passphraseReadErrorTemplateConstant  = "unable to read passphrase file %s: %w"
	ciphertextOpenErrorTemplateConstant  = "unable to open encrypted secrets file %s: %w"
	decryptionErrorTemplateConstant      = "unable to decrypt %s: %w"
	encryptionErrorTemplateConstant      = "unable to encrypt %s: %w"
	plaintextWriteErrorTemplateConstant  = "unable to write decrypted secrets to %s: %w"
	outputDirectoryErrorTemplateConstant = "unable to create secrets directory %s: %w"
	identityErrorTemplateConstant        = "unable to derive decryption identity: %w"
	recipientErrorTemplateConstant       = "unable to derive encryption recipient: %w"

	defaultOutputFileNameConstant     = "secrets.py"
	defaultSearchPathVariableConstant = "PYTHONPATH"

	secretsFilePermissionsConstant  = 0o600
	secretsDirectoryPermissionsCons = 0o700
	searchPathListSeparatorConstant = string(os.PathListSeparator)

	logFieldPathConstant          = "path"
	logMessageAlreadyOnSearchPath = "secrets directory already on search path; skipping decryption"
	logMessageSecretsDecrypted    = "secrets decrypted"
)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrPassphraseEmpty indicates the passphrase file held no usable passphrase.
var ErrPassphraseEmpty = errors.New(passphraseEmptyMessageConstant)

// ErrEncryptedFileNotConfigured indicates the ciphertext path was missing from configuration.
var ErrEncryptedFileNotConfigured = errors.New(encryptedFileConfigurationMessage)

// ErrPassphraseFileNotConfigured indicates the passphrase path was missing from configuration.
var ErrPassphraseFileNotConfigured = errors.New(passphraseFileConfigurationMessage)

// ErrOutputDirectoryNotConfigured indicates the secrets directory was missing from configuration.
var ErrOutputDirectoryNotConfigured = errors.New(outputDirectoryConfigurationMessage)

// EnvironmentLookup reads a variable from the process environment.
type EnvironmentLookup func(variableName string) (string, bool)

// Configuration captures the secrets decryption settings.
type Configuration struct {
	EncryptedFilePath  string `mapstructure:"encrypted_file"`
	PassphraseFilePath string `mapstructure:"passphrase_file"`
	OutputDirectory    string `mapstructure:"output_directory"`
	OutputFileName     string `mapstructure:"output_file_name"`
	SearchPathVariable string `mapstructure:"search_path_variable"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".output_file_name":     defaultOutputFileNameConstant,
		configurationPrefix + ".search_path_variable": defaultSearchPathVariableConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.OutputFileName)) == 0 {
		resolvedConfiguration.OutputFileName = defaultOutputFileNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.SearchPathVariable)) == 0 {
		resolvedConfiguration.SearchPathVariable = defaultSearchPathVariableConstant
	}
	return resolvedConfiguration
}

// Dependencies enumerates the collaborators required by the secrets service.
type Dependencies struct {
	Logger            *zap.Logger
	EnvironmentLookup EnvironmentLookup
}

// Result describes a decryption outcome.
type Result struct {
	SecretsFilePath     string
	SearchPathVariable  string
	SearchPathValue     string
	AlreadyOnSearchPath bool
}

// EnvironmentVariables returns the search-path variable update for child processes.
func (result Result) EnvironmentVariables() map[string]string {
	if len(result.SearchPathVariable) == 0 {
		return map[string]string{}
	}
	return map[string]string{result.SearchPathVariable: result.SearchPathValue}
}

// Service decrypts the build secrets into a private directory and exposes it
// through an interpreter search-path variable.
type Service struct {
	logger            *zap.Logger
	environmentLookup EnvironmentLookup
	configuration     Configuration
}

// NewService constructs a secrets Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}

	return &Service{
		logger:            dependencies.Logger,
		environmentLookup: environmentLookup,
		configuration:     configuration.WithDefaults(),
	}, nil
}

// Decrypt places the plaintext secrets file in the configured directory with
// restricted permissions and reports the search-path value child processes
// should use. A secrets directory already present on the search path makes
// the call a no-op.
func (service *Service) Decrypt() (Result, error) {
	if validationError := service.validateConfiguration(); validationError != nil {
		return Result{}, validationError
	}

	currentSearchPath, _ := service.environmentLookup(service.configuration.SearchPathVariable)
	if searchPathContains(currentSearchPath, service.configuration.OutputDirectory) {
		service.logger.Debug(logMessageAlreadyOnSearchPath, zap.String(logFieldPathConstant, service.configuration.OutputDirectory))
		return Result{
			SecretsFilePath:     filepath.Join(service.configuration.OutputDirectory, service.configuration.OutputFileName),
			SearchPathVariable:  service.configuration.SearchPathVariable,
			SearchPathValue:     currentSearchPath,
			AlreadyOnSearchPath: true,
		}, nil
	}

	passphrase, passphraseError := service.readPassphrase()
	if passphraseError != nil {
		return Result{}, passphraseError
	}

	identity, identityError := age.NewScryptIdentity(passphrase)
	if identityError != nil {
		return Result{}, fmt.Errorf(identityErrorTemplateConstant, identityError)
	}

	ciphertextFile, openError := os.Open(service.configuration.EncryptedFilePath)
	if openError != nil {
		return Result{}, fmt.Errorf(ciphertextOpenErrorTemplateConstant, service.configuration.EncryptedFilePath, openError)
	}
	defer ciphertextFile.Close()

	plaintextReader, decryptError := age.Decrypt(ciphertextFile, identity)
	if decryptError != nil {
		return Result{}, fmt.Errorf(decryptionErrorTemplateConstant, service.configuration.EncryptedFilePath, decryptError)
	}
	plaintext, readError := io.ReadAll(plaintextReader)
	if readError != nil {
		return Result{}, fmt.Errorf(decryptionErrorTemplateConstant, service.configuration.EncryptedFilePath, readError)
	}

	if directoryError := os.MkdirAll(service.configuration.OutputDirectory, secretsDirectoryPermissionsCons); directoryError != nil {
		return Result{}, fmt.Errorf(outputDirectoryErrorTemplateConstant, service.configuration.OutputDirectory, directoryError)
	}

	secretsFilePath := filepath.Join(service.configuration.OutputDirectory, service.configuration.OutputFileName)
	if writeError := os.WriteFile(secretsFilePath, plaintext, secretsFilePermissionsConstant); writeError != nil {
		return Result{}, fmt.Errorf(plaintextWriteErrorTemplateConstant, secretsFilePath, writeError)
	}

	updatedSearchPath := service.configuration.OutputDirectory
	if len(currentSearchPath) > 0 {
		updatedSearchPath = service.configuration.OutputDirectory + searchPathListSeparatorConstant + currentSearchPath
	}

	service.logger.Info(logMessageSecretsDecrypted, zap.String(logFieldPathConstant, secretsFilePath))
	return Result{
		SecretsFilePath:    secretsFilePath,
		SearchPathVariable: service.configuration.SearchPathVariable,
		SearchPathValue:    updatedSearchPath,
	}, nil
}

// Encrypt produces a passphrase-protected ciphertext of the provided
// plaintext file, the inverse of Decrypt for operators rotating secrets.
func (service *Service) Encrypt(plaintextFilePath string, ciphertextFilePath string) error {
	if len(strings.TrimSpace(service.configuration.PassphraseFilePath)) == 0 {
		return ErrPassphraseFileNotConfigured
	}

	passphrase, passphraseError := service.readPassphrase()
	if passphraseError != nil {
		return passphraseError
	}

	recipient, recipientError := age.NewScryptRecipient(passphrase)
	if recipientError != nil {
		return fmt.Errorf(recipientErrorTemplateConstant, recipientError)
	}

	plaintext, readError := os.ReadFile(plaintextFilePath)
	if readError != nil {
		return fmt.Errorf(encryptionErrorTemplateConstant, plaintextFilePath, readError)
	}

	ciphertextBuffer := &bytes.Buffer{}
	ciphertextWriter, encryptError := age.Encrypt(ciphertextBuffer, recipient)
	if encryptError != nil {
		return fmt.Errorf(encryptionErrorTemplateConstant, plaintextFilePath, encryptError)
	}
	if _, writeError := ciphertextWriter.Write(plaintext); writeError != nil {
		return fmt.Errorf(encryptionErrorTemplateConstant, plaintextFilePath, writeError)
	}
	if closeError := ciphertextWriter.Close(); closeError != nil {
		return fmt.Errorf(encryptionErrorTemplateConstant, plaintextFilePath, closeError)
	}

	if writeError := os.WriteFile(ciphertextFilePath, ciphertextBuffer.Bytes(), secretsFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(plaintextWriteErrorTemplateConstant, ciphertextFilePath, writeError)
	}
	return nil
}

func (service *Service) validateConfiguration() error {
	if len(strings.TrimSpace(service.configuration.EncryptedFilePath)) == 0 {
		return ErrEncryptedFileNotConfigured
	}
	if len(strings.TrimSpace(service.configuration.PassphraseFilePath)) == 0 {
		return ErrPassphraseFileNotConfigured
	}
	if len(strings.TrimSpace(service.configuration.OutputDirectory)) == 0 {
		return ErrOutputDirectoryNotConfigured
	}
	return nil
}

func (service *Service) readPassphrase() (string, error) {
	passphraseBytes, readError := os.ReadFile(service.configuration.PassphraseFilePath)
	if readError != nil {
		return "", fmt.Errorf(passphraseReadErrorTemplateConstant, service.configuration.PassphraseFilePath, readError)
	}
	passphrase := strings.TrimSpace(string(passphraseBytes))
	if len(passphrase) == 0 {
		return "", ErrPassphraseEmpty
	}
	return passphrase, nil
}

func searchPathContains(searchPathValue string, directoryPath string) bool {
	for _, searchPathEntry := range strings.Split(searchPathValue, searchPathListSeparatorConstant) {
		if len(searchPathEntry) > 0 && searchPathEntry == directoryPath {
			return true
		}
	}
	return false
}
