package secrets

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	commandUseConstant              = "secrets"
	commandShortDescriptionConstant = "Decrypt build credentials into a private directory"
	commandLongDescriptionConstant  = "secrets decrypts the encrypted credentials file with the passphrase key file, writes the plaintext with restricted permissions, and prints the search-path export child processes need."

	decryptUseConstant            = "decrypt"
	decryptShortDescription       = "Decrypt the credentials and print the search-path export"
	encryptUseConstant            = "encrypt <plaintext-file> <ciphertext-file>"
	encryptShortDescription       = "Encrypt a plaintext credentials file with the passphrase key file"
	environmentExportTemplate     = "export %s=%s\n"
	commandExecutionErrorTemplate = "secrets handling failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies secrets decryption settings.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the secrets command tree.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the secrets command and its subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
	}

	command.AddCommand(builder.buildDecryptCommand())
	command.AddCommand(builder.buildEncryptCommand())

	return command, nil
}

func (builder *CommandBuilder) buildDecryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   decryptUseConstant,
		Short: decryptShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			result, decryptError := service.Decrypt()
			if decryptError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, decryptError)
			}

			for variableName, variableValue := range result.EnvironmentVariables() {
				fmt.Fprintf(command.OutOrStdout(), environmentExportTemplate, variableName, variableValue)
			}
			return nil
		},
	}
}

func (builder *CommandBuilder) buildEncryptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   encryptUseConstant,
		Short: encryptShortDescription,
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			service, serviceError := builder.resolveService()
			if serviceError != nil {
				return serviceError
			}

			encryptError := service.Encrypt(arguments[0], arguments[1])
			if encryptError != nil {
				return fmt.Errorf(commandExecutionErrorTemplate, encryptError)
			}
			return nil
		},
	}
}

func (builder *CommandBuilder) resolveService() (*Service, error) {
	logger := builder.resolveLogger()

	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	return NewService(Dependencies{Logger: logger}, configuration)
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
