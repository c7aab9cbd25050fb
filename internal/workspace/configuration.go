package workspace

import (
	"strings"
	"time"
)

const (
	workspaceRootConfigurationKeyConstant    = "root"
	tempDirectoryConfigurationKeyConstant    = "temp_directory"
	secretsDirectoryConfigurationKeyConstant = "secrets_directory"
	virtualenvRootConfigurationKeyConstant   = "virtualenv_root"
	tempRetentionDaysConfigurationKey        = "temp_retention_days"
	configurationKeySeparatorConstant        = "."

	defaultWorkspaceRootConstant     = "~/jobs"
	defaultTempDirectoryConstant     = "~/tmp"
	defaultSecretsDirectoryConstant  = "~/secrets"
	defaultVirtualenvRootConstant    = "~/env"
	defaultTempRetentionDaysConstant = 5

	hoursPerDayConstant = 24
)

// Configuration captures the build environment directory layout.
type Configuration struct {
	WorkspaceRoot     string `mapstructure:"root"`
	TempDirectory     string `mapstructure:"temp_directory"`
	SecretsDirectory  string `mapstructure:"secrets_directory"`
	VirtualenvRoot    string `mapstructure:"virtualenv_root"`
	TempRetentionDays int    `mapstructure:"temp_retention_days"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + configurationKeySeparatorConstant + workspaceRootConfigurationKeyConstant:    defaultWorkspaceRootConstant,
		configurationPrefix + configurationKeySeparatorConstant + tempDirectoryConfigurationKeyConstant:    defaultTempDirectoryConstant,
		configurationPrefix + configurationKeySeparatorConstant + secretsDirectoryConfigurationKeyConstant: defaultSecretsDirectoryConstant,
		configurationPrefix + configurationKeySeparatorConstant + virtualenvRootConfigurationKeyConstant:   defaultVirtualenvRootConstant,
		configurationPrefix + configurationKeySeparatorConstant + tempRetentionDaysConfigurationKey:        defaultTempRetentionDaysConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.WorkspaceRoot)) == 0 {
		resolvedConfiguration.WorkspaceRoot = defaultWorkspaceRootConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.TempDirectory)) == 0 {
		resolvedConfiguration.TempDirectory = defaultTempDirectoryConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.SecretsDirectory)) == 0 {
		resolvedConfiguration.SecretsDirectory = defaultSecretsDirectoryConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.VirtualenvRoot)) == 0 {
		resolvedConfiguration.VirtualenvRoot = defaultVirtualenvRootConstant
	}
	if resolvedConfiguration.TempRetentionDays <= 0 {
		resolvedConfiguration.TempRetentionDays = defaultTempRetentionDaysConstant
	}
	return resolvedConfiguration
}

// TempRetention returns how long temporary entries are kept before pruning.
func (configuration Configuration) TempRetention() time.Duration {
	return time.Duration(configuration.TempRetentionDays) * hoursPerDayConstant * time.Hour
}
