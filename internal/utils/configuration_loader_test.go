package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linkedinyou/jenkins-tools/internal/utils"
)

const (
	testEnvironmentPrefixConstant     = "TESTTOOLS"
	testLogLevelKeyConstant           = "common.log_level"
	testSyncBranchKeyConstant         = "tools.sync.pull_branch"
	testConfigFileNameConstant        = "config.yaml"
	testConfigurationNameConstant     = "config"
	testConfigurationTypeConstant     = "yaml"
	testConfigContentTemplateConstant = "common:\n  log_level: %s\ntools:\n  sync:\n    pull_branch: %s\n"
)

type configurationFixture struct {
	Common struct {
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"common"`
	Tools struct {
		Sync struct {
			PullBranch string `mapstructure:"pull_branch"`
		} `mapstructure:"sync"`
	} `mapstructure:"tools"`
}

func writeConfigurationFile(testInstance *testing.T, directoryPath string, logLevel string, pullBranch string) string {
	testInstance.Helper()

	configurationFilePath := filepath.Join(directoryPath, testConfigFileNameConstant)
	configurationContent := fmt.Sprintf(testConfigContentTemplateConstant, logLevel, pullBranch)
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(configurationContent), 0o600))
	return configurationFilePath
}

func TestConfigurationLoaderLayersSources(testInstance *testing.T) {
	testCases := []struct {
		name                string
		embeddedLogLevel    string
		fileLogLevel        string
		environmentLogLevel string
		expectedLogLevel    string
	}{
		{name: "embedded_configuration_merges", embeddedLogLevel: "debug", expectedLogLevel: "debug"},
		{name: "defaults_apply_without_file", embeddedLogLevel: "info", expectedLogLevel: "info"},
		{name: "file_overrides_embedded", embeddedLogLevel: "info", fileLogLevel: "debug", expectedLogLevel: "debug"},
		{name: "environment_overrides_file", embeddedLogLevel: "info", fileLogLevel: "warn", environmentLogLevel: "error", expectedLogLevel: "error"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			tempDirectory := subtestInstance.TempDir()

			configurationFilePath := ""
			if len(testCase.fileLogLevel) > 0 {
				configurationFilePath = writeConfigurationFile(subtestInstance, tempDirectory, testCase.fileLogLevel, "master")
			}

			if len(testCase.environmentLogLevel) > 0 {
				environmentVariableName := testEnvironmentPrefixConstant + "_" + strings.ToUpper(strings.ReplaceAll(testLogLevelKeyConstant, ".", "_"))
				subtestInstance.Setenv(environmentVariableName, testCase.environmentLogLevel)
			}

			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{tempDirectory})
			embeddedContent := fmt.Sprintf(testConfigContentTemplateConstant, testCase.embeddedLogLevel, "master")
			configurationLoader.SetEmbeddedConfiguration([]byte(embeddedContent), testConfigurationTypeConstant)

			loadedConfiguration := configurationFixture{}
			metadata, loadError := configurationLoader.LoadConfiguration(configurationFilePath, map[string]any{testLogLevelKeyConstant: "info"}, &loadedConfiguration)
			require.NoError(subtestInstance, loadError)
			require.Equal(subtestInstance, testCase.expectedLogLevel, loadedConfiguration.Common.LogLevel)
			require.Equal(subtestInstance, "master", loadedConfiguration.Tools.Sync.PullBranch)

			if len(configurationFilePath) > 0 {
				require.Equal(subtestInstance, configurationFilePath, metadata.ConfigFileUsed)
			} else {
				require.Empty(subtestInstance, metadata.ConfigFileUsed)
			}
		})
	}
}

func TestConfigurationLoaderHonorsEnvironmentForNestedKeys(testInstance *testing.T) {
	tempDirectory := testInstance.TempDir()
	environmentVariableName := testEnvironmentPrefixConstant + "_" + strings.ToUpper(strings.ReplaceAll(testSyncBranchKeyConstant, ".", "_"))
	testInstance.Setenv(environmentVariableName, "release")

	configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{tempDirectory})

	loadedConfiguration := configurationFixture{}
	_, loadError := configurationLoader.LoadConfiguration("", map[string]any{testSyncBranchKeyConstant: "master"}, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "release", loadedConfiguration.Tools.Sync.PullBranch)
}

func TestConfigurationLoaderSearchesProvidedPaths(testInstance *testing.T) {
	workingDirectoryPath := testInstance.TempDir()
	fallbackDirectoryPath := testInstance.TempDir()

	configurationFilePath := writeConfigurationFile(testInstance, fallbackDirectoryPath, "warn", "master")

	configurationLoader := utils.NewConfigurationLoader(
		testConfigurationNameConstant,
		testConfigurationTypeConstant,
		testEnvironmentPrefixConstant,
		[]string{workingDirectoryPath, fallbackDirectoryPath},
	)

	loadedConfiguration := configurationFixture{}
	metadata, loadError := configurationLoader.LoadConfiguration("", map[string]any{testLogLevelKeyConstant: "info"}, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "warn", loadedConfiguration.Common.LogLevel)
	require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
}
