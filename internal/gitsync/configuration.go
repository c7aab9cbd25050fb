package gitsync

import (
	"strings"
	"time"
)

const (
	cacheRootConfigurationKeyConstant        = "cache_root"
	remoteNameConfigurationKeyConstant       = "remote_name"
	pullBranchConfigurationKeyConstant       = "pull_branch"
	linkedSubmodulesConfigurationKeyConstant = "linked_submodules"
	fetchTimeoutConfigurationKeyConstant     = "fetch_timeout_minutes"
	commandTimeoutConfigurationKeyConstant   = "command_timeout_minutes"
	lockWaitConfigurationKeyConstant         = "lock_wait_seconds"
	configurationKeySeparatorConstant        = "."

	defaultRemoteNameConstant          = "origin"
	defaultPullBranchConstant          = "master"
	defaultFetchTimeoutMinutesConstant = 120
	defaultCommandTimeoutMinutes       = 60
	defaultLockWaitSecondsConstant     = 7230
)

// Default linked submodules sharing the repository cache instead of standard checkouts.
var defaultLinkedSubmoduleNames = []string{"intl/translations", "khan-exercises"}

// Configuration captures the repository synchronization settings.
type Configuration struct {
	CacheRoot             string   `mapstructure:"cache_root"`
	RemoteName            string   `mapstructure:"remote_name"`
	PullBranch            string   `mapstructure:"pull_branch"`
	LinkedSubmodules      []string `mapstructure:"linked_submodules"`
	FetchTimeoutMinutes   int      `mapstructure:"fetch_timeout_minutes"`
	CommandTimeoutMinutes int      `mapstructure:"command_timeout_minutes"`
	LockWaitSeconds       int      `mapstructure:"lock_wait_seconds"`
}

// DefaultConfigurationValues exposes configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + configurationKeySeparatorConstant + remoteNameConfigurationKeyConstant:       defaultRemoteNameConstant,
		configurationPrefix + configurationKeySeparatorConstant + pullBranchConfigurationKeyConstant:       defaultPullBranchConstant,
		configurationPrefix + configurationKeySeparatorConstant + linkedSubmodulesConfigurationKeyConstant: append([]string{}, defaultLinkedSubmoduleNames...),
		configurationPrefix + configurationKeySeparatorConstant + fetchTimeoutConfigurationKeyConstant:     defaultFetchTimeoutMinutesConstant,
		configurationPrefix + configurationKeySeparatorConstant + commandTimeoutConfigurationKeyConstant:   defaultCommandTimeoutMinutes,
		configurationPrefix + configurationKeySeparatorConstant + lockWaitConfigurationKeyConstant:         defaultLockWaitSecondsConstant,
	}
}

// WithDefaults returns a copy of the configuration with unset values replaced by defaults.
func (configuration Configuration) WithDefaults() Configuration {
	resolvedConfiguration := configuration
	if len(strings.TrimSpace(resolvedConfiguration.RemoteName)) == 0 {
		resolvedConfiguration.RemoteName = defaultRemoteNameConstant
	}
	if len(strings.TrimSpace(resolvedConfiguration.PullBranch)) == 0 {
		resolvedConfiguration.PullBranch = defaultPullBranchConstant
	}
	if resolvedConfiguration.LinkedSubmodules == nil {
		resolvedConfiguration.LinkedSubmodules = append([]string{}, defaultLinkedSubmoduleNames...)
	}
	if resolvedConfiguration.FetchTimeoutMinutes <= 0 {
		resolvedConfiguration.FetchTimeoutMinutes = defaultFetchTimeoutMinutesConstant
	}
	if resolvedConfiguration.CommandTimeoutMinutes <= 0 {
		resolvedConfiguration.CommandTimeoutMinutes = defaultCommandTimeoutMinutes
	}
	if resolvedConfiguration.LockWaitSeconds <= 0 {
		resolvedConfiguration.LockWaitSeconds = defaultLockWaitSecondsConstant
	}
	return resolvedConfiguration
}

// FetchTimeout returns the bounded duration for fetch operations.
func (configuration Configuration) FetchTimeout() time.Duration {
	return time.Duration(configuration.FetchTimeoutMinutes) * time.Minute
}

// CommandTimeout returns the bounded duration for non-fetch git operations.
func (configuration Configuration) CommandTimeout() time.Duration {
	return time.Duration(configuration.CommandTimeoutMinutes) * time.Minute
}

// LockWait returns the bounded duration for fetch lock acquisition.
func (configuration Configuration) LockWait() time.Duration {
	return time.Duration(configuration.LockWaitSeconds) * time.Second
}

// IsLinkedSubmodule reports whether the provided submodule path uses the shared cache mechanism.
func (configuration Configuration) IsLinkedSubmodule(submodulePath string) bool {
	trimmedPath := strings.TrimSpace(submodulePath)
	for _, linkedSubmoduleName := range configuration.LinkedSubmodules {
		if trimmedPath == strings.TrimSpace(linkedSubmoduleName) {
			return true
		}
	}
	return false
}
