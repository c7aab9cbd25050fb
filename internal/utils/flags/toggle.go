package flags

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const (
	toggleTrueCanonicalValueConstant  = "true"
	toggleFalseCanonicalValueConstant = "false"
	toggleParseErrorTemplateConstant  = "invalid toggle value %q"
	toggleEnabledPlaceholderConstant  = "<YES|no>"
	toggleDisabledPlaceholderConstant = "<yes|NO>"
)

var (
	toggleTrueLiterals = map[string]struct{}{
		toggleTrueCanonicalValueConstant: {},
		"yes":                            {},
		"on":                             {},
		"1":                              {},
	}
	toggleFalseLiterals = map[string]struct{}{
		toggleFalseCanonicalValueConstant: {},
		"no":                              {},
		"off":                             {},
		"0":                               {},
	}

	registeredToggleNamesMutex sync.RWMutex
	registeredToggleNames      = map[string]struct{}{}
)

// AddToggleFlag registers a boolean flag that accepts yes/no style values and
// defaults to true when supplied without a value.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, flagName string, defaultValue bool, usage string) {
	if flagSet == nil || len(flagName) == 0 {
		return
	}

	flagSet.Var(newToggleFlagValue(defaultValue, target), flagName, usage)

	registeredFlag := flagSet.Lookup(flagName)
	if registeredFlag == nil {
		return
	}
	registeredFlag.NoOptDefVal = toggleTrueCanonicalValueConstant
	registeredFlag.Usage = formatToggleUsage(usage, defaultValue)

	registeredToggleNamesMutex.Lock()
	registeredToggleNames[flagName] = struct{}{}
	registeredToggleNamesMutex.Unlock()
}

// NormalizeToggleArguments rewrites "--flag value" into "--flag=value" for
// registered toggle flags so pflag does not treat the value as a positional
// argument.
func NormalizeToggleArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	normalizedArguments := make([]string, 0, len(arguments))
	argumentIndex := 0
	for argumentIndex < len(arguments) {
		currentArgument := arguments[argumentIndex]
		if currentArgument == "--" {
			normalizedArguments = append(normalizedArguments, arguments[argumentIndex:]...)
			break
		}

		if rewrittenArgument, consumedCount := rewriteToggleArgument(currentArgument, arguments, argumentIndex); consumedCount > 0 {
			normalizedArguments = append(normalizedArguments, rewrittenArgument)
			argumentIndex += consumedCount
			continue
		}

		normalizedArguments = append(normalizedArguments, currentArgument)
		argumentIndex++
	}

	return normalizedArguments
}

func formatToggleUsage(description string, defaultValue bool) string {
	placeholder := toggleDisabledPlaceholderConstant
	if defaultValue {
		placeholder = toggleEnabledPlaceholderConstant
	}
	trimmedDescription := strings.TrimSpace(description)
	if len(trimmedDescription) == 0 {
		return fmt.Sprintf("`%s`", placeholder)
	}
	return fmt.Sprintf("`%s` %s", placeholder, trimmedDescription)
}

type toggleFlagValue struct {
	currentValue bool
	target       *bool
}

func newToggleFlagValue(defaultValue bool, target *bool) *toggleFlagValue {
	if target != nil {
		*target = defaultValue
	}
	return &toggleFlagValue{currentValue: defaultValue, target: target}
}

func (value *toggleFlagValue) Set(rawValue string) error {
	parsedValue, parseError := parseToggleValue(rawValue)
	if parseError != nil {
		return parseError
	}

	value.currentValue = parsedValue
	if value.target != nil {
		*value.target = parsedValue
	}
	return nil
}

func (value *toggleFlagValue) String() string {
	if value != nil && value.currentValue {
		return toggleTrueCanonicalValueConstant
	}
	return toggleFalseCanonicalValueConstant
}

func (value *toggleFlagValue) Type() string {
	return "bool"
}

func parseToggleValue(rawValue string) (bool, error) {
	trimmedValue := strings.TrimSpace(rawValue)
	if len(trimmedValue) == 0 {
		trimmedValue = toggleTrueCanonicalValueConstant
	}

	normalizedValue := strings.ToLower(trimmedValue)
	if _, isTrue := toggleTrueLiterals[normalizedValue]; isTrue {
		return true, nil
	}
	if _, isFalse := toggleFalseLiterals[normalizedValue]; isFalse {
		return false, nil
	}

	return false, fmt.Errorf(toggleParseErrorTemplateConstant, rawValue)
}

func rewriteToggleArgument(currentArgument string, arguments []string, argumentIndex int) (string, int) {
	if !strings.HasPrefix(currentArgument, "--") {
		return "", 0
	}
	trimmedArgument := strings.TrimPrefix(currentArgument, "--")
	if len(trimmedArgument) == 0 || strings.Contains(trimmedArgument, "=") {
		if isRegisteredToggleName(strings.SplitN(trimmedArgument, "=", 2)[0]) {
			return currentArgument, 1
		}
		return "", 0
	}
	if !isRegisteredToggleName(trimmedArgument) {
		return "", 0
	}
	if argumentIndex+1 >= len(arguments) || strings.HasPrefix(arguments[argumentIndex+1], "-") {
		return currentArgument, 1
	}
	return currentArgument + "=" + arguments[argumentIndex+1], 2
}

func isRegisteredToggleName(flagName string) bool {
	registeredToggleNamesMutex.RLock()
	defer registeredToggleNamesMutex.RUnlock()
	_, exists := registeredToggleNames[flagName]
	return exists
}
