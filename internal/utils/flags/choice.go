package flags

import (
	"fmt"
	"strings"
)

const choiceSeparatorConstant = "|"

// FormatChoiceUsage builds a flag usage string listing the accepted values,
// with the default value capitalized inside the placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	displayChoices := make([]string, 0, len(choices))
	for _, choice := range choices {
		if strings.EqualFold(choice, defaultChoice) {
			displayChoices = append(displayChoices, strings.ToUpper(choice))
			continue
		}
		displayChoices = append(displayChoices, choice)
	}

	placeholder := "<" + strings.Join(displayChoices, choiceSeparatorConstant) + ">"
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf("`%s`", placeholder)
	}
	return fmt.Sprintf("`%s` %s", placeholder, description)
}
