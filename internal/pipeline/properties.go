package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	propertiesFileNameConstant = "deploy.prop"

	gitRevisionPropertyKeyConstant      = "GIT_REVISION"
	versionNamePropertyKeyConstant      = "VERSION_NAME"
	deployerEmailPropertyKeyConstant    = "DEPLOYER_EMAIL"
	deployerUsernamePropertyKeyConstant = "DEPLOYER_USERNAME"
	lockAcquireTimePropertyKeyConstant  = "LOCK_ACQUIRE_TIME"
	tokenPropertyKeyConstant            = "TOKEN"
	possibleNextStepsPropertyKey        = "POSSIBLE_NEXT_STEPS"
	lastErrorPropertyKeyConstant        = "LAST_ERROR"

	allStepsWildcardConstant    = "<all>"
	nextStepsSeparatorConstant  = ","
	emailUsernameSeparatorConst = "@"
	versionTimestampLayoutConst = "060102-1504"
	versionRevisionPrefixLength = 8
	versionNameTemplateConstant = "%s-%s"

	propertiesReadErrorTemplateConstant  = "unable to read deploy properties from %s: %w"
	propertiesWriteErrorTemplateConstant = "unable to write deploy properties to %s: %w"
)

// Recovery stages that must always remain reachable regardless of pipeline state.
var alwaysPermittedSteps = []string{stageFinishWithUnlockConstant, stageRelockConstant}

// Properties is the key=value state file shared between pipeline jobs
// through the lock directory. Jenkins jobs read it directly, so the on-disk
// format stays plain key=value lines.
type Properties struct {
	GitRevision       string
	VersionName       string
	DeployerEmail     string
	DeployerUsername  string
	LockAcquireTime   string
	Token             string
	PossibleNextSteps []string
	LastError         string
}

// NewProperties derives the initial deploy state from the revision and deployer.
func NewProperties(gitRevision string, deployerEmail string, acquireTime time.Time) Properties {
	return Properties{
		GitRevision:      gitRevision,
		VersionName:      VersionName(gitRevision, acquireTime),
		DeployerEmail:    deployerEmail,
		DeployerUsername: usernameFromEmail(deployerEmail),
		LockAcquireTime:  fmt.Sprintf("%d", acquireTime.Unix()),
		Token:            fmt.Sprintf("%d", acquireTime.UnixNano()),
	}
}

// VersionName builds the dated deploy version identifier for a revision.
func VersionName(gitRevision string, at time.Time) string {
	revisionPrefix := gitRevision
	if len(revisionPrefix) > versionRevisionPrefixLength {
		revisionPrefix = revisionPrefix[:versionRevisionPrefixLength]
	}
	return fmt.Sprintf(versionNameTemplateConstant, at.Format(versionTimestampLayoutConst), revisionPrefix)
}

// PermitsStep reports whether the stage may run given the recorded next steps.
// The recovery stages are always permitted.
func (properties Properties) PermitsStep(stageName string) bool {
	for _, permittedStep := range alwaysPermittedSteps {
		if stageName == permittedStep {
			return true
		}
	}
	for _, permittedStep := range properties.PossibleNextSteps {
		if permittedStep == allStepsWildcardConstant || permittedStep == stageName {
			return true
		}
	}
	return false
}

// ReadProperties loads the deploy state from the lock directory.
func ReadProperties(lockDirectory string) (Properties, error) {
	propertiesFilePath := filepath.Join(lockDirectory, propertiesFileNameConstant)
	propertyValues, readError := godotenv.Read(propertiesFilePath)
	if readError != nil {
		return Properties{}, fmt.Errorf(propertiesReadErrorTemplateConstant, propertiesFilePath, readError)
	}

	loadedProperties := Properties{
		GitRevision:      propertyValues[gitRevisionPropertyKeyConstant],
		VersionName:      propertyValues[versionNamePropertyKeyConstant],
		DeployerEmail:    propertyValues[deployerEmailPropertyKeyConstant],
		DeployerUsername: propertyValues[deployerUsernamePropertyKeyConstant],
		LockAcquireTime:  propertyValues[lockAcquireTimePropertyKeyConstant],
		Token:            propertyValues[tokenPropertyKeyConstant],
		LastError:        propertyValues[lastErrorPropertyKeyConstant],
	}
	if nextStepsValue := propertyValues[possibleNextStepsPropertyKey]; len(nextStepsValue) > 0 {
		loadedProperties.PossibleNextSteps = strings.Split(nextStepsValue, nextStepsSeparatorConstant)
	}
	return loadedProperties, nil
}

// Write persists the deploy state into the lock directory.
func (properties Properties) Write(lockDirectory string) error {
	propertiesFilePath := filepath.Join(lockDirectory, propertiesFileNameConstant)
	propertyValues := map[string]string{
		gitRevisionPropertyKeyConstant:      properties.GitRevision,
		versionNamePropertyKeyConstant:      properties.VersionName,
		deployerEmailPropertyKeyConstant:    properties.DeployerEmail,
		deployerUsernamePropertyKeyConstant: properties.DeployerUsername,
		lockAcquireTimePropertyKeyConstant:  properties.LockAcquireTime,
		tokenPropertyKeyConstant:            properties.Token,
		possibleNextStepsPropertyKey:        strings.Join(properties.PossibleNextSteps, nextStepsSeparatorConstant),
		lastErrorPropertyKeyConstant:        properties.LastError,
	}
	if writeError := godotenv.Write(propertyValues, propertiesFilePath); writeError != nil {
		return fmt.Errorf(propertiesWriteErrorTemplateConstant, propertiesFilePath, writeError)
	}
	return nil
}

// PropertiesFileExists reports whether the lock directory holds a deploy state file.
func PropertiesFileExists(lockDirectory string) bool {
	_, statError := os.Stat(filepath.Join(lockDirectory, propertiesFileNameConstant))
	return statError == nil
}

func usernameFromEmail(emailAddress string) string {
	separatorIndex := strings.Index(emailAddress, emailUsernameSeparatorConst)
	if separatorIndex < 0 {
		return emailAddress
	}
	return emailAddress[:separatorIndex]
}
