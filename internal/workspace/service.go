package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	pathutils "github.com/linkedinyou/jenkins-tools/internal/utils/path"
)

const (
	loggerMissingMessageConstant       = "logger not configured"
	inspectorMissingMessageConstant    = "work tree inspector not configured"
	insideWorkTreeMessageConstant      = "refusing to run inside a version-controlled directory"
	sourcePathRequiredMessageConstant  = "source path must be provided"
	destinationRequiredMessageConstant = "destination path must be provided"

	directoryCreationErrorTemplateConstant = "unable to create directory %s: %w"
	sanityCheckErrorTemplateConstant       = "workspace sanity check failed for %s: %w"
	temporaryListingErrorTemplateConstant  = "unable to list temporary directory %s: %w"
	parkDestinationErrorTemplateConstant   = "unable to park %s before replacement: %w"
	moveErrorTemplateConstant              = "unable to move %s to %s: %w"

	graveyardDirectoryNameConstant = ".graveyard"
	graveyardEntryTemplateConstant = "%s.%d.%d"
	directoryPermissionsConstant   = 0o755

	workspaceRootEnvironmentNameConstant = "WORKSPACE_ROOT"
	tempDirectoryEnvironmentNameConstant = "TMPDIR"

	logFieldPathConstant    = "path"
	logFieldEntriesConstant = "pruned_entries"
	logMessagePrunedEntries = "temporary directory pruned"
)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrInspectorNotConfigured indicates the work tree inspector dependency was missing.
var ErrInspectorNotConfigured = errors.New(inspectorMissingMessageConstant)

// ErrInsideWorkTree indicates the process started inside a version-controlled directory.
var ErrInsideWorkTree = errors.New(insideWorkTreeMessageConstant)

// ErrSourcePathRequired indicates a move source argument was empty.
var ErrSourcePathRequired = errors.New(sourcePathRequiredMessageConstant)

// ErrDestinationPathRequired indicates a move destination argument was empty.
var ErrDestinationPathRequired = errors.New(destinationRequiredMessageConstant)

// WorkTreeInspector reports whether a directory lives inside a version-controlled tree.
type WorkTreeInspector interface {
	IsInsideWorkTree(executionContext context.Context, directoryPath string) (bool, error)
}

// Dependencies enumerates the collaborators required by the workspace service.
type Dependencies struct {
	Logger       *zap.Logger
	Inspector    WorkTreeInspector
	HomeExpander *pathutils.HomeExpander
}

// ResolvedPaths holds the absolute directory layout of a build environment.
type ResolvedPaths struct {
	WorkspaceRoot    string
	TempDirectory    string
	SecretsDirectory string
	VirtualenvRoot   string
}

// EnvironmentVariables returns the derived environment for child processes.
func (paths ResolvedPaths) EnvironmentVariables() map[string]string {
	return map[string]string{
		workspaceRootEnvironmentNameConstant: paths.WorkspaceRoot,
		tempDirectoryEnvironmentNameConstant: paths.TempDirectory,
	}
}

// Service prepares and maintains the build environment directory layout.
type Service struct {
	logger        *zap.Logger
	inspector     WorkTreeInspector
	homeExpander  *pathutils.HomeExpander
	configuration Configuration
	parkedEntries []string
}

// NewService constructs a workspace Service from dependencies and configuration.
func NewService(dependencies Dependencies, configuration Configuration) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Inspector == nil {
		return nil, ErrInspectorNotConfigured
	}

	homeExpander := dependencies.HomeExpander
	if homeExpander == nil {
		homeExpander = pathutils.NewHomeExpander()
	}

	return &Service{
		logger:        dependencies.Logger,
		inspector:     dependencies.Inspector,
		homeExpander:  homeExpander,
		configuration: configuration.WithDefaults(),
	}, nil
}

// Resolve expands the configured directory layout to absolute paths, refuses
// to proceed when the working directory is version controlled, and creates
// the directories. The sanity check protects the workspace root from being
// derived relative to a checked-out tree.
func (service *Service) Resolve(executionContext context.Context, workingDirectory string) (ResolvedPaths, error) {
	insideWorkTree, inspectionError := service.inspector.IsInsideWorkTree(executionContext, workingDirectory)
	if inspectionError != nil {
		return ResolvedPaths{}, fmt.Errorf(sanityCheckErrorTemplateConstant, workingDirectory, inspectionError)
	}
	if insideWorkTree {
		return ResolvedPaths{}, fmt.Errorf(sanityCheckErrorTemplateConstant, workingDirectory, ErrInsideWorkTree)
	}

	resolvedPaths := ResolvedPaths{
		WorkspaceRoot:    service.expandPath(service.configuration.WorkspaceRoot),
		TempDirectory:    service.expandPath(service.configuration.TempDirectory),
		SecretsDirectory: service.expandPath(service.configuration.SecretsDirectory),
		VirtualenvRoot:   service.expandPath(service.configuration.VirtualenvRoot),
	}

	directoriesToCreate := []string{
		resolvedPaths.WorkspaceRoot,
		resolvedPaths.TempDirectory,
		resolvedPaths.SecretsDirectory,
		resolvedPaths.VirtualenvRoot,
	}
	for _, directoryPath := range directoriesToCreate {
		if creationError := os.MkdirAll(directoryPath, directoryPermissionsConstant); creationError != nil {
			return ResolvedPaths{}, fmt.Errorf(directoryCreationErrorTemplateConstant, directoryPath, creationError)
		}
	}

	return resolvedPaths, nil
}

// PruneTemporaryFiles removes temporary entries older than the retention
// window. Entries that vanish while pruning are ignored.
func (service *Service) PruneTemporaryFiles(referenceTime time.Time) error {
	tempDirectory := service.expandPath(service.configuration.TempDirectory)
	directoryEntries, listingError := os.ReadDir(tempDirectory)
	if listingError != nil {
		if os.IsNotExist(listingError) {
			return nil
		}
		return fmt.Errorf(temporaryListingErrorTemplateConstant, tempDirectory, listingError)
	}

	retentionCutoff := referenceTime.Add(-service.configuration.TempRetention())
	prunedEntryCount := 0
	for _, directoryEntry := range directoryEntries {
		entryInformation, informationError := directoryEntry.Info()
		if informationError != nil {
			continue
		}
		if entryInformation.ModTime().After(retentionCutoff) {
			continue
		}
		entryPath := filepath.Join(tempDirectory, directoryEntry.Name())
		if removalError := os.RemoveAll(entryPath); removalError != nil && !os.IsNotExist(removalError) {
			return fmt.Errorf(temporaryListingErrorTemplateConstant, entryPath, removalError)
		}
		prunedEntryCount++
	}

	if prunedEntryCount > 0 {
		service.logger.Info(
			logMessagePrunedEntries,
			zap.String(logFieldPathConstant, tempDirectory),
			zap.Int(logFieldEntriesConstant, prunedEntryCount),
		)
	}
	return nil
}

// FastMove replaces destination with source without waiting for the old
// destination to be deleted. The previous destination is parked in the
// temporary graveyard and removed by SweepParkedEntries at process exit or
// by retention pruning.
func (service *Service) FastMove(sourcePath string, destinationPath string) error {
	if len(sourcePath) == 0 {
		return ErrSourcePathRequired
	}
	if len(destinationPath) == 0 {
		return ErrDestinationPathRequired
	}

	graveyardDirectory := filepath.Join(service.expandPath(service.configuration.TempDirectory), graveyardDirectoryNameConstant)
	if creationError := os.MkdirAll(graveyardDirectory, directoryPermissionsConstant); creationError != nil {
		return fmt.Errorf(directoryCreationErrorTemplateConstant, graveyardDirectory, creationError)
	}

	if _, statError := os.Stat(destinationPath); statError == nil {
		parkedEntryName := fmt.Sprintf(graveyardEntryTemplateConstant, filepath.Base(destinationPath), os.Getpid(), len(service.parkedEntries))
		parkedEntryPath := filepath.Join(graveyardDirectory, parkedEntryName)
		if parkError := os.Rename(destinationPath, parkedEntryPath); parkError != nil {
			return fmt.Errorf(parkDestinationErrorTemplateConstant, destinationPath, parkError)
		}
		service.parkedEntries = append(service.parkedEntries, parkedEntryPath)
	}

	if moveError := os.Rename(sourcePath, destinationPath); moveError != nil {
		return fmt.Errorf(moveErrorTemplateConstant, sourcePath, destinationPath, moveError)
	}
	return nil
}

// ParkedEntries lists graveyard paths awaiting removal.
func (service *Service) ParkedEntries() []string {
	return append([]string{}, service.parkedEntries...)
}

// SweepParkedEntries removes graveyard entries parked by FastMove. Intended
// to run when the calling process finishes.
func (service *Service) SweepParkedEntries() {
	for _, parkedEntryPath := range service.parkedEntries {
		os.RemoveAll(parkedEntryPath)
	}
	service.parkedEntries = nil
}

func (service *Service) expandPath(candidatePath string) string {
	expandedPath := service.homeExpander.Expand(candidatePath)
	absolutePath, absoluteError := filepath.Abs(expandedPath)
	if absoluteError != nil {
		return expandedPath
	}
	return absolutePath
}
