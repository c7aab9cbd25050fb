// Package jobs loads declarative CI job definitions from YAML files and
// executes their steps sequentially against the synchronization toolkit.
package jobs
