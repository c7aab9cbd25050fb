// Package gitsync serializes git operations for build jobs sharing
// repository checkouts. Fetches take a bounded per-repository file lock so
// concurrent jobs never corrupt each other, new workspaces clone through a
// shared object cache, and destructive checkouts, rebases, pushes, and
// submodule updates follow a fixed discipline that leaves the tree usable
// for the next job even when an operation fails.
package gitsync
