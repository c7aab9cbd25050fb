// Package workspace prepares the directory layout shared by build jobs:
// absolute path resolution with home expansion, a sanity check refusing to
// run from inside a checked-out tree, retention-based pruning of the
// temporary directory, and fast directory replacement that defers deletion
// of the displaced contents until the job finishes.
package workspace
