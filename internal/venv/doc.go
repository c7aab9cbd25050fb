// Package venv provisions the isolated Python interpreter environments that
// build jobs run inside, including an optional debug-capable sibling and a
// stable default symlink.
package venv
