// Package pipeline coordinates the multi-stage deploy shared across build
// jobs: an atomically created lock directory serializes deploys, a
// key=value properties file inside it carries the deploy state between
// jobs, and each stage verifies it is a permitted next step before acting.
package pipeline
