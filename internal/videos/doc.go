// Package videos refreshes the repository's video list files from the video
// platform's metadata and publishes the result with an automated commit.
package videos
