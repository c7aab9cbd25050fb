// Package secrets decrypts the build credentials file into a private
// directory and exposes it to child interpreters through a search-path
// environment variable. Decryption is idempotent per process.
package secrets
