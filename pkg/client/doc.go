// Package client wraps the keel admin API for CLI usage.
package client
