// Package config provides configuration management for the implementation
// store CLI.
package config

import (
	"path/filepath"
)

// Default configuration values.
const (
	// DefaultFormat is the manifest algorithm used when a command needs one
	// and none is given.
	DefaultFormat = "sha256new"

	// DefaultReadOnly makes committed entries read-only.
	DefaultReadOnly = true

	// DefaultTempMaxAge is how old a staging directory must be before
	// purge-temp removes it.
	DefaultTempMaxAge = "24h"

	// DefaultHashWorkers and DefaultAuditWorkers of zero mean tune to the
	// machine.
	DefaultHashWorkers  = 0
	DefaultAuditWorkers = 0

	// DefaultLogLevel is the file log level.
	DefaultLogLevel = "info"
)

// DefaultComponents holds the per-component log levels written by
// WriteDefault.
var DefaultComponents = map[string]string{
	"store":    "info",
	"manifest": "info",
	"archive":  "info",
	"cli":      "info",
}

// DefaultStorePath returns $XDG_CACHE_HOME/implstore/implementations.
func DefaultStorePath() string {
	return filepath.Join(CacheDir(), "implementations")
}
