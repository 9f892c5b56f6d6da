package domain

import "errors"

// Domain errors represent error conditions in the serially domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("serially: invalid configuration")

	// ErrEmptyCatalog is returned when the catalog holds no classes at all.
	ErrEmptyCatalog = errors.New("serially: no jar files found, please run `serially index` first")

	// ErrNoFilterMatch is returned when the filter excludes every catalogued class.
	ErrNoFilterMatch = errors.New("serially: no jar files found that match the filter")

	// ErrTargetPatched is returned when the remote target rejects the probe
	// stub type, which every later probe would hit as well.
	ErrTargetPatched = errors.New("serially: target is using a patched Java version")

	// ErrCatalogNotFound is returned when the catalog file does not exist.
	ErrCatalogNotFound = errors.New("serially: catalog not found")

	// ErrAlreadyRunning is returned when starting a session that is running.
	ErrAlreadyRunning = errors.New("serially: already running")

	// ErrNotRunning is returned when stopping a session that is not running.
	ErrNotRunning = errors.New("serially: not running")

	// ErrShutdownTimeout is returned when background work outlives the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("serially: shutdown timeout exceeded")
)
