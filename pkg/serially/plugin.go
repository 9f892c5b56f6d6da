package serially

import (
	"context"

	"github.com/bft-labs/serially/internal/adapters/sqlite"
)

// Plugin extends a started session.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. Long-running work must be started with
	// cfg.Go and return when ctx is done.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin.
	Shutdown(ctx context.Context) error
}

// CatalogIndexer adds a single jar to the catalog.
type CatalogIndexer interface {
	// IndexFile adds the jar at dir/handle, or refreshes it when its
	// content changed, and reports whether the catalog changed.
	IndexFile(ctx context.Context, dir, handle string) (bool, error)
}

// PluginConfig is passed to plugins on Initialize.
type PluginConfig struct {
	JarDir  string
	Catalog string
	Indexer CatalogIndexer
	Logger  Logger

	// Go runs fn as a session worker. Stop waits for it before closing
	// the catalog.
	Go func(fn func())
}

// IsJar reports whether path names a JAR file.
func IsJar(path string) bool {
	return sqlite.IsJar(path)
}
