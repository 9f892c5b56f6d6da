// Package probe builds probe objects from catalogued classes: it registers
// artifacts with a classpath.Registry, allocates zero-initialized instances
// and encodes them as Java serialization streams.
package probe

import (
	"context"
	"path/filepath"

	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/log"
)

// Loader registers artifacts found in a directory with a registry.
type Loader struct {
	registry *classpath.Registry
	dir      string
	logger   log.Logger
}

// NewLoader returns a loader resolving artifact handles against dir.
func NewLoader(registry *classpath.Registry, dir string, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Loader{registry: registry, dir: dir, logger: logger}
}

// Path returns the file an artifact handle refers to.
func (l *Loader) Path(handle string) string {
	if filepath.IsAbs(handle) {
		return handle
	}
	return filepath.Join(l.dir, handle)
}

// EnsureLoaded makes the artifact's classes resolvable. It reports true when
// the artifact is registered, including when an earlier call registered it.
func (l *Loader) EnsureLoaded(ctx context.Context, handle string) bool {
	if ctx.Err() != nil {
		return false
	}
	path := l.Path(handle)
	added, err := l.registry.Load(path)
	if err != nil {
		l.logger.Debug("Couldn't dynamically load jar file", log.String("jar", path), log.Err(err))
		return false
	}
	if !added {
		l.logger.Debug("Jar file already loaded", log.String("jar", path))
	}
	return true
}
