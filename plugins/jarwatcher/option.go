package jarwatcher

import "github.com/bft-labs/serially/pkg/serially"

// WithJarWatcher returns a serially Option that indexes jars copied into the
// jar directory while the session is started.
//
// Usage:
//
//	s, err := serially.New(cfg,
//	    jarwatcher.WithJarWatcher(jarwatcher.Config{
//	        DebounceDelay: time.Second,
//	    }),
//	)
func WithJarWatcher(cfg Config) serially.Option {
	return serially.WithPlugin(New(cfg))
}
