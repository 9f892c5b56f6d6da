// Package jarwatcher indexes jars as they appear or change in the jar directory.
package jarwatcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/serially/pkg/log"
	"github.com/bft-labs/serially/pkg/serially"
)

// Config holds configuration options for the jar watcher plugin.
type Config struct {
	// DebounceDelay is how long a jar must stay unchanged before it is
	// indexed, so that files still being copied are not read.
	// Default: 500 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 500 * time.Millisecond}
}

// Plugin watches the jar directory tree and indexes new jars.
type Plugin struct {
	debounceDelay time.Duration

	mu      sync.Mutex
	dir     string
	indexer serially.CatalogIndexer
	logger  serially.Logger
	cancel  context.CancelFunc
}

// New creates a new jar watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultConfig().DebounceDelay
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "jarwatcher"
}

// Initialize starts watching cfg.JarDir.
func (p *Plugin) Initialize(ctx context.Context, cfg serially.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if cfg.JarDir == "" || cfg.Indexer == nil {
		logger.Warn("Jar watcher disabled: no jar directory or catalog configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(watcher, cfg.JarDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", cfg.JarDir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.dir = cfg.JarDir
	p.indexer = cfg.Indexer
	p.logger = logger
	p.cancel = cancel
	p.mu.Unlock()

	run := cfg.Go
	if run == nil {
		run = func(fn func()) { go fn() }
	}
	run(func() { p.watchLoop(watchCtx, watcher) })

	logger.Info("Watching " + cfg.JarDir + " for new jar files")
	return nil
}

// Shutdown stops the watch loop. Jars waiting out their debounce delay are
// not indexed.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	pending := make(map[string]time.Time)
	timer := time.NewTimer(p.debounceDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			p.handleEvent(watcher, event, pending)
			p.resetTimer(timer, pending)

		case <-timer.C:
			p.flush(ctx, pending, time.Now())
			p.resetTimer(timer, pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Jar watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, pending map[string]time.Time) {
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		delete(pending, event.Name)

	case event.Has(fsnotify.Create) && isDir(event.Name):
		// Files may land in a new directory before it is watched.
		if err := addTree(watcher, event.Name); err != nil {
			p.logger.Warn("Couldn't watch directory", log.String("dir", event.Name), log.Err(err))
		}
		_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() && serially.IsJar(path) {
				pending[path] = time.Now().Add(p.debounceDelay)
			}
			return nil
		})

	case (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && serially.IsJar(event.Name):
		pending[event.Name] = time.Now().Add(p.debounceDelay)
	}
}

// flush indexes every pending jar whose debounce delay has passed.
func (p *Plugin) flush(ctx context.Context, pending map[string]time.Time, now time.Time) {
	for path, due := range pending {
		if due.After(now) {
			continue
		}
		delete(pending, path)

		rel, err := filepath.Rel(p.dir, path)
		if err != nil {
			continue
		}
		handle := filepath.ToSlash(rel)
		changed, err := p.indexer.IndexFile(ctx, p.dir, handle)
		switch {
		case err != nil:
			p.logger.Warn("Couldn't index jar file", log.String("jar", handle), log.Err(err))
		case changed:
			p.logger.Info("Indexed " + handle)
		}
	}
}

func (p *Plugin) resetTimer(timer *time.Timer, pending map[string]time.Time) {
	var next time.Time
	for _, due := range pending {
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	if next.IsZero() {
		timer.Stop()
		return
	}
	timer.Reset(time.Until(next))
}

// addTree watches dir and its subdirectories.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

var _ serially.Plugin = (*Plugin)(nil)
