package serially

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/serially/internal/adapters/fs"
	"github.com/bft-labs/serially/internal/adapters/jvm"
	"github.com/bft-labs/serially/internal/adapters/rmi"
	"github.com/bft-labs/serially/internal/adapters/sqlite"
	"github.com/bft-labs/serially/internal/app"
	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/internal/ports"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/jrmp"
	"github.com/bft-labs/serially/pkg/probe"
)

// Mode selects what a run does with the encoded probes.
type Mode = domain.Mode

const (
	// ModeLocal writes each jar's first encoding to a CSV file.
	ModeLocal = domain.ModeLocal
	// ModeRemote sends encodings to a JMX RMI endpoint.
	ModeRemote = domain.ModeRemote
)

// Summary counts what a run did.
type Summary = domain.RunSummary

// IndexResult reports what an indexing pass added to the catalog.
type IndexResult = sqlite.IndexResult

// JarInfo summarizes one catalogued jar.
type JarInfo = sqlite.JarInfo

// Errors returned by a Session. Check them with errors.Is.
var (
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrEmptyCatalog    = domain.ErrEmptyCatalog
	ErrNoFilterMatch   = domain.ErrNoFilterMatch
	ErrTargetPatched   = domain.ErrTargetPatched
	ErrCatalogNotFound = domain.ErrCatalogNotFound
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
)

// Config holds the configuration of a Session.
type Config struct {
	Mode Mode

	// Filter restricts runs to classes whose name contains it.
	Filter string

	// Host and Port address the RMI registry. Only used in remote mode.
	Host string
	Port int

	// JarDir holds the catalogued jars. Catalog handles are relative to it.
	JarDir string

	// Catalog is the path of the SQLite catalog.
	Catalog string

	// OutputDir receives the local mode CSV file.
	OutputDir string

	// Timeout bounds each RMI connection. Zero disables deadlines.
	Timeout time.Duration

	// UseRegistryHost dials the registry host instead of the host the
	// server stub names.
	UseRegistryHost bool

	// Workers bounds concurrent jar parsing while indexing.
	Workers int
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.JarDir == "" {
		return fmt.Errorf("%w: jar directory is required", ErrInvalidConfig)
	}
	if c.Catalog == "" {
		return fmt.Errorf("%w: catalog path is required", ErrInvalidConfig)
	}
	switch c.Mode {
	case ModeLocal:
		if c.Host != "" || c.Port != 0 {
			return fmt.Errorf("%w: host and port are only used in remote mode", ErrInvalidConfig)
		}
	case ModeRemote:
		if c.Host == "" || c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("%w: remote mode requires a host and a port", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Session enumerates catalogued jars and maintains the catalog. Jars loaded
// by one Run stay loaded for later runs of the same Session.
type Session struct {
	config    Config
	opts      options
	logger    ports.Logger
	registry  *classpath.Registry
	lifecycle *app.Lifecycle

	mu sync.Mutex

	ixMu    sync.Mutex
	indexer *sqlite.Indexer
}

// New creates a Session. It returns ErrInvalidConfig for invalid configuration.
func New(cfg Config, opts ...Option) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		config:   cfg,
		opts:     o,
		logger:   o.logger,
		registry: classpath.NewRegistry(),
	}
	s.lifecycle = app.NewLifecycle(o.logger, func(previous, current app.State, reason string) {
		if o.stateHandler != nil {
			o.stateHandler(convertState(previous), convertState(current), reason)
		}
	})
	return s, nil
}

// Run enumerates the catalog once. It returns ErrTargetPatched when the
// remote target is not vulnerable, and ErrEmptyCatalog or ErrNoFilterMatch
// when there is nothing to enumerate.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	runID := s.opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	s.logger.Debug("starting run",
		ports.String("run_id", runID),
		ports.String("mode", string(s.config.Mode)),
		ports.String("catalog", s.config.Catalog),
	)

	probes := jvm.NewProbes(s.registry, s.logger)
	deps := app.EngineDeps{
		Catalog:      sqlite.NewCatalog(s.config.Catalog),
		Loader:       probe.NewLoader(s.registry, s.config.JarDir, s.logger),
		Instantiator: probes,
		Serializer:   probes,
		Logger:       s.logger,
	}

	if s.config.Mode == ModeLocal {
		out, err := fs.CreateOutputFile(s.config.OutputDir, s.opts.now())
		if err != nil {
			s.logger.Error("Couldn't open CSV file", ports.Err(err))
			return Summary{RunID: runID, Mode: s.config.Mode}, err
		}
		defer func() {
			if err := out.Close(); err != nil {
				s.logger.Error("Couldn't close CSV file", ports.Err(err))
			}
		}()
		deps.Sink = out
	} else {
		deps.Prober = rmi.NewProber(s.config.Host, s.config.Port, jrmp.Options{
			Timeout:         s.config.Timeout,
			UseRegistryHost: s.config.UseRegistryHost,
		}, s.logger)
	}

	engine, err := app.NewEngine(app.EngineConfig{
		Mode:   s.config.Mode,
		Filter: s.config.Filter,
		RunID:  runID,
		JarDir: s.config.JarDir,
	}, deps)
	if err != nil {
		return Summary{RunID: runID, Mode: s.config.Mode}, err
	}
	return engine.Run(ctx)
}

// Index adds the jars in the jar directory that the catalog does not list
// yet. It creates the catalog if needed.
func (s *Session) Index(ctx context.Context) (IndexResult, error) {
	ix, err := s.catalogIndexer()
	if err != nil {
		return IndexResult{}, err
	}
	s.logger.Info("Indexing jars from " + s.config.JarDir + "..")
	res, err := ix.IndexDir(ctx, s.config.JarDir)
	if err != nil {
		return res, err
	}
	if len(res.Added) > 0 {
		s.logger.Info(fmt.Sprintf("Added %d jars with %d classes to %s", len(res.Added), res.Classes, s.config.Catalog))
	}
	return res, nil
}

// Jars lists catalogued jars. See Config.Filter for the meaning of filter.
func (s *Session) Jars(ctx context.Context, filter string) ([]JarInfo, error) {
	return sqlite.NewCatalog(s.config.Catalog).Jars(ctx, filter)
}

// Start initializes the registered plugins. They run until Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	ix, err := s.catalogIndexer()
	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "open catalog: "+err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		JarDir:  s.config.JarDir,
		Catalog: s.config.Catalog,
		Indexer: ix,
		Logger:  s.logger,
		Go:      s.lifecycle.Go,
	}
	for i, p := range s.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			cancel()
			s.shutdownPlugins(s.opts.plugins[:i])
			_ = s.lifecycle.Wait(app.ShutdownTimeout)
			_ = s.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return fmt.Errorf("initialize %s: %w", p.Name(), err)
		}
		s.logger.Debug("plugin initialized", ports.String("plugin", p.Name()))
	}

	return s.lifecycle.TransitionTo(app.StateRunning, "plugins initialized")
}

// Stop shuts the plugins down and waits for their workers.
// Returns ErrShutdownTimeout if they do not finish in time.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStop() {
		return ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		return err
	}

	s.lifecycle.Cancel()
	s.shutdownPlugins(s.opts.plugins)
	err := s.lifecycle.Wait(app.ShutdownTimeout)

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
func (s *Session) Status() State {
	return convertState(s.lifecycle.State())
}

// Close releases the catalog and the loaded jars. A started session must be
// stopped first.
func (s *Session) Close() error {
	if s.Status() == StateRunning {
		return fmt.Errorf("%w: stop the session before closing it", ErrAlreadyRunning)
	}
	var errs []error
	s.ixMu.Lock()
	if s.indexer != nil {
		errs = append(errs, s.indexer.Close())
		s.indexer = nil
	}
	s.ixMu.Unlock()
	errs = append(errs, s.registry.Close())
	return errors.Join(errs...)
}

func (s *Session) catalogIndexer() (*sqlite.Indexer, error) {
	s.ixMu.Lock()
	defer s.ixMu.Unlock()
	if s.indexer != nil {
		return s.indexer, nil
	}
	ix, err := sqlite.OpenIndexer(s.config.Catalog, s.logger, sqlite.WithWorkers(s.config.Workers))
	if err != nil {
		return nil, err
	}
	s.indexer = ix
	return ix, nil
}

// shutdownPlugins shuts plugins down in reverse order.
func (s *Session) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			s.logger.Debug("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
}
