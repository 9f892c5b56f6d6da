// Package serially enumerates the Java libraries loaded by a remote
// application through deserialization of probe objects.
//
// Example usage:
//
//	cfg := serially.DefaultConfig()
//	cfg.Mode = serially.ModeRemote
//	cfg.Host, cfg.Port = "10.0.0.5", 1099
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := serially.Run(context.Background(), cfg, nil)
//
// For plugins and repeated runs use pkg/serially directly.
package serially

import (
	"context"

	"github.com/bft-labs/serially/internal/cliconfig"
	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/pkg/log"
	"github.com/bft-labs/serially/pkg/serially"
)

// Config holds the configuration of a run, including the paths derived
// from the serially home directory.
type Config = cliconfig.Config

// Summary counts what a run did.
type Summary = domain.RunSummary

const (
	ModeLocal  = domain.ModeLocal
	ModeRemote = domain.ModeRemote
)

// DefaultConfig returns a local mode Config rooted at ~/.serially.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Run validates cfg and enumerates the catalog once. A nil logger discards
// all output.
func Run(ctx context.Context, cfg Config, logger log.Logger) (Summary, error) {
	s, err := open(cfg, logger)
	if err != nil {
		return Summary{}, err
	}
	defer s.Close()
	return s.Run(ctx)
}

// Index validates cfg and adds the jars in its jar directory to the catalog.
func Index(ctx context.Context, cfg Config, logger log.Logger) (serially.IndexResult, error) {
	s, err := open(cfg, logger)
	if err != nil {
		return serially.IndexResult{}, err
	}
	defer s.Close()
	return s.Index(ctx)
}

func open(cfg Config, logger log.Logger) (*serially.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return serially.New(serially.Config{
		Mode:            cfg.Mode,
		Filter:          cfg.Filter,
		Host:            cfg.Host,
		Port:            cfg.Port,
		JarDir:          cfg.JarDir,
		Catalog:         cfg.Catalog,
		OutputDir:       cfg.OutputDir,
		Timeout:         cfg.Timeout,
		UseRegistryHost: cfg.UseRegistryHost,
		Workers:         cfg.Workers,
	}, serially.WithLogger(logger))
}
