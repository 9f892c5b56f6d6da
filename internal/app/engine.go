package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/internal/ports"
)

const patchedTargetMsg = "Target is using patched Java version. RMI is only vulnerable before implementation of JEP290 (<6u141, <7u131, <8u121)"

// EngineConfig contains configuration for an enumeration run.
type EngineConfig struct {
	Mode   domain.Mode
	Filter string
	RunID  string

	// JarDir is where artifacts are loaded from. Only used in messages.
	JarDir string
}

// EngineDeps are the ports an Engine drives. Sink is required in local
// mode and Prober in remote mode.
type EngineDeps struct {
	Catalog      ports.CatalogReader
	Loader       ports.ArtifactLoader
	Instantiator ports.Instantiator
	Serializer   ports.Serializer
	Prober       ports.RemoteProber
	Sink         ports.OutputSink
	Logger       ports.Logger
}

// Engine runs the enumeration loop: every catalogued artifact is loaded and
// its classes are tried in order until one settles the artifact.
type Engine struct {
	config EngineConfig
	deps   EngineDeps
	now    func() time.Time
}

// NewEngine creates a new engine with the given dependencies.
func NewEngine(config EngineConfig, deps EngineDeps) (*Engine, error) {
	switch config.Mode {
	case domain.ModeLocal:
		if deps.Sink == nil {
			return nil, fmt.Errorf("%w: local mode requires an output sink", domain.ErrInvalidConfig)
		}
	case domain.ModeRemote:
		if deps.Prober == nil {
			return nil, fmt.Errorf("%w: remote mode requires a prober", domain.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, config.Mode)
	}
	if deps.Catalog == nil || deps.Loader == nil || deps.Instantiator == nil || deps.Serializer == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: missing engine dependency", domain.ErrInvalidConfig)
	}
	return &Engine{config: config, deps: deps, now: time.Now}, nil
}

// Run enumerates the catalog once. It returns domain.ErrTargetPatched when
// the remote target rejects the probe stub, and the context error when
// canceled between probes. The summary covers the work done either way.
func (e *Engine) Run(ctx context.Context) (domain.RunSummary, error) {
	start := e.now()
	summary := domain.RunSummary{RunID: e.config.RunID, Mode: e.config.Mode}
	if e.deps.Sink != nil {
		summary.OutputPath = e.deps.Sink.Path()
	}
	log := e.deps.Logger

	log.Info("Fetching jars from " + e.config.JarDir + "..")
	artifacts, err := e.artifacts(ctx)
	if err != nil {
		return summary, err
	}
	summary.Artifacts = len(artifacts)

	if e.config.Mode == domain.ModeRemote {
		log.Info(fmt.Sprintf("Serializing classes from %d jars and sending them to RMI endpoint..", len(artifacts)))
	} else {
		log.Info(fmt.Sprintf("Serializing classes from %d jars..", len(artifacts)))
	}

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = e.now().Sub(start)
			return summary, err
		}
		if !e.deps.Loader.EnsureLoaded(ctx, a.Handle) {
			continue
		}
		summary.Loaded++
		log.Debug("Dynamically loaded " + a.Handle)

		res, err := e.probeArtifact(ctx, a, &summary)
		if err != nil {
			summary.Elapsed = e.now().Sub(start)
			return summary, err
		}
		switch {
		case res.found:
			summary.Found++
		case !res.serialized:
			summary.Untestable++
			log.Debug("No serializable classes in " + a.Handle + ", this jar can not be tested")
		default:
			log.Debug("No class of " + a.Handle + " was accepted, the jar was not detected")
		}
	}

	summary.Elapsed = e.now().Sub(start)
	log.Info("Finished")
	if e.config.Mode == domain.ModeLocal {
		log.Info("See output in " + summary.OutputPath)
	}
	return summary, nil
}

func (e *Engine) artifacts(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := e.deps.Catalog.Rows(ctx)
	if err != nil {
		return nil, err
	}
	artifacts := domain.GroupArtifacts(rows, e.config.Filter)
	if len(artifacts) == 0 {
		if e.config.Filter == "" {
			return nil, domain.ErrEmptyCatalog
		}
		return nil, domain.ErrNoFilterMatch
	}
	return artifacts, nil
}

type artifactResult struct {
	serialized bool
	found      bool
}

// probeArtifact tries the artifact's classes in order and stops at the
// first positive or fatal outcome.
func (e *Engine) probeArtifact(ctx context.Context, a domain.Artifact, summary *domain.RunSummary) (artifactResult, error) {
	var res artifactResult
	for _, class := range a.Classes {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		attempt := e.attempt(ctx, a.Handle, class)
		summary.Tried++
		if attempt.Payload != nil {
			res.serialized = true
		}

		verdict := domain.Classify(e.config.Mode, attempt.Outcome)
		e.report(attempt, verdict)
		if attempt.Outcome.Fatal() {
			return res, domain.ErrTargetPatched
		}
		if domain.Settles(e.config.Mode, attempt.Outcome) {
			res.found = verdict == domain.Present
			return res, nil
		}
	}
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, handle, class string) domain.ProbeAttempt {
	attempt := domain.ProbeAttempt{Artifact: handle, Class: class}
	attempt.Instance = e.deps.Instantiator.Instantiate(class)
	if attempt.Instance == nil {
		attempt.Outcome = domain.Outcome{Kind: domain.NotInstantiable}
		return attempt
	}
	attempt.Payload = e.deps.Serializer.Serialize(attempt.Instance)
	if attempt.Payload == nil {
		attempt.Outcome = domain.Outcome{Kind: domain.SerializationFailed}
		return attempt
	}
	e.deps.Logger.Debug("[+] Successfully serialized " + class + " of jar " + handle)

	if e.config.Mode == domain.ModeLocal {
		attempt.Outcome = domain.Outcome{Kind: domain.SerializationSucceeded, Payload: attempt.Payload}
		return attempt
	}
	attempt.Outcome = e.deps.Prober.Probe(ctx, attempt.Instance)
	return attempt
}

// report emits the console and output events for one classified attempt.
func (e *Engine) report(a domain.ProbeAttempt, verdict domain.Verdict) {
	log := e.deps.Logger
	o := a.Outcome

	if e.config.Mode == domain.ModeLocal {
		if verdict != domain.Present {
			return
		}
		if err := e.deps.Sink.Append(a.Artifact, o.Payload); err != nil {
			log.Error("Couldn't append to CSV file", ports.String("jar", a.Artifact), ports.Err(err))
		}
		return
	}

	switch o.Kind {
	case domain.RemoteConnectionError:
		log.Error("Connection issue with RMI: " + o.Detail)
	case domain.RemoteTargetPatched:
		log.Error(patchedTargetMsg, ports.String("detail", o.Detail))
	case domain.RemoteUnmarshalAmbiguous:
		log.Error("Something went wrong with deserialization of " + a.Class + " at remote side, no conclusions can be drawn")
	case domain.RemoteOtherError:
		log.Error("RMI: " + o.Detail)
	case domain.RemoteClassNotFound:
		log.Debug("Library " + a.Artifact + " is NOT loaded by the remote application")
	}
	if verdict == domain.Present {
		log.Found("Library " + a.Artifact + " is loaded by the remote application",
			ports.String("class", a.Class),
		)
	}
}
