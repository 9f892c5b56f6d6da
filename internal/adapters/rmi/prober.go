// Package rmi adapts the JRMP prober to ports.RemoteProber.
package rmi

import (
	"context"

	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/internal/ports"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/jrmp"
	"github.com/bft-labs/serially/pkg/log"
	"github.com/bft-labs/serially/pkg/probe"
)

// Prober sends probe instances to one endpoint.
type Prober struct {
	prober   *jrmp.Prober
	endpoint jrmp.Endpoint
	logger   ports.Logger
}

// NewProber returns a prober for host:port.
func NewProber(host string, port int, opts jrmp.Options, logger ports.Logger) *Prober {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Prober{
		prober:   jrmp.NewProber(opts),
		endpoint: jrmp.Endpoint{Host: host, Port: port},
		logger:   logger,
	}
}

// Probe describes inst as a stream object and sends it.
func (p *Prober) Probe(ctx context.Context, inst ports.Instance) domain.Outcome {
	ci, ok := inst.(*classpath.Instance)
	if !ok || ci == nil {
		return domain.Outcome{Kind: domain.NotInstantiable}
	}
	obj, err := probe.Describe(ci)
	if err != nil {
		return domain.Outcome{Kind: domain.SerializationFailed, Detail: err.Error()}
	}
	res := p.prober.Probe(ctx, p.endpoint, obj)
	if res.Err != nil {
		p.logger.Debug("RMI call returned",
			ports.String("class", ci.Name()),
			ports.String("result", res.Kind.String()),
			ports.Err(res.Err),
		)
	}
	return domain.Outcome{Kind: OutcomeKind(res.Kind), Detail: res.Detail()}
}

// OutcomeKind maps a prober result kind to the domain outcome.
func OutcomeKind(k jrmp.Kind) domain.OutcomeKind {
	switch k {
	case jrmp.NoError:
		return domain.RemoteNoError
	case jrmp.ConnectionError:
		return domain.RemoteConnectionError
	case jrmp.TargetPatched:
		return domain.RemoteTargetPatched
	case jrmp.ClassNotFound:
		return domain.RemoteClassNotFound
	case jrmp.UnmarshalAmbiguous:
		return domain.RemoteUnmarshalAmbiguous
	case jrmp.OtherError:
		return domain.RemoteOtherError
	}
	// Unknown kinds cannot support a conclusion either way.
	return domain.RemoteConnectionError
}
