// Package jvm adapts pkg/probe to the probe ports. Instances it hands out
// are *classpath.Instance values.
package jvm

import (
	"github.com/bft-labs/serially/internal/ports"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/probe"
)

// Probes implements ports.Instantiator and ports.Serializer.
type Probes struct {
	inst *probe.Instantiator
	ser  *probe.Serializer
}

// NewProbes returns probes allocating from registry.
func NewProbes(registry *classpath.Registry, logger ports.Logger) *Probes {
	return &Probes{
		inst: probe.NewInstantiator(registry, logger),
		ser:  probe.NewSerializer(logger),
	}
}

// Instantiate returns nil, not a typed nil, when the class cannot be allocated.
func (p *Probes) Instantiate(class string) ports.Instance {
	if inst := p.inst.Instantiate(class); inst != nil {
		return inst
	}
	return nil
}

// Serialize encodes inst. Instances from other adapters encode as null,
// which is reported as a failure.
func (p *Probes) Serialize(inst ports.Instance) []byte {
	ci, _ := inst.(*classpath.Instance)
	return p.ser.Serialize(ci)
}
