package probe

import (
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/log"
)

// Instantiator allocates probe instances without running any class code.
type Instantiator struct {
	registry *classpath.Registry
	logger   log.Logger
}

// NewInstantiator returns an instantiator over registry.
func NewInstantiator(registry *classpath.Registry, logger log.Logger) *Instantiator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Instantiator{registry: registry, logger: logger}
}

// Instantiate returns a zero-initialized instance of the named class, or nil
// when the class cannot be resolved or allocated for any reason.
func (i *Instantiator) Instantiate(name string) *classpath.Instance {
	inst, err := i.registry.Allocate(name)
	if err != nil {
		i.logger.Debug("Couldn't instantiate class", log.String("class", name), log.Err(err))
		return nil
	}
	return inst
}
