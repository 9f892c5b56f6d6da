package ports

import (
	"context"

	"github.com/bft-labs/serially/internal/domain"
)

// ArtifactLoader makes an artifact's classes resolvable.
type ArtifactLoader interface {
	// EnsureLoaded registers the artifact once. It returns false when the
	// artifact cannot be opened; the failure is logged, not returned.
	EnsureLoaded(ctx context.Context, handle string) bool
}

// Instance is a probe instance. Its concrete type belongs to the adapter
// that produced it.
type Instance any

// Instantiator allocates probe instances without running any code of the
// class.
type Instantiator interface {
	// Instantiate returns nil when the class cannot be allocated.
	Instantiate(class string) Instance
}

// Serializer encodes probe instances.
type Serializer interface {
	// Serialize returns nil when the instance cannot be encoded or encodes
	// to an empty stream.
	Serialize(inst Instance) []byte
}

// RemoteProber sends a probe instance to the remote endpoint. The returned
// outcome is one of the Remote* kinds.
type RemoteProber interface {
	Probe(ctx context.Context, inst Instance) domain.Outcome
}
