// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [CatalogReader]: Reads (artifact, class) rows from the inventory
//   - [ArtifactLoader]: Registers artifacts with the class registry
//   - [Instantiator]: Allocates zero-valued probe instances
//   - [Serializer]: Encodes probe instances as Java serialization streams
//   - [RemoteProber]: Sends probes to an RMI endpoint and classifies the answer
//   - [OutputSink]: Appends encoded probes to the output file
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with SQLite,
// the classpath registry, the JRMP client and the file system.
package ports
