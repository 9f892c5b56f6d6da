package ports

// OutputSink records encoded probes in local mode.
type OutputSink interface {
	// Append writes one record and makes it durable before returning.
	Append(handle string, payload []byte) error

	// Path returns where records are written.
	Path() string
}
