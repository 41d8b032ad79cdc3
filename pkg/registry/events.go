package registry

// Event is the payload of registry lifecycle signals.
type Event struct {
	ID      string // Descriptor the signal is about
	Version string

	// Set for dependency:skipped: the optional dependency that did not
	// resolve and the range it was requested with.
	Dependency string
	Range      string
}
