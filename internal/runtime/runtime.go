// Package runtime abstracts the container engine that hosts model backends.
package runtime

import "context"

// Driver starts and stops model workloads by their runtime ref.
// Implementations must be safe for concurrent use.
type Driver interface {
	Start(ctx context.Context, ref string) error
	Stop(ctx context.Context, ref string) error
	IsRunning(ctx context.Context, ref string) (bool, error)
}

// Prober reports whether a freshly started backend answers on its
// readiness URL.
type Prober interface {
	Probe(ctx context.Context, url string) error
}
