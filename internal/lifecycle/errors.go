package lifecycle

// notManagedError signals an ensure/stop request for a model that has no
// container spec (remote models are not lifecycle-managed).
type notManagedError struct{ modelID string }

func (e notManagedError) Error() string { return "model not container-managed: " + e.modelID }

// ErrNotManaged constructs a notManagedError.
func ErrNotManaged(modelID string) error { return notManagedError{modelID: modelID} }

// IsNotManaged reports whether err indicates a model without a container.
func IsNotManaged(err error) bool {
	_, ok := err.(notManagedError)
	return ok
}

// blockedByGamingModeError signals a start refused by the preemption switch,
// for 503 mapping.
type blockedByGamingModeError struct{ modelID string }

func (e blockedByGamingModeError) Error() string {
	return "blocked by gaming mode: " + e.modelID
}

// ErrBlockedByGamingMode constructs a blockedByGamingModeError.
func ErrBlockedByGamingMode(modelID string) error {
	return blockedByGamingModeError{modelID: modelID}
}

// IsBlockedByGamingMode reports whether err indicates a gaming-mode refusal.
func IsBlockedByGamingMode(err error) bool {
	_, ok := err.(blockedByGamingModeError)
	return ok
}

// startupError signals a container that never became ready. The container is
// returned to stopped before this is surfaced.
type startupError struct {
	modelID string
	reason  error
}

func (e startupError) Error() string {
	return "container start failed: " + e.modelID + ": " + e.reason.Error()
}

func (e startupError) Unwrap() error { return e.reason }

// ErrStartup constructs a startupError.
func ErrStartup(modelID string, reason error) error {
	return startupError{modelID: modelID, reason: reason}
}

// IsStartup reports whether err indicates a failed container start.
func IsStartup(err error) bool {
	_, ok := err.(startupError)
	return ok
}
