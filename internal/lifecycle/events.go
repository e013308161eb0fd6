package lifecycle

// Event represents a scheduler lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string         `json:"name"`
	ModelID string         `json:"model_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
