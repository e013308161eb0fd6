package lifecycle

import (
	"sync"
	"time"

	"fleetd/pkg/types"
)

// State is the lifecycle state of one container.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Container is the per-model entry. Each entry has its own mutex so models
// never contend with each other.
type Container struct {
	mu       sync.Mutex
	modelID  string
	spec     types.ContainerSpec
	readyURL string
	state    State
	lastUsed time.Time
}

func (c *Container) snapshot() (State, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastUsed
}

func (c *Container) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
