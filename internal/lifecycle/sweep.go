package lifecycle

import (
	"context"
	"time"
)

// Run drives the idle sweep until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.sweepIdle(ctx)
		}
	}
}

// sweepIdle stops running containers idle past the timeout. Keep-warm
// containers are exempt; only gaming mode or stop-all takes those down.
func (m *Manager) sweepIdle(ctx context.Context) {
	now := time.Now()
	for _, id := range m.modelIDs {
		c := m.containers[id]
		if c.spec.KeepWarm {
			continue
		}
		state, lastUsed := c.snapshot()
		if state != StateRunning || now.Sub(lastUsed) <= m.idleTimeout {
			continue
		}
		if err := m.stopContainer(ctx, c, "idle"); err != nil {
			continue
		}
		m.pub.Publish(Event{Name: "idle_stop", ModelID: id})
	}
}
