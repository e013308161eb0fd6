package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// StopAll forces every managed container to stopped, sequentially. Partial
// failures are joined and returned; the rest of the fleet is still stopped.
func (m *Manager) StopAll(ctx context.Context) error {
	m.pub.Publish(Event{Name: "stop_all"})
	return m.stopAll(ctx, "stop_all")
}

func (m *Manager) stopAll(ctx context.Context, reason string) error {
	var errs []error
	for _, id := range m.modelIDs {
		if err := m.stopContainer(ctx, m.containers[id], reason); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// stopContainer transitions one entry to stopped. Stopping an already
// stopped (or stopping) container is a no-op. On driver failure the previous
// state is restored so a later sweep retries.
func (m *Manager) stopContainer(ctx context.Context, c *Container, reason string) error {
	c.mu.Lock()
	prev := c.state
	if prev == StateStopped || prev == StateStopping {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.mu.Unlock()

	if err := m.driver.Stop(ctx, c.spec.Ref); err != nil {
		c.setState(prev)
		m.log.Warn().Err(err).Str("model", c.modelID).Str("reason", reason).Msg("container stop failed")
		return err
	}

	c.setState(StateStopped)
	if prev == StateRunning {
		containersRunning.Dec()
	}
	containerStopsTotal.WithLabelValues(reason).Inc()
	m.log.Info().Str("model", c.modelID).Str("reason", reason).Msg("container stopped")
	return nil
}
