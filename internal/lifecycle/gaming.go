package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// SetGamingMode flips the preemption switch. Enabling stops every managed
// container before returning; disabling restores the keep-warm set. Partial
// failures are joined and returned with the switch already flipped.
func (m *Manager) SetGamingMode(ctx context.Context, enabled bool) error {
	if m.gaming.Swap(enabled) == enabled {
		return nil
	}
	if enabled {
		m.log.Info().Msg("gaming mode enabled, preempting fleet")
		m.pub.Publish(Event{Name: "gaming_on"})
		return m.stopAll(ctx, "gaming")
	}
	m.log.Info().Msg("gaming mode disabled, restoring keep-warm set")
	m.pub.Publish(Event{Name: "gaming_off"})
	return m.StartKeepWarm(ctx)
}

// StartKeepWarm ensures every keep-warm container is running. Used at boot
// and when gaming mode is lifted.
func (m *Manager) StartKeepWarm(ctx context.Context) error {
	var errs []error
	for _, id := range m.keepWarmIDs() {
		if err := m.EnsureRunning(ctx, id, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
