package lifecycle

import (
	"context"
	"errors"
	"time"
)

var errPreempted = errors.New("preempted during start")

// EnsureRunning makes sure the model's container is running, coalescing
// concurrent cold starts of the same model into one driver start. Waiters
// honor their own ctx; the flight runs detached so one canceled waiter cannot
// poison the start for the rest.
func (m *Manager) EnsureRunning(ctx context.Context, modelID string, force bool) error {
	c, ok := m.containers[modelID]
	if !ok {
		return ErrNotManaged(modelID)
	}
	if m.gaming.Load() && !force {
		return ErrBlockedByGamingMode(modelID)
	}
	c.mu.Lock()
	if c.state == StateRunning {
		c.lastUsed = time.Now()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ch := m.flights.DoChan(modelID, func() (any, error) {
		return nil, m.start(c, force)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start performs one cold start under a detached, bounded context.
func (m *Manager) start(c *Container, force bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.startTimeout)
	defer cancel()

	startTs := time.Now()
	// Wait out a concurrent stop; stopping only ever leads to stopped.
	for {
		c.mu.Lock()
		if c.state == StateRunning {
			c.lastUsed = time.Now()
			c.mu.Unlock()
			return nil
		}
		if c.state == StateStopped {
			c.state = StateStarting
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ErrStartup(c.modelID, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}

	m.log.Debug().Str("model", c.modelID).Msg("container start")
	m.pub.Publish(Event{Name: "ensure_start", ModelID: c.modelID})

	if err := m.driver.Start(ctx, c.spec.Ref); err != nil {
		c.setState(StateStopped)
		startFailuresTotal.Inc()
		m.log.Warn().Err(err).Str("model", c.modelID).Msg("container start failed")
		m.pub.Publish(Event{Name: "ensure_failed", ModelID: c.modelID, Fields: map[string]any{"error": err.Error()}})
		return ErrStartup(c.modelID, err)
	}

	var lastErr error
	backoff := 200 * time.Millisecond
	for {
		err := m.prober.Probe(ctx, c.readyURL)
		if err == nil {
			return m.commitRunning(c, force, startTs)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			m.stopRefDetached(c.spec.Ref)
			c.setState(StateStopped)
			startFailuresTotal.Inc()
			m.log.Warn().Err(lastErr).Str("model", c.modelID).Msg("container never became ready")
			m.pub.Publish(Event{Name: "ensure_failed", ModelID: c.modelID, Fields: map[string]any{"error": lastErr.Error()}})
			return ErrStartup(c.modelID, lastErr)
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

// commitRunning finishes a successful start. The transition only happens if
// the entry is still starting and gaming mode has not preempted it meanwhile.
func (m *Manager) commitRunning(c *Container, force bool, startTs time.Time) error {
	c.mu.Lock()
	if c.state != StateStarting {
		c.mu.Unlock()
		m.stopRefDetached(c.spec.Ref)
		return ErrStartup(c.modelID, errPreempted)
	}
	if m.gaming.Load() && !force {
		c.state = StateStopped
		c.mu.Unlock()
		m.stopRefDetached(c.spec.Ref)
		m.pub.Publish(Event{Name: "ensure_failed", ModelID: c.modelID, Fields: map[string]any{"error": "blocked by gaming mode"}})
		return ErrBlockedByGamingMode(c.modelID)
	}
	c.state = StateRunning
	c.lastUsed = time.Now()
	c.mu.Unlock()

	containersRunning.Inc()
	containerStartsTotal.Inc()
	durMs := int(time.Since(startTs) / time.Millisecond)
	m.log.Info().Str("model", c.modelID).Int("dur_ms", durMs).Msg("container ready")
	m.pub.Publish(Event{Name: "ensure_ready", ModelID: c.modelID, Fields: map[string]any{"dur_ms": durMs}})
	return nil
}

// stopRefDetached tears a container down outside any caller deadline.
func (m *Manager) stopRefDetached(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = m.driver.Stop(ctx, ref)
}
