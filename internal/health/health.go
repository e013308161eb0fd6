// Package health probes the configured providers in the background and
// publishes a lock-free status snapshot for the router.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fleetd/internal/registry"
	"fleetd/pkg/types"
)

// Status classifies a provider for routing decisions.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Classification thresholds. A provider only turns unhealthy after
// consecutive failures; a single success resets it.
const (
	slowThreshold  = 5 * time.Second
	unhealthyAfter = 3
)

// Record is one provider's latest observation.
type Record struct {
	ProviderID          string
	Status              Status
	ResponseTime        time.Duration
	ConsecutiveFailures int
	ObservedAt          time.Time
}

// Defaults applied when corresponding Config fields are unset.
const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Config encapsulates all tunables for Monitor construction.
type Config struct {
	Registry *registry.Registry
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zerolog.Logger
}

// Monitor owns the probe loop. Readers only ever touch the published
// snapshot; they never block and never trigger probes.
type Monitor struct {
	reg      *registry.Registry
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	log      zerolog.Logger

	snap atomic.Pointer[map[string]Record]
}

// New constructs a Monitor from Config and applies defaults for unset fields.
func New(cfg Config) *Monitor {
	m := &Monitor{
		reg:      cfg.Registry,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		log:      zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "health").Logger()
	}
	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	if m.timeout <= 0 {
		m.timeout = defaultTimeout
	}
	m.client = &http.Client{}
	return m
}

// Run probes immediately, then on every tick until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	m.probeAll(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll runs one concurrent probe cycle and replaces the snapshot.
func (m *Monitor) probeAll(ctx context.Context) {
	providers := m.reg.Providers()
	prev := m.snapshot()
	next := make(map[string]Record, len(providers))
	now := time.Now()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		old, seen := prev[p.ID]
		// providers with their own cadence are carried forward between probes
		if seen && p.HealthIntervalSec > 0 &&
			now.Sub(old.ObservedAt) < time.Duration(p.HealthIntervalSec)*time.Second {
			next[p.ID] = old
			continue
		}
		p := p
		prevFailures := old.ConsecutiveFailures
		g.Go(func() error {
			rec := m.probe(gctx, p, prevFailures)
			mu.Lock()
			next[p.ID] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for id, rec := range next {
		old, seen := prev[id]
		if !seen || old.Status != rec.Status {
			m.log.Info().
				Str("provider", id).
				Str("status", string(rec.Status)).
				Int("failures", rec.ConsecutiveFailures).
				Msg("provider health changed")
		}
	}
	m.snap.Store(&next)
}

// probe checks one provider once, bounded by its timeout.
func (m *Monitor) probe(ctx context.Context, p types.Provider, prevFailures int) Record {
	timeout := m.timeout
	if p.HealthTimeoutSec > 0 {
		timeout = time.Duration(p.HealthTimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := m.check(ctx, p)
	rt := time.Since(start)

	rec := Record{ProviderID: p.ID, ResponseTime: rt, ObservedAt: time.Now()}
	if err != nil {
		rec.ConsecutiveFailures = prevFailures + 1
		rec.Status = classifyFailure(rec.ConsecutiveFailures)
		m.log.Debug().Err(err).Str("provider", p.ID).Int("failures", rec.ConsecutiveFailures).Msg("probe failed")
		return rec
	}
	rec.Status = classifySuccess(rt)
	m.log.Debug().Str("provider", p.ID).Dur("rt", rt).Str("status", string(rec.Status)).Msg("probe ok")
	return rec
}

// classifySuccess maps a successful probe's latency to a status. Slow
// answers degrade the provider without counting as failures.
func classifySuccess(rt time.Duration) Status {
	if rt > slowThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// classifyFailure maps a failure streak to a status.
func classifyFailure(failures int) Status {
	if failures >= unhealthyAfter {
		return StatusUnhealthy
	}
	return StatusDegraded
}

func (m *Monitor) check(ctx context.Context, p types.Provider) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+p.HealthPath, nil)
	if err != nil {
		return err
	}
	if p.AuthType == types.AuthBearer {
		req.Header.Set("Authorization", "Bearer "+p.AuthToken)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health %s: status %d", p.ID, resp.StatusCode)
	}
	return nil
}

func (m *Monitor) snapshot() map[string]Record {
	if p := m.snap.Load(); p != nil {
		return *p
	}
	return nil
}

// StatusFor returns the provider's classification. Providers without an
// observation yet count as degraded, not unhealthy.
func (m *Monitor) StatusFor(providerID string) Status {
	if rec, ok := m.snapshot()[providerID]; ok {
		return rec.Status
	}
	return StatusDegraded
}

// RecordFor returns the provider's latest observation when present.
func (m *Monitor) RecordFor(providerID string) (Record, bool) {
	rec, ok := m.snapshot()[providerID]
	return rec, ok
}

// Records returns the current snapshot sorted by provider id.
func (m *Monitor) Records() []Record {
	snap := m.snapshot()
	out := make([]Record, 0, len(snap))
	for _, rec := range snap {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}
