package router

import (
	"sync"
	"sync/atomic"

	"fleetd/internal/registry"
)

// Counters tracks in-flight requests per provider. Admission is a CAS
// against the provider's MaxConcurrent so the count can never exceed the
// limit or drop below zero.
type Counters struct {
	active map[string]*atomic.Int64
	limits map[string]int64
}

// NewCounters builds one counter per configured provider.
func NewCounters(reg *registry.Registry) *Counters {
	c := &Counters{
		active: make(map[string]*atomic.Int64),
		limits: make(map[string]int64),
	}
	for _, p := range reg.Providers() {
		c.active[p.ID] = &atomic.Int64{}
		c.limits[p.ID] = int64(p.MaxConcurrent)
	}
	return c
}

// Admit reserves a slot on the provider. The returned release func must be
// called when the request finishes; extra calls are no-ops.
func (c *Counters) Admit(providerID string) (release func(), ok bool) {
	a, known := c.active[providerID]
	if !known {
		return nil, false
	}
	limit := c.limits[providerID]
	for {
		cur := a.Load()
		if cur >= limit {
			return nil, false
		}
		if a.CompareAndSwap(cur, cur+1) {
			activeRequests.WithLabelValues(providerID).Inc()
			var once sync.Once
			return func() {
				once.Do(func() {
					a.Add(-1)
					activeRequests.WithLabelValues(providerID).Dec()
				})
			}, true
		}
	}
}

// Active returns the provider's current in-flight count.
func (c *Counters) Active(providerID string) int64 {
	if a, ok := c.active[providerID]; ok {
		return a.Load()
	}
	return 0
}
