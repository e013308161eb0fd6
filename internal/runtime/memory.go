package runtime

import (
	"context"
	"sort"
	"sync"
)

// MemDriver tracks running refs in memory. It backs the "memory" driver
// selection for development boots and the package tests.
type MemDriver struct {
	mu      sync.Mutex
	running map[string]bool

	// Optional error injection, consulted before any state change.
	StartErr func(ref string) error
	StopErr  func(ref string) error
}

func NewMemDriver() *MemDriver {
	return &MemDriver{running: make(map[string]bool)}
}

func (d *MemDriver) Start(ctx context.Context, ref string) error {
	if d.StartErr != nil {
		if err := d.StartErr(ref); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[ref] = true
	return nil
}

func (d *MemDriver) Stop(ctx context.Context, ref string) error {
	if d.StopErr != nil {
		if err := d.StopErr(ref); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, ref)
	return nil
}

func (d *MemDriver) IsRunning(ctx context.Context, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[ref], nil
}

// Running returns the running refs sorted, for assertions.
func (d *MemDriver) Running() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.running))
	for ref := range d.running {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// StaticProber answers every probe with the configured error. A zero
// StaticProber reports everything ready; it pairs with MemDriver.
type StaticProber struct {
	Err error
}

func (p *StaticProber) Probe(ctx context.Context, url string) error { return p.Err }
