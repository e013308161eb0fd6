package lifecycle

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"fleetd/internal/registry"
	"fleetd/internal/runtime"
	"fleetd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultSweepInterval = 10 * time.Second
	defaultIdleTimeout   = 5 * time.Minute
	defaultStartTimeout  = 2 * time.Minute
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Registry      *registry.Registry
	Driver        runtime.Driver
	Prober        runtime.Prober
	SweepInterval time.Duration
	IdleTimeout   time.Duration
	StartTimeout  time.Duration
	Publisher     EventPublisher
	Logger        *zerolog.Logger
}

// Manager schedules the managed containers. One entry per managed model is
// built at construction; the entry set never changes afterwards.
type Manager struct {
	driver runtime.Driver
	prober runtime.Prober
	pub    EventPublisher
	log    zerolog.Logger

	sweepInterval time.Duration
	idleTimeout   time.Duration
	startTimeout  time.Duration

	gaming atomic.Bool

	containers map[string]*Container
	modelIDs   []string // sorted keys of containers

	flights singleflight.Group
}

// New constructs a Manager from Config and applies defaults for unset fields.
func New(cfg Config) *Manager {
	m := &Manager{
		driver:        cfg.Driver,
		prober:        cfg.Prober,
		pub:           cfg.Publisher,
		log:           zerolog.Nop(),
		sweepInterval: cfg.SweepInterval,
		idleTimeout:   cfg.IdleTimeout,
		startTimeout:  cfg.StartTimeout,
		containers:    make(map[string]*Container),
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "lifecycle").Logger()
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaultSweepInterval
	}
	if m.idleTimeout <= 0 {
		m.idleTimeout = defaultIdleTimeout
	}
	if m.startTimeout <= 0 {
		m.startTimeout = defaultStartTimeout
	}
	for _, mdl := range cfg.Registry.ManagedModels() {
		p, _ := cfg.Registry.ProviderByID(mdl.ProviderID)
		m.containers[mdl.ID] = &Container{
			modelID:  mdl.ID,
			spec:     *mdl.Container,
			readyURL: readyURL(p.Endpoint, *mdl.Container),
			state:    StateStopped,
		}
		m.modelIDs = append(m.modelIDs, mdl.ID)
	}
	sort.Strings(m.modelIDs)
	return m
}

// readyURL probes the container port on the provider's host; the provider
// endpoint itself may listen elsewhere (reverse proxy in front).
func readyURL(endpoint string, spec types.ContainerSpec) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("http://%s%s", net.JoinHostPort("127.0.0.1", strconv.Itoa(spec.Port)), spec.ReadyPath)
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, net.JoinHostPort(u.Hostname(), strconv.Itoa(spec.Port)), spec.ReadyPath)
}

// Manages reports whether modelID has a container entry.
func (m *Manager) Manages(modelID string) bool {
	_, ok := m.containers[modelID]
	return ok
}

// GamingMode reports the current preemption switch position.
func (m *Manager) GamingMode() bool { return m.gaming.Load() }

// Touch marks the model as just used so the idle sweep keeps it alive.
func (m *Manager) Touch(modelID string) {
	c, ok := m.containers[modelID]
	if !ok {
		return
	}
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// Containers builds the per-container status rows for /status, sorted by
// model id.
func (m *Manager) Containers() []types.ContainerStatus {
	out := make([]types.ContainerStatus, 0, len(m.modelIDs))
	for _, id := range m.modelIDs {
		c := m.containers[id]
		state, lastUsed := c.snapshot()
		row := types.ContainerStatus{
			ModelID:  id,
			State:    string(state),
			Kind:     string(c.spec.Kind),
			KeepWarm: c.spec.KeepWarm,
			Port:     c.spec.Port,
		}
		if !lastUsed.IsZero() {
			row.LastUsedUnix = lastUsed.Unix()
		}
		out = append(out, row)
	}
	return out
}

func (m *Manager) keepWarmIDs() []string {
	var out []string
	for _, id := range m.modelIDs {
		if m.containers[id].spec.KeepWarm {
			out = append(out, id)
		}
	}
	return out
}
