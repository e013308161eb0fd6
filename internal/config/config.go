package config

import (
	"time"

	"fleetd/pkg/types"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Server    Server            `json:"server" yaml:"server" toml:"server"`
	Providers []types.Provider  `json:"providers" yaml:"providers" toml:"providers"`
	Models    []types.Model     `json:"models" yaml:"models" toml:"models"`
	Aliases   map[string]string `json:"aliases" yaml:"aliases" toml:"aliases"`
	Lifecycle Lifecycle         `json:"lifecycle" yaml:"lifecycle" toml:"lifecycle"`
	Health    Health            `json:"health" yaml:"health" toml:"health"`
	Router    Router            `json:"router" yaml:"router" toml:"router"`
	Agent     Agent             `json:"agent" yaml:"agent" toml:"agent"`
	RunLog    RunLog            `json:"run_log" yaml:"run_log" toml:"run_log"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	EnableCORS   bool   `json:"enable_cors" yaml:"enable_cors" toml:"enable_cors"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Lifecycle configures the container scheduler.
type Lifecycle struct {
	// Driver selects the container runtime ("docker"; tests inject fakes).
	Driver           string `json:"driver" yaml:"driver" toml:"driver"`
	SweepIntervalSec int    `json:"sweep_interval_sec" yaml:"sweep_interval_sec" toml:"sweep_interval_sec"`
	IdleTimeoutSec   int    `json:"idle_timeout_sec" yaml:"idle_timeout_sec" toml:"idle_timeout_sec"`
	StartTimeoutSec  int    `json:"start_timeout_sec" yaml:"start_timeout_sec" toml:"start_timeout_sec"`
}

// Health configures the background provider prober.
type Health struct {
	IntervalSec int `json:"interval_sec" yaml:"interval_sec" toml:"interval_sec"`
	TimeoutSec  int `json:"timeout_sec" yaml:"timeout_sec" toml:"timeout_sec"`
}

// Router configures request routing and failover.
type Router struct {
	DefaultModel       string `json:"default_model" yaml:"default_model" toml:"default_model"`
	SmallTierMaxTokens int    `json:"small_tier_max_tokens" yaml:"small_tier_max_tokens" toml:"small_tier_max_tokens"`
	FailoverDelayMs    int    `json:"failover_delay_ms" yaml:"failover_delay_ms" toml:"failover_delay_ms"`
}

// Agent configures the tool-running executor.
type Agent struct {
	MaxSteps        int    `json:"max_steps" yaml:"max_steps" toml:"max_steps"`
	RetryBudget     int    `json:"retry_budget" yaml:"retry_budget" toml:"retry_budget"`
	ShellTimeoutSec int    `json:"shell_timeout_sec" yaml:"shell_timeout_sec" toml:"shell_timeout_sec"`
	// SandboxRoot constrains run working directories; empty roots the
	// sandbox at the daemon's working directory.
	SandboxRoot string `json:"sandbox_root" yaml:"sandbox_root" toml:"sandbox_root"`
}

// RunLog configures agent run persistence. An empty Path disables it.
type RunLog struct {
	Path        string `json:"path" yaml:"path" toml:"path"`
	RecentLimit int    `json:"recent_limit" yaml:"recent_limit" toml:"recent_limit"`
}

// ApplyDefaults fills unspecified fields in place.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Lifecycle.Driver == "" {
		c.Lifecycle.Driver = "docker"
	}
	if c.Lifecycle.SweepIntervalSec == 0 {
		c.Lifecycle.SweepIntervalSec = 10
	}
	if c.Lifecycle.IdleTimeoutSec == 0 {
		c.Lifecycle.IdleTimeoutSec = 300
	}
	if c.Lifecycle.StartTimeoutSec == 0 {
		c.Lifecycle.StartTimeoutSec = 120
	}
	if c.Health.IntervalSec == 0 {
		c.Health.IntervalSec = 30
	}
	if c.Health.TimeoutSec == 0 {
		c.Health.TimeoutSec = 5
	}
	if c.Router.DefaultModel == "" {
		c.Router.DefaultModel = "auto"
	}
	if c.Router.SmallTierMaxTokens == 0 {
		c.Router.SmallTierMaxTokens = 4096
	}
	if c.Router.FailoverDelayMs == 0 {
		c.Router.FailoverDelayMs = 250
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 10
	}
	if c.Agent.RetryBudget == 0 {
		c.Agent.RetryBudget = 3
	}
	if c.Agent.ShellTimeoutSec == 0 {
		c.Agent.ShellTimeoutSec = 30
	}
	if c.RunLog.RecentLimit == 0 {
		c.RunLog.RecentLimit = 50
	}
}

// Default returns a fully defaulted Config with no providers or models.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

func (l Lifecycle) SweepInterval() time.Duration { return time.Duration(l.SweepIntervalSec) * time.Second }
func (l Lifecycle) IdleTimeout() time.Duration   { return time.Duration(l.IdleTimeoutSec) * time.Second }
func (l Lifecycle) StartTimeout() time.Duration  { return time.Duration(l.StartTimeoutSec) * time.Second }

func (h Health) Interval() time.Duration { return time.Duration(h.IntervalSec) * time.Second }
func (h Health) Timeout() time.Duration  { return time.Duration(h.TimeoutSec) * time.Second }

func (r Router) FailoverDelay() time.Duration { return time.Duration(r.FailoverDelayMs) * time.Millisecond }

func (a Agent) ShellTimeout() time.Duration { return time.Duration(a.ShellTimeoutSec) * time.Second }
