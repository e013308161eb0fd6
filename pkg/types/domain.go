package types

// AuthType selects how requests to a provider are authenticated.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
)

// ContainerKind tags the workload a managed container serves.
type ContainerKind string

const (
	KindText  ContainerKind = "text"
	KindImage ContainerKind = "image"
	KindTTS   ContainerKind = "tts"
)

// Provider is an inference backend endpoint (a local container host or a
// remote API). Immutable after load; owned by the registry.
type Provider struct {
	// Stable identifier for the provider.
	// example: local-gpu
	ID string `json:"id" yaml:"id" toml:"id" example:"local-gpu"`
	// Base URL requests are proxied to.
	// example: http://127.0.0.1:9001
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint" example:"http://127.0.0.1:9001"`
	// Selection priority; lower is preferred.
	// example: 10
	Priority int `json:"priority" yaml:"priority" toml:"priority" example:"10"`
	// Maximum concurrent in-flight requests admitted.
	// example: 4
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent" example:"4"`
	// Health probe path, GET, 2xx means alive (default /v1/models).
	// example: /v1/models
	HealthPath string `json:"health_path" yaml:"health_path" toml:"health_path" example:"/v1/models"`
	// Seconds between health probes (0 = monitor default).
	HealthIntervalSec int `json:"health_interval_sec,omitempty" yaml:"health_interval_sec" toml:"health_interval_sec"`
	// Per-probe timeout in seconds (0 = monitor default).
	HealthTimeoutSec int `json:"health_timeout_sec,omitempty" yaml:"health_timeout_sec" toml:"health_timeout_sec"`
	// Authentication scheme for proxied requests.
	// example: none
	AuthType AuthType `json:"auth_type,omitempty" yaml:"auth_type" toml:"auth_type" example:"none"`
	// Bearer token when AuthType is "bearer". Never serialized back out.
	AuthToken string `json:"-" yaml:"auth_token" toml:"auth_token"`
}

// ContainerSpec describes the compute workload backing a model. Models
// without a spec are remote/unmanaged: the lifecycle manager never starts or
// stops them and gaming mode does not gate them.
type ContainerSpec struct {
	// Handle passed to the container runtime driver.
	// example: fleetd-qwen25-7b
	Ref string `json:"ref" yaml:"ref" toml:"ref" example:"fleetd-qwen25-7b"`
	// Host port the container serves on.
	// example: 9001
	Port int `json:"port" yaml:"port" toml:"port" example:"9001"`
	// Workload kind: text, image or tts.
	// example: text
	Kind ContainerKind `json:"kind" yaml:"kind" toml:"kind" example:"text"`
	// Keep-warm containers are exempt from idle eviction and restarted after
	// gaming mode ends.
	KeepWarm bool `json:"keep_warm" yaml:"keep_warm" toml:"keep_warm"`
	// Readiness probe path on the container (default /health).
	ReadyPath string `json:"ready_path,omitempty" yaml:"ready_path" toml:"ready_path"`
}

// Model is a routable model offered by a provider.
type Model struct {
	// Stable identifier, also accepted as an explicit request alias.
	// example: qwen2.5-7b
	ID string `json:"id" yaml:"id" toml:"id" example:"qwen2.5-7b"`
	// Provider serving this model.
	// example: local-gpu
	ProviderID string `json:"provider_id" yaml:"provider_id" toml:"provider_id" example:"local-gpu"`
	// Context window in tokens.
	// example: 32768
	ContextWindow int `json:"context_window" yaml:"context_window" toml:"context_window" example:"32768"`
	// Maximum completion tokens.
	// example: 4096
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" example:"4096"`
	// Capability labels (chat, tools, vision, ...).
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities" toml:"capabilities"`
	// Cost per 1k tokens, informational.
	CostPer1K float64 `json:"cost_per_1k,omitempty" yaml:"cost_per_1k" toml:"cost_per_1k"`
	// Free-form tags; "tier:small" / "tier:large" drive "auto" routing.
	Tags []string `json:"tags,omitempty" yaml:"tags" toml:"tags"`
	// Managed container backing this model, if any.
	Container *ContainerSpec `json:"container,omitempty" yaml:"container" toml:"container"`
}

// HasTag reports whether the model carries the given tag.
func (m Model) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Managed reports whether the model's backend is lifecycle-managed.
func (m Model) Managed() bool { return m.Container != nil }
