package types

// ChatMessage is one turn of an OpenAI-style conversation.
type ChatMessage struct {
	// Role of the author: system, user, assistant or tool.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatCompletionRequest is the payload for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	// Model alias: an explicit model id, a configured alias (small, big,
	// fast, ...) or "auto".
	// example: auto
	Model string `json:"model" example:"auto"`
	// Conversation so far.
	Messages []ChatMessage `json:"messages"`
	// If true, respond with SSE frames terminated by data: [DONE].
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
	// Maximum number of completion tokens.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Sampling temperature.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Force bypasses gaming-mode gating for this request. Also settable via
	// the X-Force-Override header.
	Force bool `json:"force,omitempty"`
}

// ChatChoice is one returned completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty" example:"stop"`
}

// Usage is token accounting reported by the upstream backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" example:"42"`
	CompletionTokens int `json:"completion_tokens" example:"128"`
	TotalTokens      int `json:"total_tokens" example:"170"`
}

// ChatCompletionResponse is the non-streaming response envelope.
type ChatCompletionResponse struct {
	// Completion id assigned by the gateway.
	// example: chatcmpl-1f0c...
	ID      string `json:"id" example:"chatcmpl-1f0c8c2a"`
	Object  string `json:"object" example:"chat.completion"`
	Created int64  `json:"created" example:"1700000000"`
	// Resolved model id that actually served the request.
	// example: qwen2.5-7b
	Model string `json:"model" example:"qwen2.5-7b"`
	// Provider the request was routed to.
	// example: local-gpu
	Provider string       `json:"provider" example:"local-gpu"`
	Choices  []ChatChoice `json:"choices"`
	Usage    Usage        `json:"usage"`
}

// ChatDelta carries incremental content in a streaming frame.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatChunkChoice is one choice inside a streaming frame.
type ChatChunkChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is a single streaming SSE frame body. The gateway
// injects Provider into every upstream frame before re-emitting it.
type ChatCompletionChunk struct {
	ID       string            `json:"id,omitempty"`
	Object   string            `json:"object,omitempty" example:"chat.completion.chunk"`
	Created  int64             `json:"created,omitempty"`
	Model    string            `json:"model,omitempty"`
	Provider string            `json:"provider,omitempty" example:"local-gpu"`
	Choices  []ChatChunkChoice `json:"choices,omitempty"`
}

// ModelsResponse wraps GET /v1/models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ProviderHealth summarizes the last published probe outcome for a provider.
type ProviderHealth struct {
	// example: local-gpu
	ProviderID string `json:"provider_id" example:"local-gpu"`
	// healthy, degraded or unhealthy.
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Last probe round trip in milliseconds.
	// example: 12
	ResponseTimeMs int64 `json:"response_time_ms" example:"12"`
	// Sequential failed probes since the last success.
	// example: 0
	ConsecutiveFailures int `json:"consecutive_failures" example:"0"`
	// Unix seconds of the observation.
	// example: 1700000000
	ObservedAtUnix int64 `json:"observed_at_unix" example:"1700000000"`
	// In-flight requests currently admitted to this provider.
	// example: 1
	ActiveRequests int `json:"active_requests" example:"1"`
	// Admission ceiling.
	// example: 4
	MaxConcurrent int `json:"max_concurrent" example:"4"`
}

// ContainerStatus summarizes one managed container for /status.
type ContainerStatus struct {
	// example: qwen2.5-7b
	ModelID string `json:"model_id" example:"qwen2.5-7b"`
	// stopped, starting, running or stopping.
	// example: running
	State string `json:"state" example:"running"`
	// example: text
	Kind     string `json:"kind" example:"text"`
	KeepWarm bool   `json:"keep_warm"`
	// Unix seconds of the last proxied request.
	// example: 1700000000
	LastUsedUnix int64 `json:"last_used_unix" example:"1700000000"`
	// Host port the container serves on.
	// example: 9001
	Port int `json:"port" example:"9001"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Providers  []ProviderHealth  `json:"providers"`
	Containers []ContainerStatus `json:"containers"`
	// Global preemption switch.
	GamingMode bool `json:"gaming_mode"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// GamingModeRequest toggles the global preemption switch.
type GamingModeRequest struct {
	Enabled bool `json:"enabled"`
}

// GamingModeResponse reports the switch state after a toggle, with any
// per-container fan-out failures.
type GamingModeResponse struct {
	Enabled  bool     `json:"enabled"`
	Failures []string `json:"failures,omitempty"`
}

// StopAllResponse reports the outcome of POST /v1/stop-all.
type StopAllResponse struct {
	// False when at least one container refused to stop.
	Stopped bool `json:"stopped"`
	// Per-container stop failures, one message each.
	Failures []string `json:"failures,omitempty"`
}

// ErrorResponse is the single wire shape for every externally visible
// failure.
type ErrorResponse struct {
	// Human-readable message.
	// example: no backend available for model "auto"
	Error string `json:"error" example:"no backend available"`
	// Stable machine-readable kind.
	// example: provider_unavailable
	Type string `json:"type" example:"provider_unavailable"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}
