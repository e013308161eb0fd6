package types

import "encoding/json"

// AgentRunRequest starts a bounded tool-using run.
type AgentRunRequest struct {
	// Natural-language task for the agent.
	// example: create a file named result.txt containing the text OK
	Task string `json:"task" example:"create a file named result.txt containing the text OK"`
	// Directory the run operates in; must live inside the sandbox root.
	// example: /work/jobs/42
	WorkingDirectory string `json:"working_directory" example:"/work/jobs/42"`
	// Model alias used for every completion in the run.
	// example: auto
	Model string `json:"model,omitempty" example:"auto"`
	// Step budget; the run terminates once reached (0 = server default).
	// example: 10
	MaxSteps int `json:"max_steps,omitempty" example:"10"`
}

// AgentStep is one executed (or refused) action of a run.
type AgentStep struct {
	// 1-based position in the run.
	// example: 1
	StepNumber int `json:"step_number" example:"1"`
	// Tool the model proposed.
	// example: write_file
	Tool string `json:"tool" example:"write_file"`
	// Raw argument object as proposed.
	Args json.RawMessage `json:"args,omitempty"`
	// Tool output or refusal reason.
	Result string `json:"result"`
	// False when the tool failed or the step was refused.
	OK bool `json:"ok"`
	// Unix seconds the step finished.
	Timestamp int64 `json:"timestamp"`
}

// AgentRunResponse is the terminal record of a run.
type AgentRunResponse struct {
	// Run id assigned by the executor.
	// example: 6f1f8a2e-...
	ID      string `json:"id"`
	Success bool   `json:"success"`
	// Final answer supplied with task_complete, if any.
	FinalAnswer string      `json:"final_answer,omitempty"`
	Steps       []AgentStep `json:"steps"`
	TotalSteps  int         `json:"total_steps"`
	// completed, max_steps_exceeded, malformed_response_exhausted or
	// tool_error_fatal.
	// example: completed
	TerminatedReason string `json:"terminated_reason" example:"completed"`
}

// ToolArg documents one argument of a sandbox tool.
type ToolArg struct {
	Name        string `json:"name" example:"path"`
	Type        string `json:"type" example:"string"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// ToolSpec documents one tool of the fixed allow-list.
type ToolSpec struct {
	Name        string    `json:"name" example:"read_file"`
	Description string    `json:"description"`
	Args        []ToolArg `json:"args"`
}

// ToolCatalogResponse wraps GET /v1/agent/tools.
type ToolCatalogResponse struct {
	Tools []ToolSpec `json:"tools"`
}
