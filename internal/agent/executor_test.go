package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"fleetd/pkg/types"
)

// scriptedCompleter replays canned completions; the last reply repeats once
// the script is exhausted.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	reqs    []types.ChatCompletionRequest
	err     error
}

func (c *scriptedCompleter) Complete(_ context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return nil, c.err
	}
	reply := `{"tool":"task_complete","args":{}}`
	if len(c.replies) > 0 {
		reply = c.replies[0]
		if len(c.replies) > 1 {
			c.replies = c.replies[1:]
		}
	}
	return &types.ChatCompletionResponse{
		Choices: []types.ChatChoice{{Message: types.ChatMessage{Role: "assistant", Content: reply}}},
	}, nil
}

func (c *scriptedCompleter) requests() []types.ChatCompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ChatCompletionRequest(nil), c.reqs...)
}

type fakeRecorder struct {
	mu   sync.Mutex
	task string
	runs []types.AgentRunResponse
}

func (r *fakeRecorder) Save(_ context.Context, task string, run types.AgentRunResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task = task
	r.runs = append(r.runs, run)
	return nil
}

func newTestExecutor(t *testing.T, replies ...string) (*Executor, *scriptedCompleter, *LocalSandbox) {
	t.Helper()
	sb, err := NewLocalSandbox(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocalSandbox: %v", err)
	}
	c := &scriptedCompleter{replies: replies}
	return New(Config{Completer: c, Sandbox: sb}), c, sb
}

func TestRunCreateFileTask(t *testing.T) {
	e, c, sb := newTestExecutor(t,
		`{"tool": "write_file", "args": {"path": "result.txt", "content": "OK"}}`,
		`{"tool": "read_file", "args": {"path": "result.txt"}}`,
		`{"tool": "task_complete", "args": {"final_answer": "created result.txt"}}`,
	)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{
		Task:     "create a file named result.txt containing the text OK",
		MaxSteps: 5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Success || resp.TerminatedReason != ReasonCompleted {
		t.Fatalf("outcome = %v/%s, want success/completed", resp.Success, resp.TerminatedReason)
	}
	if resp.TotalSteps != 3 || len(resp.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", resp.TotalSteps)
	}
	if !resp.Steps[0].OK || resp.Steps[0].Tool != "write_file" {
		t.Fatalf("step 1 = %+v", resp.Steps[0])
	}
	if resp.Steps[1].Result != "OK" {
		t.Fatalf("final tool result = %q, want OK", resp.Steps[1].Result)
	}
	if resp.FinalAnswer != "created result.txt" {
		t.Fatalf("final answer = %q", resp.FinalAnswer)
	}
	if resp.ID == "" {
		t.Fatalf("missing run id")
	}

	data, err := os.ReadFile(filepath.Join(sb.Root(), "result.txt"))
	if err != nil || string(data) != "OK" {
		t.Fatalf("file on disk = %q, %v", data, err)
	}

	// the third completion sees the full step history
	reqs := c.requests()
	if len(reqs) != 3 {
		t.Fatalf("completions = %d, want 3", len(reqs))
	}
	var sawHistory bool
	for _, m := range reqs[2].Messages {
		if m.Role == "user" && strings.Contains(m.Content, "Step 2 ok") {
			sawHistory = true
		}
	}
	if !sawHistory {
		t.Fatalf("step history missing from prompt: %+v", reqs[2].Messages)
	}
	if reqs[0].Messages[0].Role != "system" || !strings.Contains(reqs[0].Messages[0].Content, "write_file(") {
		t.Fatalf("system prompt missing tool catalog")
	}
}

func TestRunMaxStepsExceeded(t *testing.T) {
	e, c, _ := newTestExecutor(t, `{"tool":"list_directory","args":{}}`)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "loop forever", MaxSteps: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Success || resp.TerminatedReason != ReasonMaxSteps {
		t.Fatalf("outcome = %v/%s, want failure/max_steps_exceeded", resp.Success, resp.TerminatedReason)
	}
	if resp.TotalSteps != 3 {
		t.Fatalf("steps = %d, want 3", resp.TotalSteps)
	}
	if got := len(c.requests()); got != 3 {
		t.Fatalf("completions = %d, want 3", got)
	}
}

func TestRunMalformedRepliesExhaustRetryBudget(t *testing.T) {
	e, c, _ := newTestExecutor(t, "let me think about this for a moment")

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "anything", MaxSteps: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Success || resp.TerminatedReason != ReasonMalformedExhausted {
		t.Fatalf("outcome = %v/%s, want failure/malformed_response_exhausted", resp.Success, resp.TerminatedReason)
	}
	if resp.TotalSteps != 0 {
		t.Fatalf("steps = %d, want 0", resp.TotalSteps)
	}
	// initial attempt plus the full retry budget
	reqs := c.requests()
	if len(reqs) != 4 {
		t.Fatalf("completions = %d, want 4", len(reqs))
	}
	last := reqs[len(reqs)-1].Messages
	if !strings.Contains(last[len(last)-1].Content, "not usable") {
		t.Fatalf("corrective note missing: %+v", last[len(last)-1])
	}
}

func TestRunUnknownToolCountsAsMalformed(t *testing.T) {
	e, c, _ := newTestExecutor(t, `{"tool":"format_disk","args":{}}`)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "anything", MaxSteps: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TerminatedReason != ReasonMalformedExhausted || resp.TotalSteps != 0 {
		t.Fatalf("outcome = %s/%d steps", resp.TerminatedReason, resp.TotalSteps)
	}
	if got := len(c.requests()); got != 4 {
		t.Fatalf("completions = %d, want 4", got)
	}
}

func TestRunPathViolationRecordedAndRefused(t *testing.T) {
	e, _, _ := newTestExecutor(t,
		`{"tool":"read_file","args":{"path":"../../etc/passwd"}}`,
		`{"tool":"task_complete","args":{"final_answer":"done"}}`,
	)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "read something", MaxSteps: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Success {
		t.Fatalf("run should recover after the refusal: %s", resp.TerminatedReason)
	}
	if len(resp.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(resp.Steps))
	}
	if resp.Steps[0].OK || !strings.Contains(resp.Steps[0].Result, "escapes the sandbox root") {
		t.Fatalf("violation step = %+v", resp.Steps[0])
	}
}

func TestRunToolFailureRecordedAndContinues(t *testing.T) {
	e, _, _ := newTestExecutor(t,
		`{"tool":"read_file","args":{"path":"missing.txt"}}`,
		`{"tool":"write_file","args":{"path":"x.txt","content":"hi"}}`,
		`{"tool":"task_complete","args":{}}`,
	)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "work", MaxSteps: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Success || resp.TotalSteps != 3 {
		t.Fatalf("outcome = %v/%d steps", resp.Success, resp.TotalSteps)
	}
	if resp.Steps[0].OK || !strings.Contains(resp.Steps[0].Result, "read_file") {
		t.Fatalf("failed step = %+v", resp.Steps[0])
	}
	if !resp.Steps[1].OK {
		t.Fatalf("write step failed: %+v", resp.Steps[1])
	}
	if resp.FinalAnswer != "task completed" {
		t.Fatalf("final answer = %q, want default", resp.FinalAnswer)
	}
}

func TestRunCompleterErrorAborts(t *testing.T) {
	e, c, _ := newTestExecutor(t)
	c.err = errors.New("no backend available")

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "anything"})
	if err == nil || !strings.Contains(err.Error(), "no backend available") {
		t.Fatalf("err = %v, want completion failure", err)
	}
	if resp != nil {
		t.Fatalf("resp = %+v, want nil", resp)
	}
}

func TestRunWorkingDirectoryOutsideRoot(t *testing.T) {
	e, c, _ := newTestExecutor(t)

	_, err := e.Run(context.Background(), types.AgentRunRequest{Task: "x", WorkingDirectory: "/etc"})
	if !IsPathViolation(err) {
		t.Fatalf("err = %v, want path violation", err)
	}
	if got := len(c.requests()); got != 0 {
		t.Fatalf("completions = %d, want 0", got)
	}
}

func TestRunRelativeWorkingDirectory(t *testing.T) {
	e, _, sb := newTestExecutor(t,
		`{"tool":"write_file","args":{"path":"out.txt","content":"x"}}`,
		`{"tool":"task_complete","args":{}}`,
	)

	resp, err := e.Run(context.Background(), types.AgentRunRequest{
		Task:             "write a file",
		WorkingDirectory: "jobs/1",
		MaxSteps:         5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Success {
		t.Fatalf("outcome = %s", resp.TerminatedReason)
	}
	if _, err := os.Stat(filepath.Join(sb.Root(), "jobs", "1", "out.txt")); err != nil {
		t.Fatalf("file not under working directory: %v", err)
	}
}

func TestRunRecorderSavesTerminalRecord(t *testing.T) {
	sb, err := NewLocalSandbox(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocalSandbox: %v", err)
	}
	c := &scriptedCompleter{}
	rec := &fakeRecorder{}
	e := New(Config{Completer: c, Sandbox: sb, Recorder: rec})

	resp, err := e.Run(context.Background(), types.AgentRunRequest{Task: "finish immediately"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.runs) != 1 || rec.runs[0].ID != resp.ID {
		t.Fatalf("recorded = %+v", rec.runs)
	}
	if rec.task != "finish immediately" {
		t.Fatalf("recorded task = %q", rec.task)
	}
}

func TestRunContextCanceled(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, types.AgentRunRequest{Task: "anything"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCatalogListsAllTools(t *testing.T) {
	specs := Catalog()
	if len(specs) != 7 {
		t.Fatalf("tools = %d, want 7", len(specs))
	}
	byName := map[string]types.ToolSpec{}
	for _, s := range specs {
		byName[s.Name] = s
	}
	for _, name := range []string{"read_file", "write_file", "edit_file", "run_shell", "search_files", "list_directory", "task_complete"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing tool %s", name)
		}
	}
	if args := byName["read_file"].Args; len(args) != 1 || args[0].Name != "path" || !args[0].Required {
		t.Fatalf("read_file args = %+v", byName["read_file"].Args)
	}

	specs[0].Name = "mutated"
	if Catalog()[0].Name == "mutated" {
		t.Fatalf("catalog not copied")
	}
}
