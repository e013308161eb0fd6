package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetd/internal/agent"
	"fleetd/internal/config"
	"fleetd/internal/health"
	"fleetd/internal/httpapi"
	"fleetd/internal/lifecycle"
	"fleetd/internal/registry"
	"fleetd/internal/router"
	"fleetd/internal/runtime"
	"fleetd/pkg/types"
)

// newUpstream starts a stub OpenAI-compatible backend. Chat replies are
// served in script order; once the script runs out the last reply repeats.
// The default health probe path always answers 200 so the monitor sees the
// provider as alive.
func newUpstream(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	var (
		mu    sync.Mutex
		calls int
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[]}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		reply := replies[len(replies)-1]
		if calls < len(replies) {
			reply = replies[calls]
		}
		calls++
		mu.Unlock()

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			frame, _ := json.Marshal(types.ChatCompletionChunk{
				ID:      "up-1",
				Object:  "chat.completion.chunk",
				Model:   req.Model,
				Choices: []types.ChatChunkChoice{{Delta: types.ChatDelta{Role: "assistant", Content: reply}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", frame)
			io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.ChatCompletionResponse{
			ID:     "up-1",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []types.ChatChoice{{
				Message:      types.ChatMessage{Role: "assistant", Content: reply},
				FinishReason: "stop",
			}},
			Usage: types.Usage{PromptTokens: 7, CompletionTokens: 5, TotalTokens: 12},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fleetConfig wires two container-backed models on one provider, one per
// routing tier.
func fleetConfig(upstreamURL string) config.Config {
	return config.Config{
		Providers: []types.Provider{{ID: "gpu-box", Endpoint: upstreamURL, MaxConcurrent: 4}},
		Models: []types.Model{
			{
				ID: "tiny", ProviderID: "gpu-box", ContextWindow: 8192, MaxTokens: 1024,
				Tags:      []string{"tier:small"},
				Container: &types.ContainerSpec{Ref: "e2e-tiny", Port: 9201},
			},
			{
				ID: "big", ProviderID: "gpu-box", ContextWindow: 32768, MaxTokens: 4096,
				Tags:      []string{"tier:large"},
				Container: &types.ContainerSpec{Ref: "e2e-big", Port: 9202},
			},
		},
		Aliases: map[string]string{"small": "tiny", "large": "big"},
		Router:  config.Router{DefaultModel: "auto", FailoverDelayMs: 5},
	}
}

// fleet is an in-process daemon assembled the way the binary assembles it,
// with the memory runtime driver standing in for docker.
type fleet struct {
	srv     *httptest.Server
	mgr     *lifecycle.Manager
	sandbox string
}

func newFleet(t *testing.T, cfg config.Config) *fleet {
	t.Helper()
	cfg.ApplyDefaults()
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	events := lifecycle.NewBroadcastPublisher()
	mgr := lifecycle.New(lifecycle.Config{
		Registry:      reg,
		Driver:        runtime.NewMemDriver(),
		Prober:        &runtime.StaticProber{},
		SweepInterval: cfg.Lifecycle.SweepInterval(),
		IdleTimeout:   cfg.Lifecycle.IdleTimeout(),
		StartTimeout:  cfg.Lifecycle.StartTimeout(),
		Publisher:     events,
	})
	mon := health.New(health.Config{
		Registry: reg,
		Interval: cfg.Health.Interval(),
		Timeout:  cfg.Health.Timeout(),
	})
	rt := router.New(router.Config{
		Registry:      reg,
		Health:        mon,
		Scheduler:     mgr,
		Upstream:      router.NewHTTPUpstream(),
		DefaultModel:  cfg.Router.DefaultModel,
		FailoverDelay: cfg.Router.FailoverDelay(),
	})
	root := t.TempDir()
	box, err := agent.NewLocalSandbox(root, cfg.Agent.ShellTimeout())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	exec := agent.New(agent.Config{
		Completer:   rt,
		Sandbox:     box,
		Model:       cfg.Router.DefaultModel,
		MaxSteps:    cfg.Agent.MaxSteps,
		RetryBudget: cfg.Agent.RetryBudget,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Run(ctx)
	go mon.Run(ctx)
	mux := httpapi.NewMux(httpapi.Config{
		Registry: reg,
		Chat:     rt,
		Fleet:    mgr,
		Health:   mon,
		Agent:    exec,
		Events:   events,
		Ready:    func() bool { return true },
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fleet{srv: srv, mgr: mgr, sandbox: root}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// containerState reads the scheduler's view of one model through /status.
func containerState(t *testing.T, baseURL, modelID string) string {
	t.Helper()
	resp, body := httpGet(t, baseURL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d: %s", resp.StatusCode, body)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	for _, c := range st.Containers {
		if c.ModelID == modelID {
			return c.State
		}
	}
	return ""
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
