package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fleetd/internal/config"
	"fleetd/internal/health"
	"fleetd/internal/lifecycle"
	"fleetd/internal/registry"
	"fleetd/pkg/types"
)

func routerTestConfig() config.Config {
	cfg := config.Default()
	cfg.Providers = []types.Provider{
		{ID: "gpu-local", Endpoint: "http://127.0.0.1:9001", Priority: 10, MaxConcurrent: 2},
		{ID: "cloud", Endpoint: "https://api.example.com", Priority: 20, MaxConcurrent: 4, AuthType: types.AuthBearer, AuthToken: "sk-test"},
	}
	cfg.Models = []types.Model{
		{
			ID: "llama-8b", ProviderID: "gpu-local",
			Tags:      []string{registry.TagTierSmall},
			Container: &types.ContainerSpec{Ref: "llama-8b-ref", Port: 9001},
		},
		{
			ID: "llama-70b", ProviderID: "gpu-local",
			Tags:      []string{registry.TagTierLarge},
			Container: &types.ContainerSpec{Ref: "llama-70b-ref", Port: 9002},
		},
		{
			ID: "gpt-4o", ProviderID: "cloud",
			Tags: []string{registry.TagTierLarge},
		},
	}
	cfg.Aliases = map[string]string{"small": "llama-8b"}
	return cfg
}

type fakeSched struct {
	mu         sync.Mutex
	gaming     bool
	ensureErrs map[string]error
	ensures    []string
	forces     []bool
	touches    []string
}

func (s *fakeSched) EnsureRunning(_ context.Context, modelID string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensures = append(s.ensures, modelID)
	s.forces = append(s.forces, force)
	return s.ensureErrs[modelID]
}

func (s *fakeSched) Touch(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, modelID)
}

func (s *fakeSched) GamingMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaming
}

type fakeHealth struct{ statuses map[string]health.Status }

func (h *fakeHealth) StatusFor(providerID string) health.Status {
	if s, ok := h.statuses[providerID]; ok {
		return s
	}
	return health.StatusHealthy
}

type upstreamCall struct {
	provider string
	model    string
}

type fakeUpstream struct {
	mu       sync.Mutex
	calls    []upstreamCall
	complete func(call int, p types.Provider, m types.Model, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	stream   func(call int, p types.Provider, m types.Model, req types.ChatCompletionRequest) (io.ReadCloser, error)
}

func (u *fakeUpstream) record(p types.Provider, m types.Model) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, upstreamCall{provider: p.ID, model: m.ID})
	return len(u.calls) - 1
}

func (u *fakeUpstream) Complete(_ context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	n := u.record(p, m)
	if u.complete == nil {
		return &types.ChatCompletionResponse{}, nil
	}
	return u.complete(n, p, m, req)
}

func (u *fakeUpstream) Stream(_ context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (io.ReadCloser, error) {
	n := u.record(p, m)
	if u.stream == nil {
		return io.NopCloser(strings.NewReader("data: [DONE]\n\n")), nil
	}
	return u.stream(n, p, m, req)
}

func (u *fakeUpstream) callList() []upstreamCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upstreamCall(nil), u.calls...)
}

type routerFixture struct {
	rt     *Router
	up     *fakeUpstream
	sched  *fakeSched
	health *fakeHealth
}

func newRouterFixture(t *testing.T, mutate func(*config.Config)) *routerFixture {
	t.Helper()
	cfg := routerTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	f := &routerFixture{
		up:     &fakeUpstream{},
		sched:  &fakeSched{ensureErrs: map[string]error{}},
		health: &fakeHealth{statuses: map[string]health.Status{}},
	}
	f.rt = New(Config{
		Registry:      reg,
		Health:        f.health,
		Scheduler:     f.sched,
		Upstream:      f.up,
		FailoverDelay: time.Millisecond,
	})
	return f
}

func chatReq(model string, maxTokens int) types.ChatCompletionRequest {
	return types.ChatCompletionRequest{
		Model:     model,
		Messages:  []types.ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens: maxTokens,
	}
}

func assertCalls(t *testing.T, got []upstreamCall, want ...upstreamCall) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("upstream calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("upstream call %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCompleteRoutesExplicitModel(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.complete = func(_ int, _ types.Provider, _ types.Model, _ types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
		return &types.ChatCompletionResponse{
			Choices: []types.ChatChoice{{Message: types.ChatMessage{Role: "assistant", Content: "hello"}}},
		}, nil
	}

	resp, err := f.rt.Complete(context.Background(), chatReq("llama-8b", 64))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "gpu-local" || resp.Model != "llama-8b" {
		t.Fatalf("routed to %s/%s, want gpu-local/llama-8b", resp.Provider, resp.Model)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Fatalf("response id = %q, want chatcmpl- prefix", resp.ID)
	}
	if resp.Object != "chat.completion" || resp.Created == 0 {
		t.Fatalf("envelope not filled: object=%q created=%d", resp.Object, resp.Created)
	}
	if len(f.sched.ensures) != 1 || f.sched.ensures[0] != "llama-8b" {
		t.Fatalf("ensures = %v, want [llama-8b]", f.sched.ensures)
	}
	if len(f.sched.touches) != 1 || f.sched.touches[0] != "llama-8b" {
		t.Fatalf("touches = %v, want [llama-8b]", f.sched.touches)
	}
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active after completion = %d, want 0", got)
	}
}

func TestCompleteResolvesAlias(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp, err := f.rt.Complete(context.Background(), chatReq("small", 64))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "llama-8b" {
		t.Fatalf("alias resolved to %s, want llama-8b", resp.Model)
	}
}

func TestCompleteAutoPicksTierBySize(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 64))
	if err != nil {
		t.Fatalf("small request: %v", err)
	}
	if resp.Model != "llama-8b" {
		t.Fatalf("small request routed to %s, want llama-8b", resp.Model)
	}

	resp, err = f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("large request: %v", err)
	}
	// both large-tier backends are healthy; lower priority wins
	if resp.Model != "llama-70b" {
		t.Fatalf("large request routed to %s, want llama-70b", resp.Model)
	}
}

func TestCompleteDefaultsModelWhenEmpty(t *testing.T) {
	f := newRouterFixture(t, nil)

	req := chatReq("", 64)
	resp, err := f.rt.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "llama-8b" {
		t.Fatalf("empty model routed to %s, want llama-8b via auto", resp.Model)
	}
}

func TestCompleteUnknownModel(t *testing.T) {
	f := newRouterFixture(t, nil)

	_, err := f.rt.Complete(context.Background(), chatReq("nope", 64))
	if !registry.IsUnknownModel(err) {
		t.Fatalf("err = %v, want unknown model", err)
	}
	if len(f.up.callList()) != 0 {
		t.Fatalf("upstream called for unknown model")
	}
}

func TestUnhealthyProviderSkipped(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.health.statuses["gpu-local"] = health.StatusUnhealthy

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "cloud" {
		t.Fatalf("routed to %s, want cloud", resp.Provider)
	}

	_, err = f.rt.Complete(context.Background(), chatReq("llama-8b", 64))
	if !IsProviderUnavailable(err) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
}

func TestForceBypassesUnhealthy(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.health.statuses["gpu-local"] = health.StatusUnhealthy

	req := chatReq("llama-8b", 64)
	req.Force = true
	resp, err := f.rt.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "gpu-local" {
		t.Fatalf("routed to %s, want gpu-local", resp.Provider)
	}
	if len(f.sched.forces) != 1 || !f.sched.forces[0] {
		t.Fatalf("forces = %v, want [true]", f.sched.forces)
	}
}

func TestDegradedRanksBelowHealthy(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.health.statuses["gpu-local"] = health.StatusDegraded

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// llama-70b has the better priority but its provider is degraded
	if resp.Provider != "cloud" {
		t.Fatalf("routed to %s, want cloud", resp.Provider)
	}
}

func TestGamingModeRoutesAroundManaged(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.sched.gaming = true

	// the preferred small tier is entirely managed, so the request
	// downgrades to the unmanaged large-tier backend
	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 64))
	if err != nil {
		t.Fatalf("small request: %v", err)
	}
	if resp.Provider != "cloud" || resp.Model != "gpt-4o" {
		t.Fatalf("routed to %s/%s, want cloud/gpt-4o", resp.Provider, resp.Model)
	}
	if len(f.sched.ensures) != 0 {
		t.Fatalf("ensures = %v, want none while gaming", f.sched.ensures)
	}

	resp, err = f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("large request: %v", err)
	}
	if resp.Model != "gpt-4o" {
		t.Fatalf("large request routed to %s, want gpt-4o", resp.Model)
	}
}

func TestGamingModeForceUsesManaged(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.sched.gaming = true

	req := chatReq("auto", 64)
	req.Force = true
	resp, err := f.rt.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "llama-8b" {
		t.Fatalf("routed to %s, want llama-8b", resp.Model)
	}
	if len(f.sched.forces) != 1 || !f.sched.forces[0] {
		t.Fatalf("forces = %v, want [true]", f.sched.forces)
	}
}

func TestCapacityFilterSkipsSaturatedProvider(t *testing.T) {
	f := newRouterFixture(t, nil)

	rel1, ok := f.rt.counters.Admit("gpu-local")
	if !ok {
		t.Fatalf("admit 1 refused")
	}
	rel2, ok := f.rt.counters.Admit("gpu-local")
	if !ok {
		t.Fatalf("admit 2 refused")
	}
	if _, ok := f.rt.counters.Admit("gpu-local"); ok {
		t.Fatalf("admit beyond limit succeeded")
	}

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "cloud" {
		t.Fatalf("routed to %s, want cloud while gpu-local is saturated", resp.Provider)
	}

	// release is idempotent: double call frees one slot, not two
	rel1()
	rel1()
	if got := f.rt.Active("gpu-local"); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
	rel2()
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}

	resp, err = f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete after release: %v", err)
	}
	if resp.Provider != "gpu-local" {
		t.Fatalf("routed to %s, want gpu-local after release", resp.Provider)
	}
}

func TestCompleteRetriesTransientThenHops(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.complete = func(call int, p types.Provider, _ types.Model, _ types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
		if call < 2 {
			return nil, ErrUpstreamUnavailable(p.ID, errors.New("connection refused"))
		}
		return &types.ChatCompletionResponse{}, nil
	}

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "cloud" || resp.Model != "gpt-4o" {
		t.Fatalf("routed to %s/%s, want cloud/gpt-4o after failover", resp.Provider, resp.Model)
	}
	assertCalls(t, f.up.callList(),
		upstreamCall{"gpu-local", "llama-70b"},
		upstreamCall{"gpu-local", "llama-70b"},
		upstreamCall{"cloud", "gpt-4o"},
	)
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active after failed attempts = %d, want 0", got)
	}
}

func TestCompletePermanentErrorNotRetried(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.complete = func(_ int, p types.Provider, _ types.Model, _ types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
		return nil, ErrUpstreamPermanent(p.ID, 400, "bad request")
	}

	_, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	perm, ok := IsUpstreamPermanent(err)
	if !ok {
		t.Fatalf("err = %v, want permanent", err)
	}
	if perm.StatusCode() != 400 || perm.Message() != "bad request" {
		t.Fatalf("permanent = %d %q, want 400 \"bad request\"", perm.StatusCode(), perm.Message())
	}
	if n := len(f.up.callList()); n != 1 {
		t.Fatalf("upstream called %d times, want 1", n)
	}
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active after error = %d, want 0", got)
	}
}

func TestCompleteNoFallbackReturnsTransientError(t *testing.T) {
	f := newRouterFixture(t, nil)
	sentinel := errors.New("connection refused")
	f.up.complete = func(_ int, p types.Provider, _ types.Model, _ types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
		return nil, ErrUpstreamUnavailable(p.ID, sentinel)
	}

	_, err := f.rt.Complete(context.Background(), chatReq("llama-8b", 64))
	if !IsUpstreamTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	// one retry on the only candidate, then no hop target
	if n := len(f.up.callList()); n != 2 {
		t.Fatalf("upstream called %d times, want 2", n)
	}
	if len(f.sched.touches) != 0 {
		t.Fatalf("touches = %v, want none on failure", f.sched.touches)
	}
}

func TestCompleteEnsureFailureRetriedWithoutUpstreamCall(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.sched.ensureErrs["llama-8b"] = lifecycle.ErrStartup("llama-8b", errors.New("image pull failed"))

	_, err := f.rt.Complete(context.Background(), chatReq("llama-8b", 64))
	if !IsUpstreamTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if n := len(f.up.callList()); n != 0 {
		t.Fatalf("upstream called %d times, want 0", n)
	}
	if got := []string{"llama-8b", "llama-8b"}; len(f.sched.ensures) != 2 || f.sched.ensures[0] != got[0] || f.sched.ensures[1] != got[1] {
		t.Fatalf("ensures = %v, want %v", f.sched.ensures, got)
	}
}

func TestCompleteBlockedByGamingHopsWithoutRetry(t *testing.T) {
	f := newRouterFixture(t, nil)
	// the gate flipped between selection and ensure
	f.sched.ensureErrs["llama-70b"] = lifecycle.ErrBlockedByGamingMode("llama-70b")

	resp, err := f.rt.Complete(context.Background(), chatReq("auto", 10000))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "cloud" {
		t.Fatalf("routed to %s, want cloud", resp.Provider)
	}
	if len(f.sched.ensures) != 1 {
		t.Fatalf("ensures = %v, want a single attempt before the hop", f.sched.ensures)
	}
	assertCalls(t, f.up.callList(), upstreamCall{"cloud", "gpt-4o"})
}

func TestConcurrentAdmissionNeverExceedsLimit(t *testing.T) {
	f := newRouterFixture(t, nil)
	var inflight, peak atomic.Int64
	f.up.complete = func(_ int, _ types.Provider, _ types.Model, _ types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return &types.ChatCompletionResponse{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// saturation errors are expected here; only the invariants matter
			_, _ = f.rt.Complete(context.Background(), chatReq("llama-8b", 64))
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active after drain = %d, want 0", got)
	}
}

func TestStreamInjectsProviderAndForwardsDone(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.stream = func(_ int, _ types.Provider, _ types.Model, _ types.ChatCompletionRequest) (io.ReadCloser, error) {
		frames := "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
			"data: [DONE]\n\n"
		return io.NopCloser(strings.NewReader(frames)), nil
	}

	var buf bytes.Buffer
	flushes := 0
	err := f.rt.StreamTo(context.Background(), chatReq("llama-8b", 64), &buf, func() { flushes++ })
	if err != nil {
		t.Fatalf("StreamTo: %v", err)
	}
	out := buf.String()
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Fatalf("output missing terminator: %q", out)
	}
	if flushes != 2 {
		t.Fatalf("flushes = %d, want 2", flushes)
	}

	first := strings.SplitN(out, "\n", 2)[0]
	var frame types.ChatCompletionChunk
	if err := json.Unmarshal([]byte(strings.TrimPrefix(first, "data: ")), &frame); err != nil {
		t.Fatalf("frame not json: %v", err)
	}
	if frame.Provider != "gpu-local" {
		t.Fatalf("frame provider = %q, want gpu-local", frame.Provider)
	}
	if frame.ID != "c1" || len(frame.Choices) != 1 || frame.Choices[0].Delta.Content != "hi" {
		t.Fatalf("frame mangled: %+v", frame)
	}
	if got := f.rt.Active("gpu-local"); got != 0 {
		t.Fatalf("active after stream = %d, want 0", got)
	}
}

func TestStreamEmptyBodyFailsOver(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.stream = func(call int, _ types.Provider, _ types.Model, _ types.ChatCompletionRequest) (io.ReadCloser, error) {
		if call < 2 {
			return io.NopCloser(strings.NewReader("")), nil
		}
		return io.NopCloser(strings.NewReader("data: {\"id\":\"c2\"}\n\ndata: [DONE]\n\n")), nil
	}

	var buf bytes.Buffer
	err := f.rt.StreamTo(context.Background(), chatReq("auto", 10000), &buf, func() {})
	if err != nil {
		t.Fatalf("StreamTo: %v", err)
	}
	assertCalls(t, f.up.callList(),
		upstreamCall{"gpu-local", "llama-70b"},
		upstreamCall{"gpu-local", "llama-70b"},
		upstreamCall{"cloud", "gpt-4o"},
	)
	if !strings.Contains(buf.String(), "\"provider\":\"cloud\"") {
		t.Fatalf("output missing cloud provider tag: %q", buf.String())
	}
	if f.rt.Active("gpu-local") != 0 || f.rt.Active("cloud") != 0 {
		t.Fatalf("active counts not drained")
	}
}

// readThenFail yields its payload, then a non-EOF error.
type readThenFail struct {
	r   io.Reader
	err error
}

func (r *readThenFail) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func (r *readThenFail) Close() error { return nil }

func TestStreamNoFailoverAfterFirstFrame(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.up.stream = func(_ int, _ types.Provider, _ types.Model, _ types.ChatCompletionRequest) (io.ReadCloser, error) {
		return &readThenFail{
			r:   strings.NewReader("data: {\"id\":\"c3\"}\n\n"),
			err: errors.New("connection reset"),
		}, nil
	}

	var buf bytes.Buffer
	err := f.rt.StreamTo(context.Background(), chatReq("auto", 10000), &buf, func() {})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v, want connection reset", err)
	}
	if n := len(f.up.callList()); n != 1 {
		t.Fatalf("upstream called %d times, want 1 once a frame was forwarded", n)
	}
	if !strings.Contains(buf.String(), "\"id\":\"c3\"") {
		t.Fatalf("forwarded frame missing from output: %q", buf.String())
	}
}

func TestStreamSelectionErrorWritesNothing(t *testing.T) {
	f := newRouterFixture(t, nil)

	var buf bytes.Buffer
	err := f.rt.StreamTo(context.Background(), chatReq("nope", 64), &buf, func() {})
	if !registry.IsUnknownModel(err) {
		t.Fatalf("err = %v, want unknown model", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %q before selection", buf.String())
	}
}

func TestEstimateTokens(t *testing.T) {
	req := types.ChatCompletionRequest{
		Messages: []types.ChatMessage{
			{Role: "user", Content: strings.Repeat("a", 400)},
			{Role: "assistant", Content: strings.Repeat("b", 40)},
		},
		MaxTokens: 128,
	}
	if got := estimateTokens(req); got != 110+128 {
		t.Fatalf("estimateTokens = %d, want %d", got, 110+128)
	}
}
