package fleetctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fleetd/internal/runlog"
	"fleetd/pkg/types"
)

// Client talks to the fleetd HTTP API. The zero value is not usable;
// construct with NewClient.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the daemon at addr. Deadlines come
// from the request context, not the client.
func NewClient(addr string) *Client {
	return &Client{
		base: strings.TrimRight(addr, "/"),
		hc:   &http.Client{},
	}
}

// apiError is the daemon's error envelope surfaced as a Go error.
type apiError struct {
	Status int
	Kind   string
	Msg    string
}

func (e *apiError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s (%s, http %d)", e.Msg, e.Kind, e.Status)
	}
	return fmt.Sprintf("daemon answered http %d", e.Status)
}

func decodeAPIError(resp *http.Response) error {
	var body types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return &apiError{Status: resp.StatusCode, Kind: body.Type, Msg: body.Error}
	}
	return &apiError{Status: resp.StatusCode}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	debug("%s %s -> %d in %s", req.Method, req.URL.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches the fleet snapshot.
func (c *Client) Status(ctx context.Context) (*types.StatusResponse, error) {
	var st types.StatusResponse
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Models lists everything the daemon can serve.
func (c *Client) Models(ctx context.Context) ([]types.Model, error) {
	var resp types.ModelsResponse
	if err := c.getJSON(ctx, "/v1/models", &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// SetGamingMode flips the global preemption switch.
func (c *Client) SetGamingMode(ctx context.Context, enabled bool) (*types.GamingModeResponse, error) {
	var resp types.GamingModeResponse
	if err := c.postJSON(ctx, "/v1/gaming-mode", types.GamingModeRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopAll stops every managed container.
func (c *Client) StopAll(ctx context.Context) (*types.StopAllResponse, error) {
	var resp types.StopAllResponse
	if err := c.postJSON(ctx, "/v1/stop-all", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunAgent starts a bounded run and blocks until it terminates.
func (c *Client) RunAgent(ctx context.Context, req types.AgentRunRequest) (*types.AgentRunResponse, error) {
	var resp types.AgentRunResponse
	if err := c.postJSON(ctx, "/v1/agent/runs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tools fetches the sandbox tool catalog.
func (c *Client) Tools(ctx context.Context) ([]types.ToolSpec, error) {
	var resp types.ToolCatalogResponse
	if err := c.getJSON(ctx, "/v1/agent/tools", &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// RecentRuns lists persisted runs, newest first. limit 0 keeps the
// server default.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]runlog.Run, error) {
	path := "/v1/agent/runs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp struct {
		Runs []runlog.Run `json:"runs"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Chat sends a non-streaming completion through the router.
func (c *Client) Chat(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	req.Stream = false
	var resp types.ChatCompletionResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
