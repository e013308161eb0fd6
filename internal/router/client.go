package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"fleetd/pkg/types"
)

// Upstream sends chat completions to a provider backend.
type Upstream interface {
	Complete(ctx context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	// Stream opens a server-sent-event response. The caller owns the body.
	Stream(ctx context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (io.ReadCloser, error)
}

// backend isolates the per-kind completion path. All kinds speak the same
// chat envelope; only the upstream route differs.
type backend interface {
	completionPath() string
	supportsStreaming() bool
}

type textBackend struct{}

func (textBackend) completionPath() string  { return "/v1/chat/completions" }
func (textBackend) supportsStreaming() bool { return true }

type imageBackend struct{}

func (imageBackend) completionPath() string  { return "/v1/images/generations" }
func (imageBackend) supportsStreaming() bool { return false }

type ttsBackend struct{}

func (ttsBackend) completionPath() string  { return "/v1/audio/speech" }
func (ttsBackend) supportsStreaming() bool { return false }

func backendFor(m types.Model) backend {
	kind := types.KindText
	if m.Container != nil {
		kind = m.Container.Kind
	}
	switch kind {
	case types.KindImage:
		return imageBackend{}
	case types.KindTTS:
		return ttsBackend{}
	default:
		return textBackend{}
	}
}

// HTTPUpstream is the production Upstream. The client carries no global
// timeout; streams stay open as long as the request context allows.
type HTTPUpstream struct {
	client *http.Client
}

func NewHTTPUpstream() *HTTPUpstream {
	return &HTTPUpstream{client: &http.Client{}}
}

func (u *HTTPUpstream) Complete(ctx context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	req.Stream = false
	resp, err := u.post(ctx, p, m, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(p.ID, resp); err != nil {
		return nil, err
	}
	var out types.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ErrUpstreamUnavailable(p.ID, fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

func (u *HTTPUpstream) Stream(ctx context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (io.ReadCloser, error) {
	req.Stream = backendFor(m).supportsStreaming()
	if !req.Stream {
		return nil, ErrUpstreamPermanent(p.ID, http.StatusBadRequest, "backend kind does not stream")
	}
	resp, err := u.post(ctx, p, m, req)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(p.ID, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (u *HTTPUpstream) post(ctx context.Context, p types.Provider, m types.Model, req types.ChatCompletionRequest) (*http.Response, error) {
	req.Model = m.ID
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+backendFor(m).completionPath(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.AuthType == types.AuthBearer {
		httpReq.Header.Set("Authorization", "Bearer "+p.AuthToken)
	}
	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, classifyNetErr(p.ID, err)
	}
	return resp, nil
}

// classifyNetErr splits transport failures into timeout and unavailable.
func classifyNetErr(providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout(providerID, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrUpstreamTimeout(providerID, err)
	}
	return ErrUpstreamUnavailable(providerID, err)
}

// classifyStatus maps non-2xx answers: 5xx is transient, 4xx is permanent
// and carried through to the caller.
func classifyStatus(providerID string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	msg := readErrorBody(resp.Body)
	if resp.StatusCode >= 500 {
		return ErrUpstreamUnavailable(providerID, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	return ErrUpstreamPermanent(providerID, resp.StatusCode, msg)
}

// readErrorBody extracts a short message from an error response, preferring
// the OpenAI {"error": {"message": ...}} shape.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	return string(bytes.TrimSpace(b))
}
