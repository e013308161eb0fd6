package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProber probes readiness endpoints with plain GETs. Any 2xx is ready.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober whose requests give up after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}
