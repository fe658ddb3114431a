// Package health performs single bounded-time liveness probes against the
// gateway's local HTTP health endpoint. Retry cadence belongs to the
// supervisor's polling loop, not to this client.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the outcome of one probe. It is produced per poll cycle and
// consumed immediately; it is never stored.
type Result struct {
	Healthy bool
	Reason  string
}

// Prober issues one liveness check per call.
type Prober interface {
	Probe(ctx context.Context) Result
}

// HTTPProber probes a fixed URL with its own timeout so a hung endpoint
// cannot stall the supervisor loop.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Probe classifies any 2xx response as healthy. Connection refused, timeout,
// and non-2xx statuses are all unhealthy; no retries happen here.
func (p *HTTPProber) Probe(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{Reason: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Reason: fmt.Sprintf("unreachable: %v", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return Result{Healthy: true}
}
