// Package catalog resolves which inference backend the agent gateway should
// be configured against. The catalog normally comes from a remote JSON
// document; when that fetch fails the embedded static catalog applies, so
// first boot never blocks on the catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Static fallback values, matching the shipped deployment defaults.
const (
	DefaultBaseURL = "https://eigenai.eigencloud.xyz/v1"
	DefaultModel   = "gpt-oss-120b-f16"
	TestnetBaseURL = "https://eigenai-sepolia.eigencloud.xyz/v1"
)

// Entry is one selectable inference backend.
type Entry struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Default bool   `json:"default,omitempty"`
}

// Catalog is the set of backends offered to the agent.
type Catalog struct {
	Models []Entry `json:"models"`
}

// Default returns the entry marked default, or the first entry.
func (c Catalog) Default() (Entry, bool) {
	for _, e := range c.Models {
		if e.Default {
			return e, true
		}
	}
	if len(c.Models) > 0 {
		return c.Models[0], true
	}
	return Entry{}, false
}

// Static is the embedded catalog used when the remote fetch fails.
func Static() Catalog {
	return Catalog{Models: []Entry{
		{Name: DefaultModel, BaseURL: DefaultBaseURL, Default: true},
	}}
}

// Client fetches the remote catalog.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves and decodes the catalog. Any failure (transport, status,
// malformed body, empty model list) is returned so the caller can fall back
// to Static.
func (c *Client) Fetch(ctx context.Context) (Catalog, error) {
	if c.url == "" {
		return Catalog{}, errors.New("no catalog URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Catalog{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Catalog{}, fmt.Errorf("fetch catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Catalog{}, fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
	}
	var cat Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if len(cat.Models) == 0 {
		return Catalog{}, errors.New("catalog has no models")
	}
	return cat, nil
}
