// Package client talks to a running warden's admin endpoint. It backs the
// status and history subcommands and is usable by external tooling that
// wants the same view.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
	TLS     *TLSClientConfig
}

// TLSClientConfig holds TLS settings for HTTPS admin endpoints. A warden
// serving TLS uses a self-signed certificate unless the operator installed
// one, so CACert or SkipVerify is usually needed.
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string // overrides the name used for verification
	SkipVerify bool
}

// Client queries the warden admin API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:9090"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil {
		tlsConf, err := clientTLS(config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConf
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable reports whether a warden answers on the admin endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var ok struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/healthz", &ok); err != nil {
		c.logger.Debug("admin endpoint unreachable", "error", err)
		return false
	}
	return true
}

// Status fetches the current supervisor snapshot.
func (c *Client) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.getJSON(ctx, "/status", &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// History fetches the most recent lifecycle events, newest first. limit <= 0
// uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]Event, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var events []Event
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", c.baseURL+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("api error: %s", apiErr.Error)
		}
		return fmt.Errorf("query %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func clientTLS(cfg *TLSClientConfig) (*tls.Config, error) {
	tlsConf := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if cfg.SkipVerify {
		tlsConf.InsecureSkipVerify = true // #nosec G402 -- operator opt-in for self-signed admin certs
	}
	if cfg.ServerName != "" {
		tlsConf.ServerName = cfg.ServerName
	}
	if cfg.CACert != "" {
		pemBytes, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("parse CA certificate %s", cfg.CACert)
		}
		tlsConf.RootCAs = pool
	}
	return tlsConf, nil
}
