// Package warden supervises an agent gateway subprocess inside its
// deployment container: it spawns the gateway, polls its liveness endpoint,
// and restarts it with bounded backoff when health checks fail.
//
// This package is a thin facade over the internal packages for embedding;
// the warden binary under cmd/warden is the usual entrypoint.
package warden

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eigenclaw/warden/internal/bootstrap"
	"github.com/eigenclaw/warden/internal/config"
	"github.com/eigenclaw/warden/internal/gatewayproc"
	"github.com/eigenclaw/warden/internal/health"
	"github.com/eigenclaw/warden/internal/history"
	"github.com/eigenclaw/warden/internal/metrics"
	"github.com/eigenclaw/warden/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Supervisor

type Snapshot = supervisor.Snapshot

type Supervisor = supervisor.Supervisor

type Gateway = supervisor.Gateway

type Event = history.Event

type Sink = history.Sink

type Applier = bootstrap.Applier

type Bootstrapper = bootstrap.Bootstrapper

// LoadConfig reads the supervisor configuration from the environment,
// optionally merged over a TOML file at path (environment wins).
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// New builds a supervisor for cfg with the real spawner and HTTP prober.
// The gateway's output passes through to the standard streams.
func New(cfg Config) *Supervisor {
	argv := cfg.GatewayArgs()
	spawner := supervisor.SpawnerFunc(func() (supervisor.Gateway, error) {
		return gatewayproc.Start(argv, cfg.Env, nil, nil)
	})
	prober := health.NewHTTPProber(cfg.HealthURL(), cfg.ProbeTimeout)
	return supervisor.New(cfg, spawner, prober)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
