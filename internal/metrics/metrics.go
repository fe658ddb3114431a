package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	gatewaySpawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "spawns_total",
			Help:      "Number of successful gateway spawns, including restarts.",
		},
	)
	gatewayRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "restarts_total",
			Help:      "Number of restarts triggered by failed liveness probes.",
		},
	)
	spawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "spawn_failures_total",
			Help:      "Number of failed spawn attempts.",
		},
	)
	probeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "probe_failures_total",
			Help:      "Number of failed liveness probes after the grace period.",
		},
	)
	gatewayUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "up",
			Help:      "1 when the most recent liveness probe succeeded.",
		},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{gatewaySpawns, gatewayRestarts, spawnFailures, probeFailures, gatewayUp, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers used by the supervisor; they no-op until Register has been called.

func IncSpawn() {
	if regOK.Load() {
		gatewaySpawns.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		gatewayRestarts.Inc()
	}
}

func IncSpawnFailure() {
	if regOK.Load() {
		spawnFailures.Inc()
	}
}

func IncProbeFailure() {
	if regOK.Load() {
		probeFailures.Inc()
	}
}

func SetUp(up bool) {
	if regOK.Load() {
		if up {
			gatewayUp.Set(1)
		} else {
			gatewayUp.Set(0)
		}
	}
}

func SetState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		currentState.WithLabelValues(state).Set(v)
	}
}
