// Package supervisor drives the gateway lifecycle as an explicit state
// machine: spawn, wait out the grace period, poll the liveness endpoint, and
// restart with bounded backoff when a probe fails. The loop never ends on its
// own; only an unrecoverable initial spawn failure or context cancellation
// makes Run return.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eigenclaw/warden/internal/config"
	"github.com/eigenclaw/warden/internal/gatewayproc"
	"github.com/eigenclaw/warden/internal/health"
	"github.com/eigenclaw/warden/internal/history"
	"github.com/eigenclaw/warden/internal/metrics"
)

// State is the supervisor's position in the lifecycle.
type State int

const (
	StateStarting State = iota // just spawned, within the grace period
	StateHealthy               // most recent probe succeeded
	StateUnhealthy             // probe failed after the grace period
	StateRestarting            // tearing down the old process, about to spawn
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Gateway is the supervised subprocess handle. gatewayproc.Process satisfies
// it; tests substitute fakes.
type Gateway interface {
	Alive() bool
	Terminate(grace time.Duration) error
	Snapshot() gatewayproc.Status
}

// Spawner creates a new gateway subprocess.
type Spawner interface {
	Spawn() (Gateway, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func() (Gateway, error)

func (f SpawnerFunc) Spawn() (Gateway, error) { return f() }

// Snapshot is the externally visible supervisor state, served by the admin API.
type Snapshot struct {
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
	LastProbe string    `json:"last_probe,omitempty"`
}

// Supervisor owns exactly one gateway subprocess. The control loop is a
// single goroutine; the mutex only guards the snapshot fields read by the
// admin server and the process handle swap, so a shutdown signal and a
// health-driven restart can never race on the same child.
type Supervisor struct {
	cfg     config.Supervisor
	spawner Spawner
	prober  health.Prober
	clock   Clock
	log     *slog.Logger
	sink    history.Sink

	// FailureThreshold is the number of consecutive failed probes required
	// to trigger a restart. The deployed policy is 1: a single blip after
	// the grace window restarts the gateway, trading false positives for
	// fast recovery. Kept as a field so operators can tune it later.
	FailureThreshold int

	mu        sync.Mutex
	state     State
	gw        Gateway
	startedAt time.Time
	restarts  int
	lastProbe string
}

func New(cfg config.Supervisor, spawner Spawner, prober health.Prober) *Supervisor {
	return &Supervisor{
		cfg:              cfg,
		spawner:          spawner,
		prober:           prober,
		clock:            realClock{},
		log:              slog.Default(),
		FailureThreshold: 1,
		state:            StateStarting,
	}
}

// SetClock replaces the wall clock; tests inject a fake.
func (s *Supervisor) SetClock(c Clock) { s.clock = c }

// SetLogger replaces the default slog logger.
func (s *Supervisor) SetLogger(l *slog.Logger) { s.log = l }

// SetSink configures an optional lifecycle event sink.
func (s *Supervisor) SetSink(sink history.Sink) { s.sink = sink }

// Status returns a copy of the externally visible state.
func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:     s.state.String(),
		StartedAt: s.startedAt,
		Restarts:  s.restarts,
		LastProbe: s.lastProbe,
	}
	if s.gw != nil {
		snap.PID = s.gw.Snapshot().PID
	}
	return snap
}

// Run spawns the gateway and supervises it until ctx is cancelled. It returns
// an error only when the very first spawn fails; every later failure is
// absorbed by the restart loop, because the supervisor's one contract is to
// keep something running.
func (s *Supervisor) Run(ctx context.Context) error {
	gw, err := s.spawner.Spawn()
	if err != nil {
		metrics.IncSpawnFailure()
		return fmt.Errorf("initial gateway spawn: %w", err)
	}
	s.adopt(gw)
	metrics.IncSpawn()
	metrics.SetState(StateStarting.String(), true)
	s.record(ctx, history.EventSpawn, "initial spawn")
	s.log.Info("gateway spawned", slog.Int("pid", gw.Snapshot().PID), slog.Int("port", s.cfg.Port))

	failures := 0
	for {
		if ctx.Err() != nil {
			return s.shutdown()
		}

		switch s.currentState() {
		case StateStarting:
			if s.sinceStart() < s.cfg.GracePeriod {
				// No probe inside the grace window; the gateway is still
				// booting and a failure here would be a false negative.
				s.clock.Sleep(ctx, s.cfg.BootPollInterval)
				continue
			}
			if s.probe(ctx) {
				failures = 0
				s.transition(ctx, StateHealthy)
			} else {
				failures++
				s.transition(ctx, StateUnhealthy)
			}

		case StateHealthy:
			s.clock.Sleep(ctx, s.cfg.PollInterval)
			if ctx.Err() != nil {
				continue
			}
			if s.probe(ctx) {
				failures = 0
			} else {
				failures++
				s.transition(ctx, StateUnhealthy)
			}

		case StateUnhealthy:
			metrics.IncProbeFailure()
			s.record(ctx, history.EventUnhealthy, s.lastProbeReason())
			if failures >= s.FailureThreshold {
				s.transition(ctx, StateRestarting)
			} else {
				s.clock.Sleep(ctx, s.cfg.PollInterval)
				if s.probe(ctx) {
					failures = 0
					s.transition(ctx, StateHealthy)
				} else {
					failures++
				}
			}

		case StateRestarting:
			s.restart(ctx)
			failures = 0
		}
	}
}

// restart tears down the current child, waits out the backoff, and spawns a
// replacement, retrying forever on spawn errors.
func (s *Supervisor) restart(ctx context.Context) {
	old := s.current()
	if err := old.Terminate(s.cfg.StopWait); err != nil {
		// Forced kill failing is logged but never stops the loop.
		s.log.Error("gateway terminate failed", slog.String("error", err.Error()))
	}
	metrics.IncRestart()
	metrics.SetUp(false)
	s.record(ctx, history.EventRestart, "terminated after failed probe")

	for {
		s.clock.Sleep(ctx, s.cfg.Backoff)
		if ctx.Err() != nil {
			return
		}
		gw, err := s.spawner.Spawn()
		if err != nil {
			metrics.IncSpawnFailure()
			s.record(ctx, history.EventSpawnFailure, err.Error())
			s.log.Error("gateway spawn failed, retrying after backoff",
				slog.String("error", err.Error()),
				slog.Duration("backoff", s.cfg.Backoff))
			continue
		}
		s.adopt(gw)
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		metrics.IncSpawn()
		s.record(ctx, history.EventSpawn, "respawned")
		s.log.Info("gateway respawned", slog.Int("pid", gw.Snapshot().PID))
		s.transition(ctx, StateStarting)
		return
	}
}

// shutdown forwards a graceful stop to the tracked child so the container
// exit never orphans the gateway.
func (s *Supervisor) shutdown() error {
	gw := s.current()
	if gw != nil {
		s.log.Info("supervisor stopping, terminating gateway")
		_ = gw.Terminate(s.cfg.StopWait)
		s.record(context.Background(), history.EventExit, "supervisor shutdown")
	}
	return nil
}

// probe runs one liveness check and records the outcome.
func (s *Supervisor) probe(ctx context.Context) bool {
	res := s.prober.Probe(ctx)
	s.mu.Lock()
	if res.Healthy {
		s.lastProbe = "ok"
	} else {
		s.lastProbe = res.Reason
	}
	s.mu.Unlock()
	metrics.SetUp(res.Healthy)
	if !res.Healthy {
		s.log.Warn("liveness probe failed", slog.String("reason", res.Reason))
	}
	return res.Healthy
}

func (s *Supervisor) transition(ctx context.Context, to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	metrics.SetState(from.String(), false)
	metrics.SetState(to.String(), true)
	s.log.Debug("state transition", slog.String("from", from.String()), slog.String("to", to.String()))
	if to == StateHealthy {
		s.record(ctx, history.EventHealthy, "")
	}
}

// adopt swaps in a new child and resets its start timestamp. State changes
// go through transition so the metrics gauges stay consistent.
func (s *Supervisor) adopt(gw Gateway) {
	s.mu.Lock()
	s.gw = gw
	s.startedAt = s.clock.Now()
	s.mu.Unlock()
}

func (s *Supervisor) current() Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw
}

func (s *Supervisor) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) sinceStart() time.Duration {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	return s.clock.Now().Sub(started)
}

func (s *Supervisor) lastProbeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProbe
}

func (s *Supervisor) record(ctx context.Context, typ history.EventType, detail string) {
	if s.sink == nil {
		return
	}
	var pid int
	if gw := s.current(); gw != nil {
		pid = gw.Snapshot().PID
	}
	evt := history.Event{
		Type:       typ,
		Name:       "gateway",
		PID:        pid,
		Detail:     detail,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.sink.Send(ctx, evt); err != nil {
		s.log.Warn("history sink write failed", slog.String("error", err.Error()))
	}
}
