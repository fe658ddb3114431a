package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eigenclaw/warden/internal/config"
	"github.com/eigenclaw/warden/internal/gatewayproc"
	"github.com/eigenclaw/warden/internal/health"
)

// fakeClock advances virtual time instantly on Sleep so the state machine can
// be driven deterministically without wall-clock waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeGateway struct {
	mu         sync.Mutex
	pid        int
	alive      bool
	terminates int
}

func (g *fakeGateway) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alive
}

func (g *fakeGateway) Terminate(time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminates++
	g.alive = false
	return nil
}

func (g *fakeGateway) Snapshot() gatewayproc.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gatewayproc.Status{PID: g.pid, Running: g.alive}
}

// fakeSpawner returns scripted errors, then live gateways. It records the
// virtual time of every attempt.
type fakeSpawner struct {
	mu       sync.Mutex
	clock    *fakeClock
	failures int // number of leading attempts that error
	attempts []time.Time
	spawned  []*fakeGateway
}

func (f *fakeSpawner) Spawn() (Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, f.clock.Now())
	if len(f.attempts) <= f.failures {
		return nil, errors.New("exec: gateway binary not found")
	}
	gw := &fakeGateway{pid: 1000 + len(f.spawned), alive: true}
	f.spawned = append(f.spawned, gw)
	return gw, nil
}

func (f *fakeSpawner) attemptTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.attempts...)
}

func (f *fakeSpawner) gateways() []*fakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeGateway(nil), f.spawned...)
}

// scriptProber replays a fixed probe script and cancels the run when the
// script is exhausted, recording the virtual time of every probe.
type scriptProber struct {
	mu     sync.Mutex
	clock  *fakeClock
	script []bool
	times  []time.Time
	cancel context.CancelFunc
}

func (p *scriptProber) Probe(ctx context.Context) health.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.times)
	p.times = append(p.times, p.clock.Now())
	if i >= len(p.script) {
		p.cancel()
		return health.Result{Healthy: true}
	}
	if p.script[i] {
		return health.Result{Healthy: true}
	}
	return health.Result{Reason: "connection refused"}
}

func (p *scriptProber) probeTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.times...)
}

func testConfig() config.Supervisor {
	return config.Supervisor{
		Port:             8080,
		HealthPath:       "/health",
		GracePeriod:      45 * time.Second,
		PollInterval:     10 * time.Second,
		BootPollInterval: 2 * time.Second,
		Backoff:          5 * time.Second,
		ProbeTimeout:     3 * time.Second,
		StopWait:         5 * time.Second,
		Command:          "agent-gateway",
	}
}

func run(t *testing.T, cfg config.Supervisor, script []bool, spawnFailures int) (*Supervisor, *fakeSpawner, *scriptProber, *fakeClock, error) {
	t.Helper()
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spawner := &fakeSpawner{clock: clock, failures: spawnFailures}
	prober := &scriptProber{clock: clock, script: script, cancel: cancel}
	s := New(cfg, spawner, prober)
	s.SetClock(clock)
	err := s.Run(ctx)
	return s, spawner, prober, clock, err
}

func TestGracePeriodSuppressesProbes(t *testing.T) {
	cfg := testConfig()
	_, spawner, prober, _, err := run(t, cfg, []bool{true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	start := spawner.attemptTimes()[0]
	for _, pt := range prober.probeTimes() {
		if pt.Sub(start) < cfg.GracePeriod {
			t.Fatalf("probe at %v, only %v after spawn (grace %v)", pt, pt.Sub(start), cfg.GracePeriod)
		}
	}
	if len(prober.probeTimes()) == 0 {
		t.Fatalf("expected at least one probe after grace")
	}
}

func TestStartingBecomesHealthyOnFirstProbe(t *testing.T) {
	s, _, _, _, err := run(t, testConfig(), []bool{true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := s.Status().State; got != "healthy" {
		t.Fatalf("state = %q, want healthy", got)
	}
}

func TestSingleFailureTriggersExactlyOneRestart(t *testing.T) {
	// healthy, then one failure, then healthy again on the new process
	s, spawner, _, _, err := run(t, testConfig(), []bool{true, false, true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	gws := spawner.gateways()
	if len(gws) != 2 {
		t.Fatalf("spawned %d gateways, want 2 (original + one restart)", len(gws))
	}
	if gws[0].terminates != 1 {
		t.Fatalf("first gateway terminated %d times, want exactly 1", gws[0].terminates)
	}
	if s.Status().Restarts != 1 {
		t.Fatalf("restarts = %d, want 1", s.Status().Restarts)
	}
}

func TestBackoffBoundBetweenFailureAndSpawn(t *testing.T) {
	cfg := testConfig()
	_, spawner, prober, _, err := run(t, cfg, []bool{true, false, true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	times := prober.probeTimes()
	attempts := spawner.attemptTimes()
	if len(times) < 2 || len(attempts) < 2 {
		t.Fatalf("times=%d attempts=%d", len(times), len(attempts))
	}
	failureAt := times[1]   // second probe is the scripted failure
	respawnAt := attempts[1]
	if got := respawnAt.Sub(failureAt); got < cfg.Backoff {
		t.Fatalf("respawn %v after failure, want >= %v", got, cfg.Backoff)
	}
}

func TestStartTimeResetAfterRestart(t *testing.T) {
	cfg := testConfig()
	// After the restart the prober must again stay silent for a full grace
	// window measured from the new spawn.
	_, spawner, prober, _, err := run(t, cfg, []bool{true, false, true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	respawnAt := spawner.attemptTimes()[1]
	post := prober.probeTimes()[2:]
	if len(post) == 0 {
		t.Fatalf("expected a probe after restart")
	}
	if got := post[0].Sub(respawnAt); got < cfg.GracePeriod {
		t.Fatalf("post-restart probe %v after respawn, want >= grace %v", got, cfg.GracePeriod)
	}
}

func TestSpawnFailuresRetriedForever(t *testing.T) {
	cfg := testConfig()
	// One probe failure forces a restart; the next three spawn attempts fail
	// before one succeeds. The loop must keep retrying, never exit.
	s, spawner, _, _, err := run(t, cfg, []bool{false, true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = s
	_ = spawner
}

func TestSpawnRetryAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// failSpawner: initial spawn succeeds, then 3 failures, then success.
	spawner := &respawnFailSpawner{clock: clock, failAfterFirst: 3}
	prober := &scriptProber{clock: clock, script: []bool{false, true}, cancel: cancel}
	s := New(cfg, spawner, prober)
	s.SetClock(clock)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	attempts := spawner.attemptTimes()
	// 1 initial + 3 failed respawns + 1 successful respawn
	if len(attempts) != 5 {
		t.Fatalf("spawn attempts = %d, want 5", len(attempts))
	}
	// Every failed attempt is separated from the next by at least the backoff.
	for i := 2; i < len(attempts); i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < cfg.Backoff {
			t.Fatalf("attempt %d only %v after previous, want >= %v", i, gap, cfg.Backoff)
		}
	}
}

// respawnFailSpawner succeeds on the first spawn, fails the next n, then
// succeeds again.
type respawnFailSpawner struct {
	mu             sync.Mutex
	clock          *fakeClock
	failAfterFirst int
	attempts       []time.Time
	spawned        []*fakeGateway
}

func (f *respawnFailSpawner) Spawn() (Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.attempts)
	f.attempts = append(f.attempts, f.clock.Now())
	if n >= 1 && n <= f.failAfterFirst {
		return nil, errors.New("fork/exec: no such file or directory")
	}
	gw := &fakeGateway{pid: 2000 + len(f.spawned), alive: true}
	f.spawned = append(f.spawned, gw)
	return gw, nil
}

func (f *respawnFailSpawner) attemptTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.attempts...)
}

func TestInitialSpawnFailureIsFatal(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spawner := &fakeSpawner{clock: clock, failures: 1000}
	prober := &scriptProber{clock: clock, cancel: cancel}
	s := New(testConfig(), spawner, prober)
	s.SetClock(clock)
	if err := s.Run(ctx); err == nil {
		t.Fatalf("expected error when the initial spawn fails")
	}
	if len(spawner.attemptTimes()) != 1 {
		t.Fatalf("initial spawn must not be retried, attempts = %d", len(spawner.attemptTimes()))
	}
}

func TestShutdownTerminatesChild(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	spawner := &fakeSpawner{clock: clock}
	// Cancel on the very first probe: the run must terminate the child on its
	// way out rather than orphan it.
	prober := &scriptProber{clock: clock, script: nil, cancel: cancel}
	s := New(testConfig(), spawner, prober)
	s.SetClock(clock)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	gws := spawner.gateways()
	if len(gws) != 1 {
		t.Fatalf("spawned %d, want 1", len(gws))
	}
	if gws[0].terminates != 1 {
		t.Fatalf("child terminated %d times on shutdown, want 1", gws[0].terminates)
	}
}

func TestLiteralTimelineScenario(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 2 * time.Second
	cfg.BootPollInterval = 2 * time.Second
	cfg.PollInterval = 10 * time.Second

	_, spawner, prober, _, err := run(t, cfg, []bool{true, false, true}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	start := spawner.attemptTimes()[0]
	times := prober.probeTimes()
	if len(times) < 2 {
		t.Fatalf("expected at least 2 probes, got %d", len(times))
	}
	// First probe at t=2s (grace elapsed) returns 200 -> healthy.
	if got := times[0].Sub(start); got != 2*time.Second {
		t.Fatalf("first probe at t=%v, want 2s", got)
	}
	// Second probe at t=12s returns connection refused -> restart.
	if got := times[1].Sub(start); got != 12*time.Second {
		t.Fatalf("second probe at t=%v, want 12s", got)
	}
	gws := spawner.gateways()
	if len(gws) != 2 {
		t.Fatalf("want a second process after the refused probe, got %d", len(gws))
	}
	// The replacement's start time is the respawn instant, after teardown
	// plus backoff.
	respawnAt := spawner.attemptTimes()[1]
	if respawnAt.Sub(times[1]) < cfg.Backoff {
		t.Fatalf("respawn %v after failure, want >= backoff", respawnAt.Sub(times[1]))
	}
}
