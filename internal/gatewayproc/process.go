// Package gatewayproc owns the gateway subprocess: spawning, liveness of the
// OS process, and graceful-then-forceful termination. It knows nothing about
// HTTP health; that belongs to the supervisor and its prober.
package gatewayproc

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/eigenclaw/warden/internal/env"
)

// killGraceReap bounds the final reap wait after a SIGKILL.
const killGraceReap = 200 * time.Millisecond

// Status is a point-in-time snapshot of the subprocess.
type Status struct {
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   string    `json:"exit_err,omitempty"`
}

// Process is one spawned gateway. The handle is created by Start and becomes
// inert once the child exits; a restart produces a fresh Process.
type Process struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	status   Status
	waitDone chan struct{} // closed by the reaper when cmd.Wait returns
}

// Start spawns argv[0] with the remaining arguments in its own process group.
// extraEnv entries ("K=V") are layered over the supervisor's environment;
// when empty the child inherits the environment unchanged. stdout/stderr may
// be nil, in which case the child's output passes through to the container's
// standard streams for operator visibility.
func Start(argv []string, extraEnv []string, stdout, stderr io.Writer) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	// #nosec G204 -- the command comes from operator configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(extraEnv) > 0 {
		cmd.Env = env.New().Merge(extraEnv)
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{
		cmd:      cmd,
		waitDone: make(chan struct{}),
		status: Status{
			PID:       cmd.Process.Pid,
			Running:   true,
			StartedAt: time.Now(),
		},
	}
	go p.reap()
	return p, nil
}

// reap waits on the child exactly once and records the exit. Terminate and
// Kill never call cmd.Wait themselves; they wait on waitDone instead.
func (p *Process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	if err != nil {
		p.status.ExitErr = err.Error()
	}
	p.mu.Unlock()
	close(p.waitDone)
}

// Snapshot returns a copy of the current status. Safe on a nil receiver.
func (p *Process) Snapshot() Status {
	if p == nil {
		return Status{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Alive reports whether the child is still running. A Linux zombie counts as
// dead even before the reaper has recorded the exit.
func (p *Process) Alive() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	running := p.status.Running
	pid := p.status.PID
	p.mu.Unlock()
	if !running {
		return false
	}
	if runtime.GOOS == "linux" && isZombie(pid) {
		return false
	}
	return true
}

// Wait blocks until the child has exited and been reaped.
func (p *Process) Wait() Status {
	if p == nil {
		return Status{}
	}
	<-p.waitDone
	return p.Snapshot()
}

// Terminate sends SIGTERM to the child's process group, waits up to grace for
// the exit, then escalates to SIGKILL. Calling it on an already-exited (or
// nil) process is a no-op and returns nil.
func (p *Process) Terminate(grace time.Duration) error {
	if p == nil || !p.Alive() {
		return nil
	}
	p.mu.Lock()
	pid := p.status.PID
	p.mu.Unlock()

	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(grace):
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-p.waitDone:
	case <-time.After(killGraceReap):
		// best-effort; the reaper will finish when the kernel delivers the kill
	}
	return nil
}

// Kill force-kills the process group without a graceful phase.
func (p *Process) Kill() error {
	if p == nil || !p.Alive() {
		return nil
	}
	p.mu.Lock()
	pid := p.status.PID
	p.mu.Unlock()

	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-p.waitDone:
	case <-time.After(killGraceReap):
	}
	return nil
}

// isZombie reports whether /proc/<pid>/status shows state Z.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
