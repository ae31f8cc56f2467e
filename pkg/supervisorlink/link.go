// Package supervisorlink owns the forking supervisor child process and the
// one-way newline-delimited command pipe used to request worker spawns,
// matching spec.md §4.2/§6.
package supervisorlink

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/stacklok/loolbrokerd/pkg/logger"
	"github.com/stacklok/loolbrokerd/pkg/metrics"
)

// Writer is the minimal pipe-write surface SupervisorLink depends on; a
// real run opens the named FIFO under childroot/pipe/loolwsd, tests use an
// in-memory pipe.
type Writer interface {
	io.Writer
}

// Waiter reaps a child process without blocking. *os.Process satisfies it
// via a thin adapter (see ProcessWaiter) so tests can substitute a fake.
type Waiter interface {
	// Poll returns (exited, exitCode, err) without blocking the caller.
	Poll() (bool, int, error)
}

// ProcessWaiter adapts an *exec.Cmd started with Start() into a Waiter
// using a non-blocking Wait4, mirroring MaintenanceLoop's reap policy.
type ProcessWaiter struct {
	cmd *exec.Cmd
}

func NewProcessWaiter(cmd *exec.Cmd) *ProcessWaiter { return &ProcessWaiter{cmd: cmd} }

func (w *ProcessWaiter) Poll() (bool, int, error) {
	if w.cmd.Process == nil {
		return false, 0, nil
	}
	var status syscall.WaitStatus
	pid, err := syscall.Wait4(w.cmd.Process.Pid, &status, syscall.WNOHANG, nil)
	if err != nil {
		return false, 0, err
	}
	if pid == 0 {
		return false, 0, nil
	}
	return true, status.ExitStatus(), nil
}

// SupervisorLink launches the supervisor binary, issues spawn requests
// over the command pipe, and reaps the supervisor at shutdown.
type SupervisorLink struct {
	mu     sync.Mutex
	pipe   Writer
	waiter Waiter
	cmd    *exec.Cmd
}

// New constructs a SupervisorLink bound to an already-open pipe writer. It
// does not itself launch a process; callers needing the real binary use
// Start.
func New(pipe Writer) *SupervisorLink {
	return &SupervisorLink{pipe: pipe}
}

// Start launches the supervisor binary, then opens the named FIFO for the
// command pipe. The supervisor must be running before the pipe is opened:
// an O_WRONLY open on a FIFO blocks until a reader attaches, and the
// supervisor itself is that reader, so opening it first would deadlock
// startup forever. The caller remains responsible for ensuring
// childroot/pipe/{loolwsd,admin-notify} exist (see ensureSupervisorPipes in
// cmd/loolbrokerd/app/serve.go and the jail-cleanup supplement in
// SPEC_FULL.md).
func (s *SupervisorLink) Start(_ context.Context, binary string, args []string, pipePath string) error {
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	pipeFile, err := os.OpenFile(pipePath, os.O_WRONLY, 0)
	if err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("open supervisor command pipe: %w", err)
	}

	s.mu.Lock()
	s.pipe = pipeFile
	s.cmd = cmd
	s.waiter = NewProcessWaiter(cmd)
	s.mu.Unlock()
	return nil
}

// Spawn issues "spawn <N>\n" on the command pipe. A write failure is
// logged but never returned as fatal to an in-flight request, per
// spec.md §4.2; Spawn increments the domain-stack spawn-failure counter
// itself and also returns the error, which WorkerPool logs.
func (s *SupervisorLink) Spawn(n int) error {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()

	if pipe == nil {
		logger.Warn("supervisor link has no open pipe, dropping spawn request")
		metrics.SupervisorSpawnFailures.Inc()
		return fmt.Errorf("supervisor pipe not open")
	}
	if _, err := fmt.Fprintf(pipe, "spawn %d\n", n); err != nil {
		logger.Warnf("write to supervisor pipe failed: %v", err)
		metrics.SupervisorSpawnFailures.Inc()
		return err
	}
	return nil
}

// Shutdown writes "eof\n", then waits for the supervisor child to exit and
// reaps it. Pipe-write failure is logged, not returned, since shutdown
// must proceed regardless.
func (s *SupervisorLink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	pipe := s.pipe
	cmd := s.cmd
	s.mu.Unlock()

	if pipe != nil {
		if _, err := fmt.Fprint(pipe, "eof\n"); err != nil {
			logger.Warnf("write eof to supervisor pipe failed: %v", err)
		}
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollExit reports whether the supervisor process has exited, without
// blocking; used by MaintenanceLoop to detect supervisor death.
func (s *SupervisorLink) PollExit() (exited bool, code int, err error) {
	s.mu.Lock()
	w := s.waiter
	s.mu.Unlock()
	if w == nil {
		return false, 0, nil
	}
	return w.Poll()
}
