// Package workerpool implements the bounded pool of ready worker
// processes registered by the internal endpoint and acquired by document
// brokers, matching spec.md §4.1.
package workerpool

import (
	"context"
	"io"
	"sync"
	"time"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/logger"
	"github.com/stacklok/loolbrokerd/pkg/metrics"
)

// State is the lifecycle state of a WorkerHandle.
type State int

const (
	StateReady State = iota
	StateBound
	StateDead
)

// Spawner issues replenishment requests to the forking supervisor. It is
// satisfied by *supervisorlink.SupervisorLink; kept as a narrow interface
// here so the pool can be tested without a real supervisor process.
type Spawner interface {
	Spawn(n int) error
}

// WorkerHandle is a single worker process's duplex frame channel, owned by
// exactly one of: WorkerPool (while ready), a DocumentBroker (once bound),
// or nobody (once dead).
type WorkerHandle struct {
	PID    int
	Stream io.ReadWriteCloser
	State  State
}

// AcquireTimeout is the default bound on Acquire, "on the order of ten
// seconds" per spec.md §4.1.
const AcquireTimeout = 10 * time.Second

// Pool is a LIFO queue of ready WorkerHandles. Acquire blocks until a
// handle is registered or the timeout elapses; it never busy-polls. No
// example in this codebase's retrieval pack uses sync.Cond, so the wakeup
// is modeled as a broadcast-by-replacement channel instead: every
// registration closes the current "ready" channel, waking every blocked
// waiter, and installs a fresh one for the next generation.
type Pool struct {
	mu             sync.Mutex
	ready          []*WorkerHandle
	readyCh        chan struct{}
	preSpawn       int
	spawner        Spawner
	acquireTimeout time.Duration
}

// New returns a Pool that requests preSpawn workers at a time from spawner.
func New(spawner Spawner, preSpawn int) *Pool {
	return &Pool{
		ready:          nil,
		readyCh:        make(chan struct{}),
		preSpawn:       preSpawn,
		spawner:        spawner,
		acquireTimeout: AcquireTimeout,
	}
}

// SetAcquireTimeout overrides the default acquire timeout; used by tests
// that need a tight bound.
func (p *Pool) SetAcquireTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireTimeout = d
}

// PreSpawn issues the initial spawn burst at startup.
func (p *Pool) PreSpawn() error {
	return p.spawner.Spawn(p.preSpawn)
}

// Acquire pops the most recently registered ready handle (LIFO: warmest
// caches, freshest descriptors), spawning replenishment as needed. It
// blocks until a handle is available or the timeout/context elapses,
// returning an *apperrors.Error of type ErrWorkerUnavailable on expiry or
// cancellation.
func (p *Pool) Acquire(ctx context.Context) (*WorkerHandle, error) {
	p.mu.Lock()
	timeout := p.acquireTimeout
	p.mu.Unlock()

	deadline := time.After(timeout)
	spawned := false
	for {
		p.mu.Lock()
		if n := len(p.ready); n > 0 {
			h := p.ready[n-1]
			p.ready = p.ready[:n-1]
			h.State = StateBound
			remaining := len(p.ready)
			p.mu.Unlock()
			metrics.ReadyWorkers.Set(float64(remaining))
			// Deficit on the ready count seen before the pop, unless this
			// call already issued a burst while waiting.
			if deficit := p.preSpawn - (n - 1); deficit > 0 && !spawned {
				if err := p.spawner.Spawn(deficit); err != nil {
					logger.Warnf("spawn request failed: %v", err)
				}
			}
			return h, nil
		}

		available := len(p.ready)
		deficit := p.preSpawn - (available - 1)
		if available == 0 {
			deficit = p.preSpawn
			logger.Warn("worker pool drained, issuing full pre-spawn burst")
		}
		wait := p.readyCh
		p.mu.Unlock()

		if deficit > 0 {
			spawned = true
			if err := p.spawner.Spawn(deficit); err != nil {
				logger.Warnf("spawn request failed: %v", err)
			}
		}

		select {
		case <-wait:
			// A registration happened; loop and re-check under the lock.
		case <-deadline:
			metrics.AcquireTimeouts.Inc()
			return nil, apperrors.NewWorkerUnavailableError("timed out waiting for a ready worker", nil)
		case <-ctx.Done():
			return nil, apperrors.NewWorkerUnavailableError("acquire canceled", ctx.Err())
		}
	}
}

// Register appends a newly spawned worker to the ready list and wakes
// every blocked Acquire exactly once.
func (p *Pool) Register(h *WorkerHandle) {
	p.mu.Lock()
	h.State = StateReady
	p.ready = append(p.ready, h)
	count := len(p.ready)
	closing := p.readyCh
	p.readyCh = make(chan struct{})
	p.mu.Unlock()
	metrics.ReadyWorkers.Set(float64(count))
	close(closing)
}

// ReadyCount reports the current number of ready, unbound handles.
func (p *Pool) ReadyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ready)
}
