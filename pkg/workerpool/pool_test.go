package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct{}

func (fakeStream) Read([]byte) (int, error)  { return 0, nil }
func (fakeStream) Write([]byte) (int, error) { return 0, nil }
func (fakeStream) Close() error              { return nil }

type fakeSpawner struct {
	mu    sync.Mutex
	calls []int
}

func (f *fakeSpawner) Spawn(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	return nil
}

func (f *fakeSpawner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestAcquireReturnsRegisteredWorkerLIFO(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(spawner, 2)

	h1 := &WorkerHandle{PID: 1, Stream: fakeStream{}}
	h2 := &WorkerHandle{PID: 2, Stream: fakeStream{}}
	p.Register(h1)
	p.Register(h2)

	got, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got.PID, "LIFO acquire must return the most recently registered handle")
	assert.Equal(t, StateBound, got.State)
	assert.Equal(t, 1, p.ReadyCount())
}

func TestAcquireBlocksThenUnblocksOnRegister(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(spawner, 1)
	p.SetAcquireTimeout(time.Second)

	var acquired atomic.Bool
	done := make(chan *WorkerHandle, 1)
	go func() {
		h, err := p.Acquire(context.Background())
		assert.NoError(t, err)
		acquired.Store(true)
		done <- h
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load())

	p.Register(&WorkerHandle{PID: 7, Stream: fakeStream{}})

	select {
	case h := <-done:
		assert.Equal(t, 7, h.PID)
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after register")
	}
}

func TestAcquireTimesOutWhenDrained(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(spawner, 3)
	p.SetAcquireTimeout(30 * time.Millisecond)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsWorkerUnavailable(err))
	assert.GreaterOrEqual(t, spawner.callCount(), 1, "a drained pool must issue at least one spawn burst")
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(spawner, 1)
	p.SetAcquireTimeout(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsWorkerUnavailable(err))
}

func TestPreSpawnIssuesConfiguredCount(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(spawner, 10)

	require.NoError(t, p.PreSpawn())
	require.Len(t, spawner.calls, 1)
	assert.Equal(t, 10, spawner.calls[0])
}
