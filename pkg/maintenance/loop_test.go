package maintenance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stacklok/loolbrokerd/pkg/broker"
	"github.com/stacklok/loolbrokerd/pkg/session"
	"github.com/stacklok/loolbrokerd/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct{}

func (fakeStream) Read([]byte) (int, error)  { return 0, nil }
func (fakeStream) Write([]byte) (int, error) { return 0, nil }
func (fakeStream) Close() error              { return nil }

type fakeSpawner struct{ pool *workerpool.Pool }

func (f *fakeSpawner) Spawn(n int) error {
	for i := 0; i < n; i++ {
		f.pool.Register(&workerpool.WorkerHandle{PID: i + 1, Stream: fakeStream{}})
	}
	return nil
}

func newRegistryWithBroker(t *testing.T, key string) (*broker.Registry, *broker.DocumentBroker) {
	t.Helper()
	spawner := &fakeSpawner{}
	pool := workerpool.New(spawner, 1)
	spawner.pool = pool
	reg := broker.NewRegistry(pool)

	b, err := reg.GetOrCreate(context.Background(), key, "file:///"+key)
	require.NoError(t, err)
	return reg, b
}

type fakeConn struct{}

func (fakeConn) ReadFrame() ([]byte, error)  { return nil, nil }
func (fakeConn) WriteFrame([]byte) error     { return nil }
func (fakeConn) Close() error                { return nil }

type neverExitsSupervisor struct{}

func (neverExitsSupervisor) PollExit() (bool, int, error) { return false, 0, nil }

type exitsImmediatelySupervisor struct{}

func (exitsImmediatelySupervisor) PollExit() (bool, int, error) { return true, 0, nil }

func TestIdleSaveScanEnqueuesSaveForQuietSession(t *testing.T) {
	reg, b := newRegistryWithBroker(t, "doc/Alpha.odt")
	s := session.New("s1", session.ToClient, fakeConn{})
	s.Touch(time.Now().Add(-time.Hour))
	b.AddSession(s)

	var terminate atomic.Bool
	l := &Loop{Registry: reg, Supervisor: neverExitsSupervisor{}, Terminate: &terminate}
	l.idleSaveScan(time.Now())

	frame, ok := s.Queue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "uno .uno:Save", frame)
}

func TestIdleSaveScanSkipsRecentlyActiveSession(t *testing.T) {
	reg, b := newRegistryWithBroker(t, "doc/Alpha.odt")
	s := session.New("s1", session.ToClient, fakeConn{})
	s.Touch(time.Now())
	b.AddSession(s)

	var terminate atomic.Bool
	l := &Loop{Registry: reg, Supervisor: neverExitsSupervisor{}, Terminate: &terminate}
	l.idleSaveScan(time.Now())

	s.Queue.EnqueueEOF()
	frame, ok := s.Queue.Dequeue()
	assert.False(t, ok, "expected only the eof sentinel, got %q", frame)
}

func TestIdleSaveScanDoesNotRepeatUntilReactivity(t *testing.T) {
	reg, b := newRegistryWithBroker(t, "doc/Alpha.odt")
	s := session.New("s1", session.ToClient, fakeConn{})
	s.Touch(time.Now().Add(-time.Hour))
	b.AddSession(s)

	var terminate atomic.Bool
	l := &Loop{Registry: reg, Supervisor: neverExitsSupervisor{}, Terminate: &terminate}
	l.idleSaveScan(time.Now())
	l.idleSaveScan(time.Now())

	_, ok := s.Queue.Dequeue()
	require.True(t, ok)
	s.Queue.EnqueueEOF()
	_, ok = s.Queue.Dequeue()
	assert.False(t, ok, "a second scan before any new activity must not enqueue a second save")
}

func TestRunSetsTerminateOnSupervisorExit(t *testing.T) {
	reg, _ := newRegistryWithBroker(t, "doc/Alpha.odt")
	var terminate atomic.Bool
	l := &Loop{Registry: reg, Supervisor: exitsImmediatelySupervisor{}, Terminate: &terminate, Interval: time.Millisecond}

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after supervisor exit")
	}
	assert.True(t, terminate.Load())
}

func TestRunReturnsImmediatelyIfAlreadyTerminated(t *testing.T) {
	reg, _ := newRegistryWithBroker(t, "doc/Alpha.odt")
	var terminate atomic.Bool
	terminate.Store(true)
	l := &Loop{Registry: reg, Supervisor: neverExitsSupervisor{}, Terminate: &terminate}

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return immediately when already terminated")
	}
}
