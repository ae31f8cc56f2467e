package internalapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

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

func TestHandleNewChildURIRejectsNonIntegerPID(t *testing.T) {
	spawner := &fakeSpawner{}
	pool := workerpool.New(spawner, 1)
	spawner.pool = pool

	rt := &Routes{Pool: pool}
	req := httptest.NewRequest(http.MethodGet, "/new-child-uri?pid=notanumber", nil)
	rec := httptest.NewRecorder()

	err := rt.handleNewChildURI(rec, req)
	assert.Error(t, err)
	assert.Equal(t, 0, pool.ReadyCount())
}

func TestHandleChildURIFailsLoudlyWithoutBroker(t *testing.T) {
	spawner := &fakeSpawner{}
	pool := workerpool.New(spawner, 1)
	spawner.pool = pool
	reg := broker.NewRegistry(pool)

	rt := &Routes{Pool: pool, Registry: reg, WorkerSessions: session.NewAvailableWorkerSessions()}
	req := httptest.NewRequest(http.MethodGet, "/child-uri?sessionId=s1&jailId=j1&docKey=doc/Missing.odt", nil)
	rec := httptest.NewRecorder()

	err := rt.handleChildURI(rec, req)
	require.Error(t, err)
}

func TestHandleChildURIRequiresAllQueryParams(t *testing.T) {
	rt := &Routes{}
	req := httptest.NewRequest(http.MethodGet, "/child-uri?sessionId=s1", nil)
	rec := httptest.NewRecorder()

	err := rt.handleChildURI(rec, req)
	assert.Error(t, err)
}

func TestHandleChildURILoadsBrokerOnAttach(t *testing.T) {
	spawner := &fakeSpawner{}
	pool := workerpool.New(spawner, 1)
	spawner.pool = pool
	reg := broker.NewRegistry(pool)

	b, err := reg.GetOrCreate(context.Background(), "doc/Alpha.odt", "doc/Alpha.odt")
	require.NoError(t, err)
	assert.False(t, b.Loaded())

	var terminate atomic.Bool
	rt := &Routes{Pool: pool, Registry: reg, WorkerSessions: session.NewAvailableWorkerSessions(), Terminate: &terminate}
	req := httptest.NewRequest(http.MethodGet, "/child-uri?sessionId=s1&jailId=j1&docKey=doc/Alpha.odt", nil)
	rec := httptest.NewRecorder()

	// handleChildURI attempts a websocket upgrade after the lookup/load
	// succeeds; this request carries no websocket handshake headers, so the
	// upgrade fails and the call returns an internal error at that point,
	// but the broker must already be loaded by then.
	_ = rt.handleChildURI(rec, req)
	assert.True(t, b.Loaded())
}
