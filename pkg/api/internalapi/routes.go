// Package internalapi implements InternalEndpoint, spec.md §4.6: the
// loopback-only surface the forking supervisor's children use to
// register as ready workers and to attach a per-session stream.
package internalapi

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/loolbrokerd/pkg/apierrors"
	"github.com/stacklok/loolbrokerd/pkg/broker"
	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/metrics"
	"github.com/stacklok/loolbrokerd/pkg/session"
	"github.com/stacklok/loolbrokerd/pkg/socket"
	"github.com/stacklok/loolbrokerd/pkg/workerpool"
	"github.com/stacklok/loolbrokerd/pkg/wsupgrade"
)

// Routes holds the collaborators InternalEndpoint needs.
type Routes struct {
	Pool           *workerpool.Pool
	Registry       *broker.Registry
	WorkerSessions *session.AvailableWorkerSessions
	Terminate      *atomic.Bool
}

// Router builds the chi.Router implementing spec.md §4.6's two request
// shapes. The router does not check which port or address a request
// arrived on; cmd/loolbrokerd serves it only on Config.InternalBindAddr.
func (rt *Routes) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/new-child-uri", apierrors.ErrorHandler(rt.handleNewChildURI))
	r.Get("/child-uri", apierrors.ErrorHandler(rt.handleChildURI))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	return r
}

func (rt *Routes) handleNewChildURI(w http.ResponseWriter, r *http.Request) error {
	pidStr := r.URL.Query().Get("pid")
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return apperrors.NewBadRequestError("pid query parameter must be an integer", err)
	}

	conn, err := wsupgrade.Upgrade(w, r, nil)
	if err != nil {
		return apperrors.NewInternalError("websocket upgrade failed", err)
	}

	handle := &workerpool.WorkerHandle{PID: pid, Stream: &streamAdapter{conn: conn}}
	rt.Pool.Register(handle)
	return nil
}

func (rt *Routes) handleChildURI(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	jailID := q.Get("jailId")
	docKey := q.Get("docKey")
	if sessionID == "" || jailID == "" || docKey == "" {
		return apperrors.NewBadRequestError("sessionId, jailId and docKey are all required", nil)
	}

	b, ok := rt.Registry.Lookup(docKey)
	if !ok {
		return apperrors.NewBrokerNotFoundError("no broker exists for docKey "+docKey, nil)
	}
	b.Load(jailID)

	conn, err := wsupgrade.Upgrade(w, r, nil)
	if err != nil {
		return apperrors.NewInternalError("websocket upgrade failed", err)
	}

	// Publish only; the worker-facing read loop itself (spec.md §4.4
	// activity 3) is driven by session.Pipeline.runWorkerReader once the
	// matching user pipeline claims this session from
	// AvailableWorkerSessions. Spawning a second reader here would race
	// that one over the same connection.
	workerSession := session.New(sessionID, session.ToWorker, conn)
	rt.WorkerSessions.Publish(sessionID, workerSession)
	return nil
}

// streamAdapter adapts a pkg/socket.Conn (used by worker registration,
// where WorkerHandle wants a plain io.ReadWriteCloser) to that narrower
// interface. ReadFrame hands back one complete frame per call, which may
// be larger than the caller's buffer (e.g. convertOnWorker's
// bufio.Scanner); any unread remainder is held across calls rather than
// dropped.
type streamAdapter struct {
	conn socket.Conn
	buf  []byte
}

func (s *streamAdapter) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			return 0, err
		}
		s.buf = frame
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *streamAdapter) Write(p []byte) (int, error) {
	if err := s.conn.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *streamAdapter) Close() error { return s.conn.Close() }
