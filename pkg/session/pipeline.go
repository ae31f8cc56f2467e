package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/loolbrokerd/pkg/logger"
	"github.com/stacklok/loolbrokerd/pkg/metrics"
	"github.com/stacklok/loolbrokerd/pkg/socket"
)

// saveCommand is enqueued by both the last-session teardown policy and
// MaintenanceLoop's idle/auto-save scans.
const saveCommand = "uno .uno:Save"

// Pipeline bridges one user-facing session to its worker-facing peer,
// running the four concurrent activities of spec.md §4.4.
type Pipeline struct {
	User   *UserSession
	Worker *UserSession // kind ToWorker; may be nil until AvailableWorkerSessions resolves it

	// IsLastSession reports whether User is the last session remaining on
	// its broker at teardown time; consulted by the supervision activity.
	IsLastSession func() bool
	// Terminate is the process-wide shutdown flag polled at every frame
	// boundary.
	Terminate *atomic.Bool

	consumerDone chan struct{}
}

// Run drives all four activities and blocks until the pipeline tears
// down. It never returns an error: every activity logs and exits locally,
// per spec.md §7's propagation rule that worker and queue-consumer tasks
// never propagate failures to siblings.
func (p *Pipeline) Run() {
	p.consumerDone = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runQueueConsumer()
		close(p.consumerDone)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runWorkerReader()
	}()

	// Inbound reader runs on the caller's goroutine: spec.md models each
	// activity as one long-lived task, and the caller (PublicEndpoint's
	// upgrade handler) already dedicates one goroutine per connection.
	p.runInboundReader()

	p.runSupervision()
	wg.Wait()
}

// runInboundReader reads frames from the user socket. The disconnect
// token ends the loop cleanly; everything else is enqueued onto the
// user's TileQueue.
func (p *Pipeline) runInboundReader() {
	proc := &socket.Processor{
		Conn:      p.User.Conn,
		Terminate: p.Terminate,
		Handle: func(frame []byte) error {
			p.User.Touch(time.Now())
			p.User.FramesIn.Add(1)
			metrics.FramesForwarded.WithLabelValues("from_client").Inc()
			text := string(frame)
			if firstToken(text) == "disconnect" {
				p.User.SetNormalShutdown()
				return errStopProcessor
			}
			p.User.Queue.Enqueue(text)
			return nil
		},
	}
	if err := proc.Run(); err != nil && err != errStopProcessor {
		logger.Debugf("inbound reader for session %s exited: %v", p.User.ID(), err)
	}
}

// errStopProcessor is a sentinel used only to unwind Processor.Run from
// inside Handle on a deliberate disconnect; it is never logged as a real
// failure.
var errStopProcessor error = stopError{}

type stopError struct{}

func (stopError) Error() string { return "deliberate disconnect" }

// runQueueConsumer drains the user's TileQueue and forwards each frame to
// the matching worker-facing session, located by session id in
// AvailableWorkerSessions by the caller before Run is invoked (p.Worker).
func (p *Pipeline) runQueueConsumer() {
	for {
		frame, ok := p.User.Queue.Dequeue()
		if !ok {
			return
		}
		if p.Worker == nil {
			continue
		}
		if err := p.Worker.Conn.WriteFrame([]byte(frame)); err != nil {
			logger.Warnf("forward to worker for session %s failed: %v", p.User.ID(), err)
			return
		}
		p.User.FramesOut.Add(1)
		metrics.FramesForwarded.WithLabelValues("to_worker").Inc()
	}
}

// runWorkerReader reads frames from the worker socket and forwards them
// to the user socket, watching for saveas completions.
func (p *Pipeline) runWorkerReader() {
	if p.Worker == nil {
		return
	}
	proc := &socket.Processor{
		Conn:      p.Worker.Conn,
		Terminate: p.Terminate,
		Handle: func(frame []byte) error {
			text := string(frame)
			if strings.HasPrefix(text, "saveas:") {
				p.User.SetSaveAsResult(strings.TrimPrefix(text, "saveas:"))
			}
			if err := p.User.Conn.WriteFrame(frame); err != nil {
				return err
			}
			metrics.FramesForwarded.WithLabelValues("to_client").Inc()
			return nil
		},
	}
	if err := proc.Run(); err != nil {
		logger.Debugf("worker reader for session %s exited: %v", p.User.ID(), err)
	}
}

// runSupervision implements spec.md §4.4 activity 4: decide whether the
// last-session save policy applies, then always enqueue eof and join the
// consumer.
func (p *Pipeline) runSupervision() {
	lastSession := p.IsLastSession != nil && p.IsLastSession()
	abrupt := !p.User.NormalShutdown()

	if lastSession && abrupt && !p.User.LoadError() {
		p.User.Queue.Enqueue(saveCommand)
	} else {
		p.User.Queue.Clear()
	}

	p.User.Queue.EnqueueEOF()
	<-p.consumerDone
}
