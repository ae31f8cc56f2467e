package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/loolbrokerd/pkg/socket"
)

// Kind distinguishes the user-facing half of a pipeline from its
// worker-facing peer.
type Kind int

const (
	ToClient Kind = iota
	ToWorker
)

// UserSession is spec.md §3's UserSession: one half of a bridged pipeline.
// A ToClient session owns a TileQueue; a ToWorker session does not (its
// frames are read directly by Pipeline's worker reader).
type UserSession struct {
	id   string
	kind Kind
	Conn socket.Conn

	Queue *TileQueue // non-nil only for ToClient sessions

	mu             sync.Mutex
	editLock       bool
	lastMessageTime time.Time
	idleSaveTime    time.Time
	autoSaveTime    time.Time
	loadError       bool
	normalShutdown  bool
	saveAsResult    string

	FramesIn  atomic.Uint64
	FramesOut atomic.Uint64
}

// New constructs a UserSession. ToClient sessions get their own TileQueue;
// ToWorker sessions pass a nil queue.
func New(id string, kind Kind, conn socket.Conn) *UserSession {
	s := &UserSession{id: id, kind: kind, Conn: conn}
	if kind == ToClient {
		s.Queue = NewTileQueue()
	}
	return s
}

// ID satisfies broker.Session.
func (s *UserSession) ID() string { return s.id }

func (s *UserSession) Kind() Kind { return s.kind }

// SetEditLock grants or revokes the broker-wide edit lock; exactly one
// session per broker holds it at any moment (spec.md §3 invariant),
// enforced by DocumentBroker's caller, not by UserSession itself.
func (s *UserSession) SetEditLock(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editLock = held
}

func (s *UserSession) EditLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editLock
}

// Touch records frame arrival for the idle/auto-save scans.
func (s *UserSession) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastMessageTime) {
		s.lastMessageTime = now
	}
}

func (s *UserSession) LastMessageTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageTime
}

func (s *UserSession) IdleSaveTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleSaveTime
}

func (s *UserSession) SetIdleSaveTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleSaveTime = t
}

func (s *UserSession) AutoSaveTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSaveTime
}

func (s *UserSession) SetAutoSaveTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSaveTime = t
}

func (s *UserSession) SetLoadError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadError = true
}

func (s *UserSession) LoadError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadError
}

func (s *UserSession) SetNormalShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalShutdown = true
}

func (s *UserSession) NormalShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.normalShutdown
}

func (s *UserSession) SetSaveAsResult(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveAsResult = uri
}

func (s *UserSession) SaveAsResult() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAsResult
}

// EnqueueControl appends a control frame (e.g. the MaintenanceLoop save
// command) to the session's TileQueue. It satisfies broker.Session and is
// a no-op on ToWorker sessions, which carry no queue.
func (s *UserSession) EnqueueControl(frame string) {
	if s.Queue != nil {
		s.Queue.Enqueue(frame)
	}
}

// AvailableWorkerSessions is the process-wide table InternalEndpoint
// publishes ToWorker sessions into, keyed by session id, and the matching
// user-facing pipeline drains from (spec.md §3). A registration wakes
// every blocked waiter via the same broadcast-by-replacement channel
// pattern as workerpool.Pool, since this codebase's retrieval pack has no
// sync.Cond usage to imitate.
type AvailableWorkerSessions struct {
	mu      sync.Mutex
	entries map[string]*UserSession
	readyCh chan struct{}
}

func NewAvailableWorkerSessions() *AvailableWorkerSessions {
	return &AvailableWorkerSessions{
		entries: make(map[string]*UserSession),
		readyCh: make(chan struct{}),
	}
}

// Publish registers a worker-facing session under id, waking any waiter.
func (a *AvailableWorkerSessions) Publish(id string, s *UserSession) {
	a.mu.Lock()
	a.entries[id] = s
	closing := a.readyCh
	a.readyCh = make(chan struct{})
	a.mu.Unlock()
	close(closing)
}

// Take removes and returns the worker-facing session for id, if any.
func (a *AvailableWorkerSessions) Take(id string) (*UserSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.entries[id]
	if ok {
		delete(a.entries, id)
	}
	return s, ok
}

// Wait blocks until the worker-facing session for id is published or done
// is closed (client disconnect), matching spec.md §5's bounded-by-
// disconnect suspension point.
func (a *AvailableWorkerSessions) Wait(id string, done <-chan struct{}) (*UserSession, bool) {
	for {
		if s, ok := a.Take(id); ok {
			return s, true
		}
		a.mu.Lock()
		wait := a.readyCh
		a.mu.Unlock()
		select {
		case <-wait:
		case <-done:
			return nil, false
		}
	}
}
