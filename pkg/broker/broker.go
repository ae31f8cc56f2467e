// Package broker implements BrokerRegistry and DocumentBroker, matching
// spec.md §4.3: the ref-counted map from document key to the single
// broker that owns that document's worker, plus the broker's own session
// set and state machine.
package broker

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/metrics"
	"github.com/stacklok/loolbrokerd/pkg/workerpool"
)

// State is a DocumentBroker's lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateActive
	StateDraining
	StateGone
)

// Session is the narrow surface DocumentBroker and MaintenanceLoop need
// from a user session; satisfied by *session.UserSession (package session
// depends on package broker, not the reverse, so the dependency is
// expressed this way to avoid an import cycle).
type Session interface {
	ID() string
	LastMessageTime() time.Time
	IdleSaveTime() time.Time
	SetIdleSaveTime(time.Time)
	AutoSaveTime() time.Time
	SetAutoSaveTime(time.Time)
	// EnqueueControl appends a control frame (e.g. "uno .uno:Save") to the
	// session's TileQueue without blocking; a no-op on worker-facing
	// sessions, which never appear in a broker's session set.
	EnqueueControl(frame string)
}

// DocumentBroker owns a single ready-worker handle and the set of user
// sessions currently editing that document.
type DocumentBroker struct {
	Key    string
	URI    string
	Worker *workerpool.WorkerHandle

	mu         sync.Mutex
	state      State
	refCount   int
	sessions   map[string]Session
	wsSessions int
	loaded     bool
	loadError  bool
}

func newDocumentBroker(key, uri string, worker *workerpool.WorkerHandle) *DocumentBroker {
	return &DocumentBroker{
		Key:      key,
		URI:      uri,
		Worker:   worker,
		state:    StateEmpty,
		sessions: make(map[string]Session),
	}
}

// AddSession inserts a session under the broker's mutex. The first session
// transitions the broker Empty -> Active.
func (b *DocumentBroker) AddSession(s Session) {
	b.mu.Lock()
	b.sessions[s.ID()] = s
	b.wsSessions++
	if b.state == StateEmpty {
		b.state = StateActive
	}
	b.mu.Unlock()
	metrics.ActiveSessions.Inc()
}

// RemoveSession erases a session. It does not by itself trigger worker
// teardown; BrokerRegistry.Release governs that via refCount. The last
// session leaving transitions the broker to Draining; the broker stays
// registered until Release drops refCount to zero.
func (b *DocumentBroker) RemoveSession(id string) {
	b.mu.Lock()
	if _, ok := b.sessions[id]; ok {
		delete(b.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	if len(b.sessions) == 0 && b.state == StateActive {
		b.state = StateDraining
	}
	b.mu.Unlock()
}

// Sessions returns a snapshot slice of the broker's current sessions,
// safe to range over without holding the broker's mutex; used by
// MaintenanceLoop's idle/auto-save scans, which must enqueue only and
// never hold this mutex across I/O.
func (b *DocumentBroker) Sessions() []Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount reports the number of sessions currently attached.
func (b *DocumentBroker) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Validate ensures uri is a form the storage backend can serve. This
// repo's storage backend is local-filesystem only (spec.md Non-goals
// exclude remote storage backends), so validation is a non-empty check;
// a failure here must not consume a worker slot, so GetOrCreate calls it
// before acquiring one.
func Validate(uri string) error {
	if uri == "" {
		return apperrors.NewBadRequestError("document uri must not be empty", nil)
	}
	return nil
}

// Load is invoked by InternalEndpoint once the worker declares its jail
// identity. Idempotent.
func (b *DocumentBroker) Load(jailID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = jailID
	b.loaded = true
}

// Loaded reports whether Load has been called.
func (b *DocumentBroker) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// SetLoadError records that the session's initial load failed, which
// suppresses the last-session-save policy in SessionPipeline's
// supervision activity so a broken load never persists garbage.
func (b *DocumentBroker) SetLoadError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadError = true
}

// LoadError reports whether SetLoadError has been called.
func (b *DocumentBroker) LoadError() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadError
}

// State returns the broker's current lifecycle state.
func (b *DocumentBroker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry is the process-wide map from document key to its live broker.
// Lock order is always Registry -> DocumentBroker, never reversed.
type Registry struct {
	mu      sync.Mutex
	brokers map[string]*DocumentBroker
	pool    *workerpool.Pool
}

// NewRegistry constructs an empty Registry backed by pool for worker
// acquisition.
func NewRegistry(pool *workerpool.Pool) *Registry {
	return &Registry{
		brokers: make(map[string]*DocumentBroker),
		pool:    pool,
	}
}

// GetOrCreate looks up key; if present, increments refCount and returns
// it. If absent, it releases the registry mutex while acquiring a worker
// (to avoid head-of-line blocking every other document's requests behind
// one slow acquire), then re-checks presence on return: a racing caller
// may have already constructed the broker for this key while this one was
// waiting, in which case the freshly acquired worker is handed back to
// the pool unused via Register rather than discarded.
func (r *Registry) GetOrCreate(ctx context.Context, key, uri string) (*DocumentBroker, error) {
	if err := Validate(uri); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if b, ok := r.brokers[key]; ok {
		b.mu.Lock()
		b.refCount++
		b.mu.Unlock()
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	worker, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.brokers[key]; ok {
		b.mu.Lock()
		b.refCount++
		b.mu.Unlock()
		r.pool.Register(worker)
		return b, nil
	}

	b := newDocumentBroker(key, uri, worker)
	b.refCount = 1
	r.brokers[key] = b
	metrics.ActiveBrokers.Set(float64(len(r.brokers)))
	return b, nil
}

// Release decrements refCount under the registry mutex; at zero, the
// broker is removed from the map and transitions to Gone. The caller is
// responsible for tearing down the worker stream once Release returns
// true.
func (r *Registry) Release(b *DocumentBroker) (destroyed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.mu.Lock()
	b.refCount--
	remaining := b.refCount
	b.mu.Unlock()

	if remaining > 0 {
		return false
	}

	delete(r.brokers, b.Key)
	metrics.ActiveBrokers.Set(float64(len(r.brokers)))
	b.mu.Lock()
	b.state = StateGone
	b.mu.Unlock()
	return true
}

// Lookup returns the broker for key without affecting refCount; used by
// InternalEndpoint's child-uri attachment path, which fails loudly if the
// broker does not already exist.
func (r *Registry) Lookup(key string) (*DocumentBroker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[key]
	return b, ok
}

// Brokers returns a snapshot slice of every live broker; used by
// MaintenanceLoop, which must release the registry mutex before touching
// each broker's own mutex to honor the registry -> broker lock order
// without holding both simultaneously for the whole scan.
func (r *Registry) Brokers() []*DocumentBroker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DocumentBroker, 0, len(r.brokers))
	for _, b := range r.brokers {
		out = append(out, b)
	}
	return out
}

// Len reports the number of live brokers; used by tests and metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.brokers)
}
