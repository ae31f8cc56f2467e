// Package session implements TileQueue and SessionPipeline, the per-user
// pipeline of spec.md §4.4: an unbounded single-consumer queue with a
// cancel-collapsing policy, and the four concurrent activities that bridge
// a user socket to its worker-facing counterpart.
package session

import "sync"

// sentinelEOF terminates the consumer; see Enqueue and Dequeue.
const sentinelEOF = "eof"

// isTileProducing reports whether frame's first token is "tile" or
// "tilecombine" — the only frame kinds a canceltiles collapse may drop.
func isTileProducing(frame string) bool {
	tok := firstToken(frame)
	return tok == "tile" || tok == "tilecombine"
}

func isCancelTiles(frame string) bool {
	return firstToken(frame) == "canceltiles"
}

func firstToken(frame string) string {
	for i := 0; i < len(frame); i++ {
		if frame[i] == ' ' {
			return frame[:i]
		}
	}
	return frame
}

// TileQueue is an unbounded, single-consumer message buffer. Enqueueing a
// canceltiles frame atomically drops every currently queued tile or
// tilecombine frame before appending the cancel marker, so a cancelled
// tile can never reach the worker (spec.md §3, §8 cancel-collapse
// boundary test).
type TileQueue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

// NewTileQueue returns an empty TileQueue.
func NewTileQueue() *TileQueue {
	return &TileQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends frame, collapsing any queued tile-producing frames if
// frame is a canceltiles marker.
func (q *TileQueue) Enqueue(frame string) {
	q.mu.Lock()
	if isCancelTiles(frame) {
		kept := q.items[:0]
		for _, item := range q.items {
			if !isTileProducing(item) {
				kept = append(kept, item)
			}
		}
		q.items = kept
	}
	q.items = append(q.items, frame)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// EnqueueEOF appends the termination sentinel.
func (q *TileQueue) EnqueueEOF() {
	q.Enqueue(sentinelEOF)
}

// Clear discards every queued frame without delivering it, used to
// abandon pending tile work on abrupt teardown (spec.md §4.4 activity 4).
func (q *TileQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Snapshot returns a copy of the queue's current contents, for tests that
// assert on the cancel-collapse boundary without racing a consumer.
func (q *TileQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out
}

// Dequeue blocks until a frame is available, returning ("", false) once
// the "eof" sentinel has been consumed.
func (q *TileQueue) Dequeue() (frame string, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			frame = q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			if frame == sentinelEOF {
				return "", false
			}
			return frame, true
		}
		q.mu.Unlock()
		<-q.ready
	}
}
