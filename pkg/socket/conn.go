// Package socket implements the generic full-duplex frame loop shared by
// every reader in the broker: SessionPipeline's inbound and worker readers.
package socket

// Conn is the minimal full-duplex framed connection interface the broker
// depends on. A websocket connection (public upgrades, internal worker
// attachment) satisfies it directly; tests use an in-memory fake.
type Conn interface {
	// ReadFrame blocks until a complete frame is available, the peer
	// closes, or an error occurs. Frames carry no implied encoding; the
	// broker treats them as opaque byte strings except for a handful of
	// leading ASCII tokens (tile, tilecombine, canceltiles, disconnect,
	// saveas, eof).
	ReadFrame() ([]byte, error)
	// WriteFrame sends one frame. Concurrent calls from multiple
	// goroutines are not required to be safe; each Conn has exactly one
	// writer in this codebase.
	WriteFrame([]byte) error
	Close() error
}
