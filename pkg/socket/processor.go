package socket

import "sync/atomic"

// FrameHandler processes one received frame. Returning an error stops the
// processor's loop.
type FrameHandler func(frame []byte) error

// Processor runs a full-duplex read loop over a Conn: for every inbound
// frame it calls Handle, and before every read it checks a process-wide
// termination flag so every reader in the broker exits at its next frame
// boundary once shutdown begins (spec.md §4.4, §5).
type Processor struct {
	Conn      Conn
	Handle    FrameHandler
	Terminate *atomic.Bool
}

// Run blocks until the connection errors (including a clean EOF-style
// close), the handler returns an error, or the termination flag is set.
// It never closes Conn; the caller owns that lifecycle.
func (p *Processor) Run() error {
	for {
		if p.Terminate != nil && p.Terminate.Load() {
			return nil
		}
		frame, err := p.Conn.ReadFrame()
		if err != nil {
			return err
		}
		if p.Terminate != nil && p.Terminate.Load() {
			return nil
		}
		if err := p.Handle(frame); err != nil {
			return err
		}
	}
}
