// Package idgen allocates the session identifiers shared by PublicEndpoint
// and InternalEndpoint.
package idgen

import (
	"strconv"
	"sync/atomic"
)

// Generator is a process-wide monotone counter formatted as a decimal
// string. Uniqueness within a single process run is all spec.md requires;
// it deliberately does not survive restarts.
type Generator struct {
	counter atomic.Uint64
}

// New returns a fresh Generator starting at 1.
func New() *Generator {
	return &Generator{}
}

// Next returns the next session id as a decimal string.
func (g *Generator) Next() string {
	return strconv.FormatUint(g.counter.Add(1), 10)
}
