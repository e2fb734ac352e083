package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates deterministic cycle IDs: prefix-0001, prefix-0002,
// and so on. Unlike engine.FixedGenerator it never runs out, which suits
// scenarios whose cycle count is data driven.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs returns a generator using prefix, or "cycle" when empty.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "cycle"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
