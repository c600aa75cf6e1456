package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates run IDs "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike orchestrator.FixedGenerator it never runs out, and it can be reset
// so the same scenario replays with identical journal entries.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialRunIDs creates a generator. An empty prefix means "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements orchestrator.RunIDGenerator.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Issued returns how many IDs have been generated since the last reset.
func (g *SequentialRunIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence at 1.
func (g *SequentialRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
