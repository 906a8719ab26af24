// Package ledger queries the on-chain contract state that acts as the
// authoritative record of how many messages in a thread are confirmed.
package ledger

import (
	"context"
	"sync"
)

// Reader answers confirmed-count queries against the ledger.
// An unknown thread reads as 0, never as an error.
type Reader interface {
	// ConfirmedCount returns the number of messages in a thread the
	// ledger attests to, from the given participant's read state.
	ConfirmedCount(ctx context.Context, threadID, participant string) (uint64, error)
}

// StaticReader is a Reader over a fixed in-memory table. Used by tests
// and dev mode in place of a live contract gateway.
type StaticReader struct {
	mu     sync.RWMutex
	counts map[string]uint64
}

func NewStaticReader() *StaticReader {
	return &StaticReader{counts: make(map[string]uint64)}
}

// SetCount sets the confirmed count for a thread.
func (r *StaticReader) SetCount(threadID string, count uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[threadID] = count
}

func (r *StaticReader) ConfirmedCount(ctx context.Context, threadID, participant string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[threadID], nil
}

var _ Reader = (*StaticReader)(nil)
