// pkg/types/tracking.go
package types

import "time"

// WriteStatus is the lifecycle state of a tracked object-store write.
type WriteStatus string

const (
	StatusPending   WriteStatus = "pending"   // Written off-chain, awaiting ledger confirmation
	StatusConfirmed WriteStatus = "confirmed" // Ledger confirms the write's index
	StatusOrphaned  WriteStatus = "orphaned"  // Unconfirmed past the grace window
	StatusUnpinned  WriteStatus = "unpinned"  // Backing object reclaimed
)

// Terminal reports whether no further status transition is possible.
func (s WriteStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusUnpinned
}

// TrackedWrite records one object-store write pending ledger confirmation.
// Rows are never deleted; status only moves forward
// (pending->confirmed, pending->orphaned, orphaned->unpinned).
type TrackedWrite struct {
	ObjectID     string      `json:"object_id"`
	ThreadID     string      `json:"thread_id"`
	MessageIndex uint64      `json:"message_index"`
	Sender       string      `json:"sender"`
	CreatedAt    time.Time   `json:"created_at"`
	ConfirmedAt  *time.Time  `json:"confirmed_at,omitempty"`
	Status       WriteStatus `json:"status"`
}
