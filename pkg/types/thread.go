// pkg/types/thread.go
package types

import (
	"time"
)

// MessageEntry is a single signed entry in a thread log.
// Entries are immutable once appended; they are never reordered or edited.
type MessageEntry struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Index     uint64 `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
	Payload   []byte `json:"payload"`
}

// ThreadLog is the persisted state of one conversation thread.
// Messages are append-only: Messages[i].Index == i, and each entry's
// PrevHash links to the hash of the entry before it.
type ThreadLog struct {
	ThreadID     string         `json:"thread_id"`
	Participants []string       `json:"participants"`
	Version      uint64         `json:"version"`
	LastUpdated  time.Time      `json:"last_updated"`
	Messages     []MessageEntry `json:"messages"`
}
