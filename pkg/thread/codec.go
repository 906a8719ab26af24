package thread

import (
	"encoding/json"
	"fmt"

	"github.com/mvail/threadledger/pkg/types"
)

// The codec is pure and stateless. Field order follows the struct
// definitions, so re-encoding an unchanged log is byte-identical, which
// content-addressing depends on.

// EncodeThreadLog serializes a thread log to its persisted byte form.
func EncodeThreadLog(log *types.ThreadLog) ([]byte, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encode thread log: %w", err)
	}
	return data, nil
}

// DecodeThreadLog parses the persisted byte form back into a thread log.
func DecodeThreadLog(data []byte) (*types.ThreadLog, error) {
	var log types.ThreadLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode thread log: %w", err)
	}
	return &log, nil
}

// signingContent is the canonical message a wallet signs when appending:
// the claim {threadId, hash, index, prevHash} binding the entry to its
// position in a specific thread.
type signingContent struct {
	ThreadID string `json:"thread_id"`
	Hash     string `json:"hash"`
	Index    uint64 `json:"index"`
	PrevHash string `json:"prev_hash"`
}

// SigningContent builds the canonical bytes covered by an entry's
// signature.
func SigningContent(threadID string, e types.MessageEntry) []byte {
	content, err := json.Marshal(signingContent{
		ThreadID: threadID,
		Hash:     e.Hash,
		Index:    e.Index,
		PrevHash: e.PrevHash,
	})
	if err != nil {
		panic(err)
	}
	return content
}
