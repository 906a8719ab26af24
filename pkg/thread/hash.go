package thread

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/mvail/threadledger/pkg/types"
)

// ZeroHash is the hex form of the 32-byte zero value. The first entry in
// every thread links back to it.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CanonicalParticipants lower-cases, de-duplicates, and sorts a
// participant set. All thread-id derivation and persisted logs use this
// canonical form.
func CanonicalParticipants(participants []string) []string {
	seen := make(map[string]struct{}, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DeriveThreadID computes the deterministic thread identifier for a
// participant set: SHA3-256 over the canonical participants joined by "|".
func DeriveThreadID(participants []string) string {
	canonical := CanonicalParticipants(participants)
	sum := sha3.Sum256([]byte(strings.Join(canonical, "|")))
	return hex.EncodeToString(sum[:])
}

// entryContent is the canonical content covered by an entry's hash:
// everything except the hash itself and the signature.
type entryContent struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Index     uint64 `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Payload   []byte `json:"payload"`
}

// EntryHash computes the SHA3-256 digest of an entry's canonical content.
// The chain invariant is Messages[i].PrevHash == EntryHash(Messages[i-1]).
func EntryHash(e types.MessageEntry) string {
	content, err := json.Marshal(entryContent{
		MessageID: e.MessageID,
		Sender:    e.Sender,
		Index:     e.Index,
		PrevHash:  e.PrevHash,
		Payload:   e.Payload,
	})
	if err != nil {
		// Marshaling a struct of strings and bytes cannot fail.
		panic(err)
	}
	sum := sha3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
