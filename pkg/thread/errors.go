package thread

import "errors"

// Validation errors are rejected immediately and must not be retried.
// Anything else surfacing from Append wraps an I/O failure and is safe
// for the caller to retry.
var (
	// ErrIndexMismatch: the entry's claimed index is not the next
	// ledger-confirmed position.
	ErrIndexMismatch = errors.New("index mismatch")

	// ErrChainBroken: the entry's prev_hash does not link to the last
	// confirmed entry (or to the zero hash on an empty thread).
	ErrChainBroken = errors.New("chain link broken")

	// ErrHashMismatch: the entry's hash does not match its canonical
	// content.
	ErrHashMismatch = errors.New("entry hash mismatch")

	// ErrBadSignature: the entry's signature does not verify against
	// the sender identity.
	ErrBadSignature = errors.New("invalid entry signature")
)

// IsValidation reports whether err is a non-retryable validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrIndexMismatch) ||
		errors.Is(err, ErrChainBroken) ||
		errors.Is(err, ErrHashMismatch) ||
		errors.Is(err, ErrBadSignature)
}
