package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or content identifier has no object.
var ErrNotFound = errors.New("object not found")

// Metadata is the set of key/value attributes attached to a stored object.
type Metadata map[string]string

// ObjectStore abstracts content-addressed object storage.
// Objects are stored by content identifier; a key is a mutable pointer to
// the current object for that key. Put returns the content identifier of
// the stored bytes, computed before the write so a single write suffices.
type ObjectStore interface {
	// Put stores data under key and returns its content identifier.
	Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error)

	// Get returns the bytes currently stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Head returns the metadata for the object currently stored under key.
	Head(ctx context.Context, key string) (Metadata, error)

	// Delete removes the key and the object it currently points to.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Unpin reclaims a specific stored object by content identifier,
	// regardless of whether any key still points to it. Unpinning an
	// already-reclaimed object is not an error.
	Unpin(ctx context.Context, contentID string) error
}
