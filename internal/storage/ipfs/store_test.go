package ipfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/internal/storage/ipfs"
)

func newStore(t *testing.T) *ipfs.Store {
	t.Helper()

	s, err := ipfs.New(nil, nil)
	require.NoError(t, err)
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	contentID, err := s.Put(ctx, "threads/a", []byte("payload"), storage.Metadata{"thread-id": "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, contentID)

	data, err := s.Get(ctx, "threads/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestStore_Put_SameBytesSameCID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id1, err := s.Put(ctx, "threads/a", []byte("same"), nil)
	require.NoError(t, err)
	id2, err := s.Put(ctx, "threads/b", []byte("same"), nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestStore_Put_OverwritesKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "threads/a", []byte("v1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "threads/a", []byte("v2"), nil)
	require.NoError(t, err)

	data, err := s.Get(ctx, "threads/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestStore_Head(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "threads/a", []byte("payload"), storage.Metadata{"sender": "0xalice"})
	require.NoError(t, err)

	meta, err := s.Head(ctx, "threads/a")
	require.NoError(t, err)
	assert.Equal(t, "0xalice", meta["sender"])

	_, err = s.Head(ctx, "threads/missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "threads/a", []byte("payload"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "threads/a"))

	_, err = s.Get(ctx, "threads/a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "threads/a"), storage.ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, key := range []string{"threads/b", "threads/a", "other/c"} {
		_, err := s.Put(ctx, key, []byte(key), nil)
		require.NoError(t, err)
	}

	keys, err := s.List(ctx, "threads/")
	require.NoError(t, err)
	assert.Equal(t, []string{"threads/a", "threads/b"}, keys)
}

func TestStore_Unpin(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	contentID, err := s.Put(ctx, "threads/a", []byte("payload"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Unpin(ctx, contentID))

	// The key that pointed at the block is dropped with it.
	_, err = s.Get(ctx, "threads/a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Unpin_DoesNotTouchOtherKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	staleID, err := s.Put(ctx, "threads/a", []byte("stale"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "threads/a", []byte("current"), nil)
	require.NoError(t, err)

	// Unpinning the superseded object leaves the key's current content.
	require.NoError(t, s.Unpin(ctx, staleID))

	data, err := s.Get(ctx, "threads/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("current"), data)
}
