// Package ipfs provides an ObjectStore backed by an IPFS blockstore.
// Blobs are stored as raw blocks under their CID; a key index maps
// thread keys to the CID currently pinned for that key.
package ipfs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/boxo/blockstore"
	blocks "github.com/ipfs/go-block-format"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"github.com/mvail/threadledger/internal/storage"
)

// blobCacheSize bounds the in-memory cache of fetched blocks.
// Content-addressed blobs are immutable, so entries never expire.
const blobCacheSize = 1024

type Store struct {
	bs     blockstore.Blockstore
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]string           // key -> CID
	meta  map[string]storage.Metadata // key -> metadata

	// blobCache caches blocks by CID to avoid blockstore reads.
	// Uses LRU eviction to bound memory usage. Thread-safe. No TTL.
	blobCache *lru.Cache[string, []byte]
}

// New creates a Store over the given datastore. A nil datastore gets an
// in-memory map datastore, which is suitable for tests and dev mode.
func New(d ds.Batching, logger *slog.Logger) (*Store, error) {
	if d == nil {
		d = dssync.MutexWrap(ds.NewMapDatastore())
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, []byte](blobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}

	return &Store{
		bs:        blockstore.NewBlockstore(d),
		logger:    logger,
		index:     make(map[string]string),
		meta:      make(map[string]storage.Metadata),
		blobCache: cache,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, meta storage.Metadata) (string, error) {
	contentID, _, err := storage.ComputeContentID(data)
	if err != nil {
		return "", fmt.Errorf("compute content id: %w", err)
	}

	c, err := storage.DecodeContentID(contentID)
	if err != nil {
		return "", fmt.Errorf("decode content id: %w", err)
	}

	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return "", fmt.Errorf("build block: %w", err)
	}
	if err := s.bs.Put(ctx, blk); err != nil {
		return "", fmt.Errorf("put block: %w", err)
	}

	s.mu.Lock()
	s.index[key] = contentID
	m := make(storage.Metadata, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	s.meta[key] = m
	s.mu.Unlock()

	s.blobCache.Add(contentID, data)
	s.logger.Debug("put object", "key", key, "cid", contentID, "size", len(data))

	return contentID, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	contentID, ok := s.index[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	if data, ok := s.blobCache.Get(contentID); ok {
		return data, nil
	}

	c, err := storage.DecodeContentID(contentID)
	if err != nil {
		return nil, fmt.Errorf("decode content id: %w", err)
	}

	blk, err := s.bs.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", contentID, err)
	}

	data := blk.RawData()
	s.blobCache.Add(contentID, data)
	return data, nil
}

func (s *Store) Head(ctx context.Context, key string) (storage.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.index[key]; !ok {
		return nil, storage.ErrNotFound
	}

	m := make(storage.Metadata, len(s.meta[key]))
	for k, v := range s.meta[key] {
		m[k] = v
	}
	return m, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	contentID, ok := s.index[key]
	if ok {
		delete(s.index, key)
		delete(s.meta, key)
	}
	s.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}

	return s.removeBlock(ctx, contentID)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k := range s.index {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Unpin removes a block by content identifier and drops any key that
// still points at it.
func (s *Store) Unpin(ctx context.Context, contentID string) error {
	s.mu.Lock()
	for k, id := range s.index {
		if id == contentID {
			delete(s.index, k)
			delete(s.meta, k)
		}
	}
	s.mu.Unlock()

	return s.removeBlock(ctx, contentID)
}

func (s *Store) removeBlock(ctx context.Context, contentID string) error {
	c, err := storage.DecodeContentID(contentID)
	if err != nil {
		return fmt.Errorf("decode content id: %w", err)
	}
	if err := s.bs.DeleteBlock(ctx, c); err != nil {
		return fmt.Errorf("delete block %s: %w", contentID, err)
	}
	s.blobCache.Remove(contentID)
	return nil
}

var _ storage.ObjectStore = (*Store)(nil)
