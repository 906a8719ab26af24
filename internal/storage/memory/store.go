// Package memory provides an in-process ObjectStore used by tests and
// single-node development mode. It keeps the same content-addressed model
// as the production backends: blobs live under their content identifier
// and keys point at the current blob.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mvail/threadledger/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte           // contentID -> data
	keys  map[string]string           // key -> contentID
	meta  map[string]storage.Metadata // key -> metadata
}

func New() *Store {
	return &Store{
		blobs: make(map[string][]byte),
		keys:  make(map[string]string),
		meta:  make(map[string]storage.Metadata),
	}
}

func (s *Store) Put(ctx context.Context, key string, data []byte, meta storage.Metadata) (string, error) {
	contentID, _, err := storage.ComputeContentID(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[contentID] = buf
	s.keys[key] = contentID

	m := make(storage.Metadata, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	s.meta[key] = m

	return contentID, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contentID, ok := s.keys[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	data, ok := s.blobs[contentID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *Store) Head(ctx context.Context, key string) (storage.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.keys[key]; !ok {
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
	defer s.mu.Unlock()

	contentID, ok := s.keys[key]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.keys, key)
	delete(s.meta, key)
	delete(s.blobs, contentID)
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Unpin(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, contentID)
	for k, id := range s.keys {
		if id == contentID {
			delete(s.keys, k)
			delete(s.meta, k)
		}
	}
	return nil
}

var _ storage.ObjectStore = (*Store)(nil)
