package caresync

import (
	"context"
	"sort"
	"sync"
)

// Store namespaces. Each namespace is an independent key space inside the
// same durable store.
const (
	nsAuth       = "auth"
	nsCache      = "cache"
	nsQueue      = "pending_queue"
	nsPhotoQueue = "photo_queue"
)

// StoreItem is one key/value pair produced by Store.Items.
type StoreItem struct {
	Key   string
	Value []byte
}

// Store is a namespaced key→value persistent mapping. Values are opaque
// bytes: JSON documents for cache and queue entries, raw blobs for photos.
// Implementations must serialize concurrent writes to the same key; callers
// add no locking of their own.
//
// Get returns ErrNotFound for absent keys.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Remove(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Items(ctx context.Context, namespace string) ([]StoreItem, error)
}

// MemoryStore is a goroutine-safe in-memory Store. It is the default backend
// and the one used in tests; production clients durably persist with
// OpenSQLiteStore instead.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	ns[key] = cp
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[namespace], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[namespace]))
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Items(_ context.Context, namespace string) ([]StoreItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]StoreItem, 0, len(s.data[namespace]))
	for k, v := range s.data[namespace] {
		cp := make([]byte, len(v))
		copy(cp, v)
		items = append(items, StoreItem{Key: k, Value: cp})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}
