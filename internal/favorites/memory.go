package favorites

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process Storage.  The server falls back to it when
// no database is configured.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Update runs fn under the storage lock and stores its result.
func (m *MemoryStorage) Update(_ context.Context, key string, fn func([]byte, bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.data[key]
	next, err := fn(append([]byte(nil), old...), ok)
	if err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

// Scoped returns a view of m whose keys are prefixed by scope, so one
// MemoryStorage can back many sessions.
func (m *MemoryStorage) Scoped(scope string) Storage {
	return scopedStorage{inner: m, prefix: scope + ":"}
}

type scopedStorage struct {
	inner  *MemoryStorage
	prefix string
}

func (s scopedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s scopedStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s scopedStorage) Update(ctx context.Context, key string, fn func([]byte, bool) ([]byte, error)) error {
	return s.inner.Update(ctx, s.prefix+key, fn)
}
