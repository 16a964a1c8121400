package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"jewelpos/backend/internal/store"
)

// Store keeps every record in a process-local map. Data is lost on restart.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(val), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = slices.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

func (s *Store) ScanPrefix(_ context.Context, prefix string) ([]store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]store.Entry, 0)
	for key, val := range s.values {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, store.Entry{Key: key, Value: slices.Clone(val)})
		}
	}
	slices.SortFunc(entries, func(a, b store.Entry) int {
		return strings.Compare(a.Key, b.Key)
	})
	return entries, nil
}

// Update holds the write lock for the whole callback, so every Update is
// serialized against every other write.
func (s *Store) Update(ctx context.Context, _ []string, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{parent: s, writes: make(map[string][]byte), deletes: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for key := range tx.deletes {
		delete(s.values, key)
	}
	for key, val := range tx.writes {
		s.values[key] = val
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

type memTx struct {
	parent  *Store
	writes  map[string][]byte
	deletes map[string]bool
}

func (t *memTx) Get(_ context.Context, key string) ([]byte, error) {
	if t.deletes[key] {
		return nil, store.ErrNotFound
	}
	if val, ok := t.writes[key]; ok {
		return slices.Clone(val), nil
	}
	val, ok := t.parent.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(val), nil
}

func (t *memTx) Set(_ context.Context, key string, value []byte) error {
	delete(t.deletes, key)
	t.writes[key] = slices.Clone(value)
	return nil
}

func (t *memTx) Delete(_ context.Context, key string) error {
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}
