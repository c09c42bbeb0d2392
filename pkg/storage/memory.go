package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemStore is an in-memory ObjectStore, used by tests and local runs.
type MemStore struct {
	objects *xsync.Map[string, []byte]
}

func NewMemStore() *MemStore {
	return &MemStore{objects: xsync.NewMap[string, []byte]()}
}

func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects.Load(key)
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotExist)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) Put(_ context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects.Store(key, stored)
	return nil
}

func (s *MemStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects.Load(key)
	return ok, nil
}

func (s *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	s.objects.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}
