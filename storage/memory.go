package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store over an in-process map. Used by tests and as
// a throwaway backend for local experiments.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func key(name, version, filename string) string {
	return name + "/" + version + "/" + filename
}

func (s *MemoryStore) Put(
	_ context.Context,
	name, version, filename string,
	content []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(content))
	copy(buf, content)
	s.objects[key(name, version, filename)] = buf

	return nil
}

func (s *MemoryStore) Get(
	_ context.Context,
	name, version, filename string,
) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.objects[key(name, version, filename)]
	if !ok {
		return nil, ErrNotFound
	}

	return content, nil
}

func (s *MemoryStore) Exists(
	_ context.Context,
	name, version, filename string,
) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key(name, version, filename)]

	return ok, nil
}

func (s *MemoryStore) ListProjects(_ context.Context) ([]string, error) {
	return s.segment("", 0)
}

func (s *MemoryStore) ListVersions(_ context.Context, name string) ([]string, error) {
	return s.segment(name+"/", 1)
}

func (s *MemoryStore) ListFiles(_ context.Context, name, version string) ([]string, error) {
	return s.segment(name+"/"+version+"/", 2)
}

// segment collects the distinct path segment at the given depth below the
// prefix. A non-empty prefix with no matching keys is a miss.
func (s *MemoryStore) segment(prefix string, depth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	for k := range s.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		parts := strings.Split(k, "/")
		if len(parts) > depth {
			seen[parts[depth]] = true
		}
	}

	if prefix != "" && len(seen) == 0 {
		return nil, ErrNotFound
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}
