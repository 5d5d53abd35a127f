package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolabs/mnemo/core"
)

// MemoryStore is an in-process Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	memories map[string]core.StoredMemory

	// FailAdd and FailUpdate, when set, are returned by the respective
	// write intents.
	FailAdd    error
	FailUpdate error
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memories: make(map[string]core.StoredMemory)}
}

func (s *MemoryStore) Add(ctx context.Context, mem core.StoredMemory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAdd != nil {
		return "", s.FailAdd
	}
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	now := time.Now()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = now
	s.memories[mem.ID] = mem
	return mem.ID, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpdate != nil {
		return s.FailUpdate
	}
	mem, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}
	mem.Content = content
	mem.UpdatedAt = time.Now()
	s.memories[id] = mem
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*core.StoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := mem
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context, class core.MemoryClass) ([]core.StoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memories []core.StoredMemory
	for _, mem := range s.memories {
		if mem.Class == class {
			memories = append(memories, mem)
		}
	}
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].UpdatedAt.After(memories[j].UpdatedAt)
	})
	return memories, nil
}

// Len returns the total number of stored memories.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
