package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/mnemolabs/mnemo/core"
)

// MockIndex is an in-memory Index for testing, with optional error
// injection for unreachable-index scenarios.
type MockIndex struct {
	mu      sync.RWMutex
	entries map[core.MemoryClass]map[string][]float32

	// FailSearch, when set, is returned by every Search call.
	FailSearch error
}

// NewMockIndex creates an empty MockIndex.
func NewMockIndex() *MockIndex {
	return &MockIndex{
		entries: make(map[core.MemoryClass]map[string][]float32),
	}
}

func (m *MockIndex) Upsert(ctx context.Context, id string, class core.MemoryClass, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[class] == nil {
		m.entries[class] = make(map[string][]float32)
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	m.entries[class][id] = v
	return nil
}

func (m *MockIndex) Search(ctx context.Context, vector []float32, class core.MemoryClass, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailSearch != nil {
		return nil, m.FailSearch
	}

	var matches []Match
	for id, v := range m.entries[class] {
		matches = append(matches, Match{ID: id, Score: cosineSimilarity(vector, v)})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MockIndex) Delete(ctx context.Context, id string, class core.MemoryClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[class], id)
	return nil
}

// Count returns the number of entries in a class partition.
func (m *MockIndex) Count(class core.MemoryClass) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[class])
}

// cosineSimilarity is clamped to [0, 1] to match the Index contract.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	raw := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}

// Ensure MockIndex implements Index.
var _ Index = (*MockIndex)(nil)
