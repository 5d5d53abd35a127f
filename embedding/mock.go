package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockService is a deterministic embedding service for testing. Texts can
// be pinned to fixed vectors; anything unpinned gets a stable hash-derived
// vector, so identical texts always embed identically.
type MockService struct {
	mu     sync.RWMutex
	pinned map[string][]float32
	dims   int
}

// NewMockService creates a MockService with the given dimension.
func NewMockService(dims int) *MockService {
	if dims <= 0 {
		dims = 8
	}
	return &MockService{
		pinned: make(map[string][]float32),
		dims:   dims,
	}
}

// Pin fixes the vector returned for text. The vector is normalized to the
// service dimension.
func (m *MockService) Pin(text string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]float32, m.dims)
	copy(v, vector)
	m.pinned[text] = v
}

func (m *MockService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	v, ok := m.pinned[text]
	m.mu.RUnlock()
	if ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	return m.hashVector(text), nil
}

func (m *MockService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockService) Dimensions() int {
	return m.dims
}

// hashVector derives a unit-length vector from the text's FNV hash.
func (m *MockService) hashVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, m.dims)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>32)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}

// Ensure MockService implements Service.
var _ Service = (*MockService)(nil)
