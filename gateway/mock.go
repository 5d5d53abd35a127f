package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/mnemolabs/mnemo/core"
)

// MockGateway is a scripted Gateway implementation for testing. Each
// operation can be driven by a function hook; unset hooks fall back to
// simple deterministic behavior.
type MockGateway struct {
	mu sync.Mutex

	ExtractFunc   func(text string) ([]Extraction, error)
	SummarizeFunc func(text string, maxTokens int, hint string) (string, error)
	ClassifyFunc  func(text string) (core.MemoryClass, error)
	ResolveFunc   func(existing, candidate string, similarity float64) (*core.Resolution, error)

	// Calls records every operation invoked, in order.
	Calls []string
}

// NewMockGateway creates a MockGateway with default behavior: every
// sentence extracts as a candidate with relevance 0.9, summarize
// truncates, classify returns ClassOther, resolve keeps both.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
}

// CallCount returns how many times op was invoked.
func (m *MockGateway) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockGateway) Extract(ctx context.Context, text string) ([]Extraction, error) {
	m.record("extract")
	if err := ctx.Err(); err != nil {
		return nil, ErrTimeout
	}
	if m.ExtractFunc != nil {
		return m.ExtractFunc(text)
	}
	return []Extraction{{Content: strings.TrimSpace(text), Relevance: 0.9, Class: core.ClassOther}}, nil
}

func (m *MockGateway) Summarize(ctx context.Context, text string, maxTokens int, hint string) (string, error) {
	m.record("summarize")
	if err := ctx.Err(); err != nil {
		return "", ErrTimeout
	}
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(text, maxTokens, hint)
	}
	words := strings.Fields(text)
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return strings.Join(words, " "), nil
}

func (m *MockGateway) Classify(ctx context.Context, text string) (core.MemoryClass, error) {
	m.record("classify")
	if err := ctx.Err(); err != nil {
		return "", ErrTimeout
	}
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(text)
	}
	return core.ClassOther, nil
}

func (m *MockGateway) Resolve(ctx context.Context, existing, candidate string, similarity float64) (*core.Resolution, error) {
	m.record("resolve")
	if err := ctx.Err(); err != nil {
		return nil, ErrTimeout
	}
	if m.ResolveFunc != nil {
		return m.ResolveFunc(existing, candidate, similarity)
	}
	return &core.Resolution{Action: core.ActionKeepBoth, Reason: "default mock resolution"}, nil
}

// Ensure MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)
