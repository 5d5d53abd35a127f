// Package gateway is the abstraction boundary around the language model
// backend. It exposes the four task-scoped operations the pipeline needs
// (extract, summarize, classify, resolve) and normalizes backend failures
// into a small error taxonomy so stages never see raw provider errors.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnemolabs/mnemo/core"
)

// Gateway errors. Timeout and Unavailable are transient/network-class;
// MalformedResponse means the model answered but the answer could not be
// parsed into the expected shape.
var (
	ErrTimeout     = errors.New("gateway: request timed out")
	ErrUnavailable = errors.New("gateway: backend unavailable")
)

// MalformedResponseError reports a model response that failed shape
// validation. The raw response is intentionally not carried: memory
// content must not leak through error messages.
type MalformedResponseError struct {
	Op     string // extract, summarize, classify, resolve
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("gateway %s: malformed response: %s", e.Op, e.Detail)
}

// IsMalformed reports whether err is (or wraps) a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// Extraction is one scored memory candidate returned by Extract.
type Extraction struct {
	Content   string           `json:"content"`
	Relevance float64          `json:"relevance"`
	Class     core.MemoryClass `json:"category,omitempty"`
}

// Gateway is the language model service interface. Every call is bounded
// by the context deadline; implementations return ErrTimeout on deadline
// expiry and ErrUnavailable on backend failure, never a silent empty
// success.
type Gateway interface {
	// Extract returns scored memory candidates found in text, already
	// validated for shape (relevance within [0,1], non-empty content).
	Extract(ctx context.Context, text string) ([]Extraction, error)

	// Summarize compresses text to roughly maxTokens tokens. The hint
	// names salient categories that must survive summarization; empty
	// means DefaultPreservationHint.
	Summarize(ctx context.Context, text string, maxTokens int, hint string) (string, error)

	// Classify assigns a memory class to text.
	Classify(ctx context.Context, text string) (core.MemoryClass, error)

	// Resolve decides how a new memory relates to an existing one with
	// the given similarity. The returned action is validated; Result may
	// be empty (callers handle the Merge downgrade).
	Resolve(ctx context.Context, existing, candidate string, similarity float64) (*core.Resolution, error)
}

// RetryOnce invokes fn and, if it fails with a malformed response,
// retries exactly once. Transient errors and second-attempt failures are
// returned as-is; the caller treats them as fatal for the current item.
func RetryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	out, err := fn(ctx)
	if err == nil || !IsMalformed(err) {
		return out, err
	}
	return fn(ctx)
}

// WithCallTimeout derives the context bounding a single gateway call
// from the per-call budget in core.Config. A non-positive timeout leaves
// ctx unchanged, so each retry attempt gets its own fresh budget when
// callers apply it inside the RetryOnce closure.
func WithCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
