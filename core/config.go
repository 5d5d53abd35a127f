package core

import (
	"runtime"
	"time"
)

// Ingestion defaults.
const (
	DefaultExtractionThreshold = 0.3
	DefaultSimilarityThreshold = 0.85
	DefaultMaxSummaryTokens    = 128
	DefaultGatewayTimeout      = 30 * time.Second

	// MaxConcurrency caps the worker pool regardless of CPU count; the
	// gateway is commonly a single local model instance with effectively
	// serialized throughput.
	MaxConcurrency = 4
)

// Config carries the per-call ingestion parameters. The zero value is not
// usable; construct with DefaultConfig and override as needed.
type Config struct {
	// ExtractionThreshold drops extracted candidates whose relevance is
	// below it. Range [0,1].
	ExtractionThreshold float64

	// SimilarityThreshold is the minimum similarity for an existing
	// memory to count as a duplicate. Range [0,1].
	SimilarityThreshold float64

	// MaxSummaryTokens is the token budget above which candidate content
	// gets summarized.
	MaxSummaryTokens int

	// AutoResolve enables gateway-driven conflict resolution. When false
	// every duplicate resolves to KeepBoth.
	AutoResolve bool

	// Concurrency bounds the number of items processed in parallel.
	// Zero means DefaultConcurrency().
	Concurrency int

	// GatewayTimeout bounds each language model call.
	GatewayTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ExtractionThreshold: DefaultExtractionThreshold,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxSummaryTokens:    DefaultMaxSummaryTokens,
		AutoResolve:         true,
		Concurrency:         DefaultConcurrency(),
		GatewayTimeout:      DefaultGatewayTimeout,
	}
}

// DefaultConcurrency derives the worker pool size from the CPU count,
// capped at MaxConcurrency.
func DefaultConcurrency() int {
	n := runtime.NumCPU()
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks threshold ranges and budgets. It returns a *ConfigError
// on the first violation.
func (c Config) Validate() error {
	if c.ExtractionThreshold < 0 || c.ExtractionThreshold > 1 {
		return &ConfigError{Field: "extraction_threshold", Detail: "must be within [0, 1]"}
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return &ConfigError{Field: "similarity_threshold", Detail: "must be within [0, 1]"}
	}
	if c.MaxSummaryTokens <= 0 {
		return &ConfigError{Field: "max_summary_tokens", Detail: "must be positive"}
	}
	if c.Concurrency < 0 {
		return &ConfigError{Field: "concurrency", Detail: "must not be negative"}
	}
	if c.GatewayTimeout <= 0 {
		return &ConfigError{Field: "gateway_timeout", Detail: "must be positive"}
	}
	return nil
}
