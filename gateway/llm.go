package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/mnemolabs/mnemo/core"
)

// Config configures the model-backed gateway.
type Config struct {
	Provider    string // openai, deepseek, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int           // default 512
	Temperature float64       // default 0.2
	Timeout     time.Duration // per call, default core.DefaultGatewayTimeout

	// RequestsPerSecond throttles calls to the backend. Local single-model
	// backends serialize inference, so flooding them only grows latency.
	// Zero disables throttling.
	RequestsPerSecond float64
}

// Service is the production Gateway backed by a langchaingo model.
type Service struct {
	model       llms.Model
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// New creates a model-backed gateway.
func New(cfg Config) (*Service, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "deepseek":
		// DeepSeek is compatible with the OpenAI API.
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = core.DefaultGatewayTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Service{
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     limiter,
	}, nil
}

func (s *Service) Extract(ctx context.Context, text string) ([]Extraction, error) {
	resp, err := s.generate(ctx, "extract", buildExtractPrompt(text))
	if err != nil {
		return nil, err
	}
	return parseExtractions(resp)
}

func (s *Service) Summarize(ctx context.Context, text string, maxTokens int, hint string) (string, error) {
	resp, err := s.generate(ctx, "summarize", buildSummarizePrompt(text, hint, maxTokens))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp)
	if summary == "" {
		return "", &MalformedResponseError{Op: "summarize", Detail: "empty summary"}
	}
	return summary, nil
}

func (s *Service) Classify(ctx context.Context, text string) (core.MemoryClass, error) {
	resp, err := s.generate(ctx, "classify", buildClassifyPrompt(text))
	if err != nil {
		return "", err
	}
	label := strings.TrimSpace(resp)
	if label == "" {
		return "", &MalformedResponseError{Op: "classify", Detail: "empty category"}
	}
	return core.ParseClass(label), nil
}

func (s *Service) Resolve(ctx context.Context, existing, candidate string, similarity float64) (*core.Resolution, error) {
	resp, err := s.generate(ctx, "resolve", buildResolvePrompt(existing, candidate, similarity))
	if err != nil {
		return nil, err
	}
	return parseResolution(resp)
}

// generate runs one bounded model call. Backend errors are normalized to
// ErrTimeout or ErrUnavailable; only parse failures surface as malformed.
func (s *Service) generate(ctx context.Context, op, prompt string) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", ErrTimeout
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := llms.GenerateFromSinglePrompt(callCtx, s.model, prompt,
		llms.WithMaxTokens(s.maxTokens),
		llms.WithTemperature(s.temperature),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			slog.Warn("gateway call timed out", "op", op, "timeout", s.timeout)
			return "", ErrTimeout
		}
		slog.Warn("gateway backend error", "op", op, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Debug("gateway call completed", "op", op, "latency", time.Since(start))

	if strings.TrimSpace(resp) == "" {
		return "", &MalformedResponseError{Op: op, Detail: "empty response"}
	}
	return resp, nil
}

// extractionPayload is the wire shape of one extracted memory.
type extractionPayload struct {
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Category  string  `json:"category"`
}

// parseExtractions validates the model's extraction response. Guessing a
// shape out of free text is deliberately not attempted: anything that is
// not the documented JSON array is malformed.
func parseExtractions(resp string) ([]Extraction, error) {
	var payload []extractionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &payload); err != nil {
		return nil, &MalformedResponseError{Op: "extract", Detail: "not a JSON array"}
	}

	out := make([]Extraction, 0, len(payload))
	for _, p := range payload {
		if strings.TrimSpace(p.Content) == "" {
			return nil, &MalformedResponseError{Op: "extract", Detail: "entry with empty content"}
		}
		if p.Relevance < 0 || p.Relevance > 1 {
			return nil, &MalformedResponseError{Op: "extract", Detail: "relevance outside [0, 1]"}
		}
		var class core.MemoryClass
		if p.Category != "" {
			class = core.ParseClass(p.Category)
		}
		out = append(out, Extraction{
			Content:   strings.TrimSpace(p.Content),
			Relevance: p.Relevance,
			Class:     class,
		})
	}
	return out, nil
}

// resolutionPayload is the wire shape of a conflict resolution response.
type resolutionPayload struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	Result string `json:"result"`
}

func parseResolution(resp string) (*core.Resolution, error) {
	var payload resolutionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &payload); err != nil {
		return nil, &MalformedResponseError{Op: "resolve", Detail: "not a JSON object"}
	}

	var action core.ResolutionAction
	switch strings.ToUpper(strings.TrimSpace(payload.Action)) {
	case "MERGE":
		action = core.ActionMerge
	case "REPLACE":
		action = core.ActionReplace
	case "KEEP_BOTH":
		action = core.ActionKeepBoth
	case "DISCARD":
		action = core.ActionDiscard
	default:
		return nil, &MalformedResponseError{Op: "resolve", Detail: "unknown action"}
	}

	return &core.Resolution{
		Action: action,
		Reason: strings.TrimSpace(payload.Reason),
		Result: strings.TrimSpace(payload.Result),
	}, nil
}

// Ensure Service implements Gateway.
var _ Gateway = (*Service)(nil)
