package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// siliconflowBaseURL is used when the provider is siliconflow and no
// explicit base URL is configured.
const siliconflowBaseURL = "https://api.siliconflow.cn/v1"

// Config configures the OpenAI-compatible embedding client.
type Config struct {
	Provider   string // openai or siliconflow
	Model      string // e.g. BAAI/bge-m3, text-embedding-3-small
	Dimensions int
	APIKey     string
	BaseURL    string // overrides the provider default
}

type openaiService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewService creates an embedding service against an OpenAI-compatible
// endpoint. SiliconFlow speaks the same API under its own base URL.
func NewService(cfg Config) (Service, error) {
	cc := openai.DefaultConfig(cfg.APIKey)
	switch cfg.Provider {
	case "openai":
	case "siliconflow":
		cc.BaseURL = siliconflowBaseURL
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}

	return &openaiService{
		client:     openai.NewClientWithConfig(cc),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *openaiService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *openaiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding batch is empty")
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return data out of order; Index restores input order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (s *openaiService) Dimensions() int {
	return s.dimensions
}

// Ensure openaiService implements Service.
var _ Service = (*openaiService)(nil)
