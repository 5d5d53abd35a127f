// Package extract turns preprocessed segments into scored memory
// candidates via the language model gateway.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/gateway"
)

// Extractor extracts memory candidates from conversation segments.
type Extractor struct {
	gw gateway.Gateway
}

// New creates an Extractor.
func New(gw gateway.Gateway) *Extractor {
	return &Extractor{gw: gw}
}

// Extract runs gateway extraction over every segment, drops candidates
// below cfg.ExtractionThreshold, and fills in a missing class via the
// classify fallback. Candidates keep source segment order; scores never
// reorder them.
func (e *Extractor) Extract(ctx context.Context, segments []core.Segment, cfg core.Config) ([]core.MemoryCandidate, error) {
	var candidates []core.MemoryCandidate

	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}

		extractions, err := gateway.RetryOnce(ctx, func(ctx context.Context) ([]gateway.Extraction, error) {
			ctx, cancel := gateway.WithCallTimeout(ctx, cfg.GatewayTimeout)
			defer cancel()
			return e.gw.Extract(ctx, seg.Text)
		})
		if err != nil {
			return nil, fmt.Errorf("extract segment %d: %w", seg.Index, err)
		}

		window := contextWindow(segments, i)
		for _, ext := range extractions {
			if ext.Relevance < cfg.ExtractionThreshold {
				slog.Debug("dropped low-relevance candidate",
					"segment", seg.Index, "relevance", ext.Relevance)
				continue
			}

			class := ext.Class
			if class == "" {
				class, err = gateway.RetryOnce(ctx, func(ctx context.Context) (core.MemoryClass, error) {
					ctx, cancel := gateway.WithCallTimeout(ctx, cfg.GatewayTimeout)
					defer cancel()
					return e.gw.Classify(ctx, ext.Content)
				})
				if err != nil {
					return nil, fmt.Errorf("classify candidate from segment %d: %w", seg.Index, err)
				}
			}

			candidates = append(candidates, core.MemoryCandidate{
				Content:   ext.Content,
				Relevance: ext.Relevance,
				Class:     class,
				Context:   window,
			})
		}
	}

	slog.Debug("extraction completed", "segments", len(segments), "candidates", len(candidates))
	return candidates, nil
}

// contextWindow joins the adjacent segments around position i, giving
// each candidate a small slice of surrounding conversation.
func contextWindow(segments []core.Segment, i int) string {
	var parts []string
	if i > 0 {
		parts = append(parts, segments[i-1].Text)
	}
	parts = append(parts, segments[i].Text)
	if i+1 < len(segments) {
		parts = append(parts, segments[i+1].Text)
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, "\n")
}
