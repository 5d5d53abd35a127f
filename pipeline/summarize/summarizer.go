// Package summarize compresses candidate content to a token budget while
// preserving salient facts.
package summarize

import (
	"context"
	"fmt"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/gateway"
)

// Summarizer compresses memory candidates via the gateway.
type Summarizer struct {
	gw gateway.Gateway

	// Hint names the salient categories summarization must preserve.
	// Empty uses gateway.DefaultPreservationHint ("preserve all proper
	// nouns and dates").
	Hint string
}

// New creates a Summarizer.
func New(gw gateway.Gateway) *Summarizer {
	return &Summarizer{gw: gw}
}

// Summarize replaces the candidate's content with a summary when its
// estimated token length exceeds cfg.MaxSummaryTokens. Short content
// passes through unchanged, so summarizing already-short content is a
// no-op. The original content is preserved in Context when Context is
// not already set.
func (s *Summarizer) Summarize(ctx context.Context, cand core.MemoryCandidate, cfg core.Config) (core.MemoryCandidate, error) {
	if EstimateTokens(cand.Content) <= cfg.MaxSummaryTokens {
		return cand, nil
	}

	summary, err := gateway.RetryOnce(ctx, func(ctx context.Context) (string, error) {
		ctx, cancel := gateway.WithCallTimeout(ctx, cfg.GatewayTimeout)
		defer cancel()
		return s.gw.Summarize(ctx, cand.Content, cfg.MaxSummaryTokens, s.Hint)
	})
	if err != nil {
		return cand, fmt.Errorf("summarize candidate: %w", err)
	}

	if cand.Context == "" {
		cand.Context = cand.Content
	}
	cand.Content = summary
	return cand, nil
}

// EstimateTokens approximates the token count of text. The usual
// rule of thumb for latin-script text is about four characters per
// token; the estimate only gates whether summarization runs at all, so
// precision is not required.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
