// Package resolve decides how a candidate relates to its most similar
// existing memory: merge, replace, keep both, or discard.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/gateway"
)

// ReasonAutoResolveDisabled is the recorded reason when auto-resolution
// is turned off.
const ReasonAutoResolveDisabled = "auto-resolution disabled"

// Resolver performs gateway-driven conflict resolution with post-hoc
// validation of the gateway's decision.
type Resolver struct {
	gw gateway.Gateway
}

// New creates a Resolver.
func New(gw gateway.Gateway) *Resolver {
	return &Resolver{gw: gw}
}

// Resolve returns the terminal decision for a duplicate pair. With
// auto-resolution disabled every duplicate keeps both. A Merge decision
// without resulting content is downgraded to KeepBoth; a merge with
// empty content is never committed.
//
// Callers serialize calls per existing memory via KeyedLock; Resolve
// itself is stateless.
func (r *Resolver) Resolve(ctx context.Context, dup core.DuplicateCandidate, cfg core.Config) (*core.Resolution, error) {
	if !cfg.AutoResolve {
		return &core.Resolution{
			Action: core.ActionKeepBoth,
			Reason: ReasonAutoResolveDisabled,
		}, nil
	}

	res, err := gateway.RetryOnce(ctx, func(ctx context.Context) (*core.Resolution, error) {
		ctx, cancel := gateway.WithCallTimeout(ctx, cfg.GatewayTimeout)
		defer cancel()
		return r.gw.Resolve(ctx, dup.Existing.Content, dup.Candidate.Content, dup.Similarity)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve against %s: %w", dup.Existing.ID, err)
	}

	return r.validate(res, dup), nil
}

// validate enforces the resolution policy on the gateway's decision.
func (r *Resolver) validate(res *core.Resolution, dup core.DuplicateCandidate) *core.Resolution {
	if !res.Action.Valid() {
		slog.Warn("gateway returned unknown resolution action, keeping both",
			"memory_id", dup.Existing.ID)
		return &core.Resolution{
			Action: core.ActionKeepBoth,
			Reason: "unknown gateway action",
		}
	}

	if res.Action == core.ActionMerge && res.Result == "" {
		slog.Warn("merge resolution without result content, downgrading to keep-both",
			"memory_id", dup.Existing.ID)
		return &core.Resolution{
			Action: core.ActionKeepBoth,
			Reason: fmt.Sprintf("merge downgraded: gateway returned no merged content (%s)", res.Reason),
		}
	}

	if res.Action == core.ActionReplace && res.Result == "" {
		// Replace without explicit result means the candidate content
		// replaces the existing content as-is.
		res.Result = dup.Candidate.Content
	}

	return res
}
