// Package pipeline orchestrates memory ingestion: preprocessing,
// extraction, summarization, similarity detection, conflict resolution,
// and the final storage commit. Items flow through the stages in a fixed
// order; a configurable number of items runs concurrently, and a failure
// in one item never aborts its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/embedding"
	"github.com/mnemolabs/mnemo/gateway"
	"github.com/mnemolabs/mnemo/pipeline/extract"
	"github.com/mnemolabs/mnemo/pipeline/preprocess"
	"github.com/mnemolabs/mnemo/pipeline/resolve"
	"github.com/mnemolabs/mnemo/pipeline/similarity"
	"github.com/mnemolabs/mnemo/pipeline/summarize"
	"github.com/mnemolabs/mnemo/redact"
	"github.com/mnemolabs/mnemo/store"
	"github.com/mnemolabs/mnemo/vector"
)

// Item processing stages, in order. Failure reports carry the stage at
// which the item failed.
const (
	StageReceived          = "received"
	StagePreprocessed      = "preprocessed"
	StageExtracted         = "extracted"
	StageSummarized        = "summarized"
	StageSimilarityChecked = "similarity_checked"
	StageResolved          = "resolved"
	StageCommitted         = "committed"
)

// Pipeline is the ingestion orchestrator.
type Pipeline struct {
	pre        *preprocess.Preprocessor
	extractor  *extract.Extractor
	summarizer *summarize.Summarizer
	detector   *similarity.Detector
	resolver   *resolve.Resolver
	gw         gateway.Gateway
	embedder   embedding.Service
	index      vector.Index
	memories   store.Store
	locks      *resolve.KeyedLock
	metrics    *Metrics
}

// New wires a Pipeline from its collaborators. A nil redactor disables
// PII redaction.
func New(gw gateway.Gateway, embedder embedding.Service, index vector.Index, memories store.Store, redactor redact.Redactor) *Pipeline {
	return &Pipeline{
		pre:        preprocess.New(redactor),
		extractor:  extract.New(gw),
		summarizer: summarize.New(gw),
		detector:   similarity.New(embedder, index, memories),
		resolver:   resolve.New(gw),
		gw:         gw,
		embedder:   embedder,
		index:      index,
		memories:   memories,
		locks:      resolve.NewKeyedLock(),
		metrics:    NewMetrics(),
	}
}

// Metrics returns the running ingestion counters.
func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// IngestText runs the full pipeline over one conversation input.
// Preprocessing and extraction failures fail the conversation; from
// summarization onward each candidate is an independent item.
func (p *Pipeline) IngestText(ctx context.Context, content preprocess.Content, source, sessionID string, cfg core.Config) (*core.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sessionID = ensureSessionID(sessionID)

	result := &core.Result{}

	segments, err := p.pre.Parse(content)
	if err != nil {
		p.metrics.incFailed()
		result.Failed = append(result.Failed, core.ItemFailure{
			Stage: StagePreprocessed, Reason: errCategory(err),
		})
		return result, nil
	}
	p.metrics.addSegments(len(segments))

	candidates, err := p.extractor.Extract(ctx, segments, cfg)
	if err != nil {
		p.metrics.incFailed()
		result.Failed = append(result.Failed, core.ItemFailure{
			Stage: StageExtracted, Reason: errCategory(err),
		})
		return result, nil
	}
	p.metrics.addCandidates(len(candidates))
	slog.Info("conversation extracted",
		"session_id", sessionID, "source", source,
		"segments", len(segments), "candidates", len(candidates))

	p.processCandidates(ctx, candidates, cfg, result)
	return result, nil
}

// IngestBatch runs IngestText over several conversation inputs with
// per-input failure isolation. The failure index identifies the input.
func (p *Pipeline) IngestBatch(ctx context.Context, contents []preprocess.Content, source, sessionID string, cfg core.Config) (*core.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sessionID = ensureSessionID(sessionID)

	merged := &core.Result{}
	for i, content := range contents {
		res, err := p.IngestText(ctx, content, source, sessionID, cfg)
		if err != nil {
			return nil, err
		}
		merged.Stored = append(merged.Stored, res.Stored...)
		merged.Discarded += res.Discarded
		for _, f := range res.Failed {
			f.Index = i
			merged.Failed = append(merged.Failed, f)
		}
	}
	return merged, nil
}

// AddMemories ingests manually supplied memories. Manual items skip
// extraction and enter the pipeline at the summarization stage; conflict
// checking can be disabled for bulk imports.
func (p *Pipeline) AddMemories(ctx context.Context, inputs []core.RawMemoryInput, source, sessionID string, autoSummarize, checkConflicts bool, cfg core.Config) (*core.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sessionID = ensureSessionID(sessionID)

	result := &core.Result{}
	candidates := make([]core.MemoryCandidate, 0, len(inputs))
	indexes := make([]int, 0, len(inputs))

	for i, in := range inputs {
		if strings.TrimSpace(in.Content) == "" {
			p.metrics.incFailed()
			result.Failed = append(result.Failed, core.ItemFailure{
				Index: i, Stage: StageReceived, Reason: "empty content",
			})
			continue
		}

		class := in.Class
		if class == "" {
			var err error
			class, err = gateway.RetryOnce(ctx, func(ctx context.Context) (core.MemoryClass, error) {
				ctx, cancel := gateway.WithCallTimeout(ctx, cfg.GatewayTimeout)
				defer cancel()
				return p.gw.Classify(ctx, in.Content)
			})
			if err != nil {
				p.metrics.incFailed()
				result.Failed = append(result.Failed, core.ItemFailure{
					Index: i, Stage: StageReceived, Reason: errCategory(err),
				})
				continue
			}
		}

		candidates = append(candidates, core.MemoryCandidate{
			Content:   in.Content,
			Relevance: 1, // manual input is trusted
			Class:     class,
			Tags:      in.Tags,
			Manual:    true,
		})
		indexes = append(indexes, i)
	}
	p.metrics.addCandidates(len(candidates))

	p.processCandidatesOpts(ctx, candidates, indexes, cfg, autoSummarize, checkConflicts, result)
	slog.Info("manual memories processed",
		"session_id", sessionID, "source", source,
		"inputs", len(inputs), "stored", len(result.Stored),
		"discarded", result.Discarded, "failed", len(result.Failed))
	return result, nil
}

// processCandidates runs candidates through summarize → similarity →
// resolve → commit with full behavior.
func (p *Pipeline) processCandidates(ctx context.Context, candidates []core.MemoryCandidate, cfg core.Config, result *core.Result) {
	indexes := make([]int, len(candidates))
	for i := range indexes {
		indexes[i] = i
	}
	p.processCandidatesOpts(ctx, candidates, indexes, cfg, true, true, result)
}

// itemOutcome is the terminal state of one candidate.
type itemOutcome struct {
	storedID  string
	discarded bool
	failure   *core.ItemFailure
}

// processCandidatesOpts runs the per-candidate stages on a bounded
// worker pool. Each candidate reaches exactly one terminal action;
// failures are isolated per candidate.
func (p *Pipeline) processCandidatesOpts(ctx context.Context, candidates []core.MemoryCandidate, indexes []int, cfg core.Config, autoSummarize, checkConflicts bool, result *core.Result) {
	if len(candidates) == 0 {
		return
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = core.DefaultConcurrency()
	}

	outcomes := make([]itemOutcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range candidates {
		i := i
		g.Go(func() error {
			outcomes[i] = p.processOne(gctx, candidates[i], indexes[i], cfg, autoSummarize, checkConflicts)
			return nil // item failures never abort siblings
		})
	}
	// Workers only return nil; Wait is for completion, not errors.
	_ = g.Wait()

	for _, out := range outcomes {
		switch {
		case out.failure != nil:
			p.metrics.incFailed()
			result.Failed = append(result.Failed, *out.failure)
		case out.discarded:
			result.Discarded++
		default:
			result.Stored = append(result.Stored, out.storedID)
		}
	}
}

// processOne advances a single candidate through its remaining stages.
func (p *Pipeline) processOne(ctx context.Context, cand core.MemoryCandidate, index int, cfg core.Config, autoSummarize, checkConflicts bool) itemOutcome {
	fail := func(stage string, err error) itemOutcome {
		slog.Warn("candidate failed", "index", index, "stage", stage, "reason", errCategory(err))
		return itemOutcome{failure: &core.ItemFailure{
			Index: index, Stage: stage, Reason: errCategory(err),
		}}
	}

	// Summarized
	if autoSummarize {
		summarized, err := p.summarizer.Summarize(ctx, cand, cfg)
		if err != nil {
			return fail(StageSummarized, err)
		}
		if summarized.Content != cand.Content {
			p.metrics.incSummarized()
		}
		cand = summarized
	}

	if !checkConflicts {
		id, err := p.commitNew(ctx, cand, nil)
		if err != nil {
			return fail(StageCommitted, err)
		}
		return itemOutcome{storedID: id}
	}

	// SimilarityChecked
	dup, emb, err := p.detector.FindDuplicate(ctx, cand, cfg)
	if err != nil {
		return fail(StageSimilarityChecked, err)
	}
	if dup == nil {
		id, err := p.commitNew(ctx, cand, emb)
		if err != nil {
			return fail(StageCommitted, err)
		}
		return itemOutcome{storedID: id}
	}
	p.metrics.incDuplicate()

	// Resolved. Serialized per existing memory so concurrent
	// near-duplicates observe each other's commits.
	unlock := p.locks.Lock(dup.Existing.ID)
	defer unlock()

	fresh, err := p.memories.Get(ctx, dup.Existing.ID)
	if errors.Is(err, store.ErrNotFound) {
		// The existing memory vanished while we waited on the lock;
		// the candidate is new after all.
		id, err := p.commitNew(ctx, cand, emb)
		if err != nil {
			return fail(StageCommitted, err)
		}
		return itemOutcome{storedID: id}
	}
	if err != nil {
		return fail(StageResolved, &core.StorageError{Op: "get", Err: err})
	}
	dup.Existing = *fresh

	res, err := p.resolver.Resolve(ctx, *dup, cfg)
	if err != nil {
		return fail(StageResolved, err)
	}
	p.metrics.incAction(string(res.Action))

	// Committed
	switch res.Action {
	case core.ActionMerge, core.ActionReplace:
		if err := p.commitUpdate(ctx, dup.Existing, res.Result); err != nil {
			return fail(StageCommitted, err)
		}
		slog.Info("memory updated", "memory_id", dup.Existing.ID, "action", res.Action)
		return itemOutcome{storedID: dup.Existing.ID}

	case core.ActionKeepBoth:
		id, err := p.commitNew(ctx, cand, emb)
		if err != nil {
			return fail(StageCommitted, err)
		}
		return itemOutcome{storedID: id}

	case core.ActionDiscard:
		slog.Info("candidate discarded", "memory_id", dup.Existing.ID)
		return itemOutcome{discarded: true}

	default:
		return fail(StageResolved, fmt.Errorf("unexpected resolution action %q", res.Action))
	}
}

// commitNew issues the add intent: store the memory and index its
// vector. A nil embedding is computed on demand.
func (p *Pipeline) commitNew(ctx context.Context, cand core.MemoryCandidate, emb []float32) (string, error) {
	if emb == nil {
		var err error
		emb, err = p.embedder.Embed(ctx, cand.Content)
		if err != nil {
			return "", &core.SimilarityError{Err: err}
		}
	}

	id, err := p.memories.Add(ctx, core.StoredMemory{
		Content: cand.Content,
		Class:   cand.Class,
		Tags:    cand.Tags,
	})
	if err != nil {
		return "", &core.StorageError{Op: "add", Err: err}
	}

	if err := p.index.Upsert(ctx, id, cand.Class, emb); err != nil {
		return "", &core.SimilarityError{Err: err}
	}

	p.metrics.incStored()
	slog.Info("memory stored", "memory_id", id, "class", cand.Class)
	return id, nil
}

// commitUpdate issues the update intent for merge and replace: rewrite
// the existing memory's content and refresh its vector.
func (p *Pipeline) commitUpdate(ctx context.Context, existing core.StoredMemory, content string) error {
	if err := p.memories.Update(ctx, existing.ID, content); err != nil {
		return &core.StorageError{Op: "update", Err: err}
	}

	emb, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return &core.SimilarityError{Err: err}
	}
	if err := p.index.Upsert(ctx, existing.ID, existing.Class, emb); err != nil {
		return &core.SimilarityError{Err: err}
	}

	p.metrics.incStored()
	return nil
}

// ensureSessionID assigns a short run identifier when the caller did not
// provide one.
func ensureSessionID(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return shortuuid.New()
}

// errCategory renders an error for batch results without leaking memory
// content: typed pipeline errors carry only identifiers and categories.
func errCategory(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
