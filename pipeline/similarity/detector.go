// Package similarity finds near-duplicate stored memories for incoming
// candidates using the embedding service and the vector index.
package similarity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/embedding"
	"github.com/mnemolabs/mnemo/store"
	"github.com/mnemolabs/mnemo/vector"
)

// searchK is how many neighbors are fetched per query; more than one so
// ties within the tie window can be broken by recency.
const searchK = 5

// tieWindow is the score distance within which two neighbors count as
// tied; ties are broken by most-recently-updated existing memory.
const tieWindow = 0.001

// MemoryGetter is the slice of the store the detector needs.
type MemoryGetter interface {
	Get(ctx context.Context, id string) (*core.StoredMemory, error)
}

// Detector performs class-scoped nearest-neighbor duplicate detection.
type Detector struct {
	embedder embedding.Service
	index    vector.Index
	memories MemoryGetter
}

// New creates a Detector.
func New(embedder embedding.Service, index vector.Index, memories MemoryGetter) *Detector {
	return &Detector{embedder: embedder, index: index, memories: memories}
}

// FindDuplicate embeds the candidate's content and queries the vector
// index among stored memories of the same class. It returns a duplicate
// only when similarity meets cfg.SimilarityThreshold; (nil, emb, nil) is
// the expected new-memory path. The computed embedding is returned for
// reuse at commit time.
func (d *Detector) FindDuplicate(ctx context.Context, cand core.MemoryCandidate, cfg core.Config) (*core.DuplicateCandidate, []float32, error) {
	emb, err := d.embedder.Embed(ctx, cand.Content)
	if err != nil {
		return nil, nil, &core.SimilarityError{Err: err}
	}

	matches, err := d.index.Search(ctx, emb, cand.Class, searchK)
	if err != nil {
		return nil, nil, &core.SimilarityError{Err: err}
	}
	if len(matches) == 0 || matches[0].Score < cfg.SimilarityThreshold {
		return nil, emb, nil
	}

	best, err := d.pickBest(ctx, matches, cfg.SimilarityThreshold)
	if err != nil {
		return nil, nil, err
	}
	if best == nil {
		return nil, emb, nil
	}

	return &core.DuplicateCandidate{
		Candidate:  cand,
		Existing:   *best.memory,
		Similarity: best.score,
	}, emb, nil
}

type scoredMemory struct {
	memory *core.StoredMemory
	score  float64
}

// pickBest resolves the winning neighbor: among matches within tieWindow
// of the top score, the most recently updated memory wins. Matches whose
// backing memory has vanished from the store are skipped; the index can
// lag behind deletions.
func (d *Detector) pickBest(ctx context.Context, matches []vector.Match, threshold float64) (*scoredMemory, error) {
	leader := -1.0
	var best *scoredMemory

	for _, m := range matches { // ordered by descending score
		if m.Score < threshold {
			break
		}

		mem, err := d.memories.Get(ctx, m.ID)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("vector index entry has no backing memory", "memory_id", m.ID)
			continue
		}
		if err != nil {
			return nil, &core.StorageError{Op: "get", Err: err}
		}

		if leader < 0 {
			leader = m.Score
		}
		if leader-m.Score > tieWindow {
			break
		}
		if best == nil || mem.UpdatedAt.After(best.memory.UpdatedAt) {
			best = &scoredMemory{memory: mem, score: m.Score}
		}
	}
	return best, nil
}
