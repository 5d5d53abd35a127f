// Package vector provides the vector index consumed by the similarity
// detector. Indexes are partitioned per memory class; a search never
// returns entries from another class.
package vector

import (
	"context"

	"github.com/mnemolabs/mnemo/core"
)

// Match is one nearest-neighbor result.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"` // similarity 0-1, highest first
}

// Index is the vector index interface.
type Index interface {
	// Upsert stores or replaces the vector for a memory ID within its
	// class partition.
	Upsert(ctx context.Context, id string, class core.MemoryClass, vector []float32) error

	// Search returns up to k nearest neighbors within the class
	// partition, ordered by descending similarity.
	Search(ctx context.Context, vector []float32, class core.MemoryClass, k int) ([]Match, error)

	// Delete removes a memory's vector from its class partition.
	Delete(ctx context.Context, id string, class core.MemoryClass) error
}
