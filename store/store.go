// Package store provides the encrypted memory storage engine. The
// pipeline only issues write intents (add, update) and reads memories
// back for conflict resolution; encryption and key management are
// internal to this package.
package store

import (
	"context"
	"errors"

	"github.com/mnemolabs/mnemo/core"
)

// ErrNotFound is returned when a memory ID does not exist.
var ErrNotFound = errors.New("store: memory not found")

// Store is the memory storage engine interface.
type Store interface {
	// Add persists a new memory and returns its ID. An empty incoming ID
	// is assigned by the store.
	Add(ctx context.Context, mem core.StoredMemory) (string, error)

	// Update replaces the content of an existing memory and bumps its
	// update timestamp.
	Update(ctx context.Context, id string, content string) error

	// Get retrieves a memory by ID.
	Get(ctx context.Context, id string) (*core.StoredMemory, error)

	// List returns all memories of a class, newest first.
	List(ctx context.Context, class core.MemoryClass) ([]core.StoredMemory, error)

	// Close releases resources.
	Close() error
}
