package vector

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemolabs/mnemo/core"
)

// ChromemIndex is an embedded, pure-Go vector index backed by chromem-go.
// Each memory class gets its own collection, which enforces the class
// isolation invariant at the storage layer.
type ChromemIndex struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[core.MemoryClass]*chromem.Collection
}

// NewChromemIndex creates an in-memory chromem index.
func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[core.MemoryClass]*chromem.Collection),
	}
}

// NewPersistentChromemIndex creates a chromem index persisted under dir.
func NewPersistentChromemIndex(dir string, compress bool) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open persistent vector db: %w", err)
	}
	return &ChromemIndex{
		db:          db,
		collections: make(map[core.MemoryClass]*chromem.Collection),
	}, nil
}

func (x *ChromemIndex) collection(class core.MemoryClass) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[class]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[class]; ok {
		return col, nil
	}

	name := fmt.Sprintf("class_%s", class)
	col, err := x.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	x.collections[class] = col
	return col, nil
}

func (x *ChromemIndex) Upsert(ctx context.Context, id string, class core.MemoryClass, vector []float32) error {
	col, err := x.collection(class)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Content:   id, // content lives in the store; the index only needs the ID
		Embedding: vector,
		Metadata:  map[string]string{"class": string(class)},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

func (x *ChromemIndex) Search(ctx context.Context, vector []float32, class core.MemoryClass, k int) ([]Match, error) {
	col, err := x.collection(class)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than documents.
	if count := col.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query class %s: %w", class, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

func (x *ChromemIndex) Delete(ctx context.Context, id string, class core.MemoryClass) error {
	col, err := x.collection(class)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	return nil
}

// Ensure ChromemIndex implements Index.
var _ Index = (*ChromemIndex)(nil)
