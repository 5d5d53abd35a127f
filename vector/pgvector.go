package vector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnemolabs/mnemo/core"
)

// PgIndex is a Postgres-backed vector index using the pgvector extension.
// Class partitioning is enforced with a WHERE clause on every query.
type PgIndex struct {
	db   *sql.DB
	dims int
}

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS memory_vectors (
	id TEXT PRIMARY KEY,
	class TEXT NOT NULL,
	embedding vector(%d) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_vectors_class ON memory_vectors (class);
`

// NewPgIndex opens a pgvector-backed index and ensures its schema.
func NewPgIndex(dsn string, dims int) (*PgIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(pgSchema, dims)); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure vector schema: %w", err)
	}
	return &PgIndex{db: db, dims: dims}, nil
}

// Close releases the underlying connection pool.
func (x *PgIndex) Close() error {
	return x.db.Close()
}

func (x *PgIndex) Upsert(ctx context.Context, id string, class core.MemoryClass, vector []float32) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (id, class, embedding) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET class = EXCLUDED.class, embedding = EXCLUDED.embedding`,
		id, string(class), pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

func (x *PgIndex) Search(ctx context.Context, vector []float32, class core.MemoryClass, k int) ([]Match, error) {
	// Cosine distance; similarity = 1 - distance.
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM memory_vectors
		WHERE class = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), string(class), k)
	if err != nil {
		return nil, fmt.Errorf("query class %s: %w", class, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

func (x *PgIndex) Delete(ctx context.Context, id string, class core.MemoryClass) error {
	_, err := x.db.ExecContext(ctx,
		`DELETE FROM memory_vectors WHERE id = $1 AND class = $2`, id, string(class))
	if err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	return nil
}

// Ensure PgIndex implements Index.
var _ Index = (*PgIndex)(nil)
