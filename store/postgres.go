package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mnemolabs/mnemo/core"
)

// PostgresStore persists memories in PostgreSQL with content encrypted
// at rest. It is wire-compatible with SQLiteStore: same columns, same
// sealed-content format.
type PostgresStore struct {
	db  *sql.DB
	box *cipherbox
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	class TEXT NOT NULL,
	content BYTEA NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	key_id TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_class ON memories (class, updated_ts DESC);
`

// NewPostgresStore connects to the database at dsn and ensures its
// schema. masterKey encrypts content at rest; it must be at least 32
// bytes.
func NewPostgresStore(dsn string, masterKey []byte) (*PostgresStore, error) {
	box, err := newCipherbox(masterKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db, box: box}, nil
}

func (s *PostgresStore) Add(ctx context.Context, mem core.StoredMemory) (string, error) {
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	now := time.Now()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = now

	sealed, err := s.box.seal(mem.Class, []byte(mem.Content))
	if err != nil {
		return "", fmt.Errorf("seal content: %w", err)
	}
	tags, err := json.Marshal(mem.Tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, class, content, tags, key_id, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mem.ID, string(mem.Class), sealed, string(tags), keyID(mem.Class),
		mem.CreatedAt.UnixMilli(), mem.UpdatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return mem.ID, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, content string) error {
	// The class is needed to seal under the right subkey.
	var class string
	err := s.db.QueryRowContext(ctx, `SELECT class FROM memories WHERE id = $1`, id).Scan(&class)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup memory: %w", err)
	}

	sealed, err := s.box.seal(core.MemoryClass(class), []byte(content))
	if err != nil {
		return fmt.Errorf("seal content: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET content = $1, updated_ts = $2 WHERE id = $3`,
		sealed, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*core.StoredMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class, content, tags, key_id, created_ts, updated_ts
		FROM memories WHERE id = $1`, id)
	mem, err := s.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *PostgresStore) List(ctx context.Context, class core.MemoryClass) ([]core.StoredMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class, content, tags, key_id, created_ts, updated_ts
		FROM memories WHERE class = $1 ORDER BY updated_ts DESC`, string(class))
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []core.StoredMemory
	for rows.Next() {
		mem, err := s.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return memories, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) scanMemory(row rowScanner) (*core.StoredMemory, error) {
	var (
		mem       core.StoredMemory
		class     string
		sealed    []byte
		tagsJSON  string
		createdTS int64
		updatedTS int64
	)
	if err := row.Scan(&mem.ID, &class, &sealed, &tagsJSON, &mem.KeyID, &createdTS, &updatedTS); err != nil {
		return nil, err
	}

	mem.Class = core.MemoryClass(class)
	plaintext, err := s.box.open(mem.Class, sealed)
	if err != nil {
		return nil, fmt.Errorf("unseal memory %s: %w", mem.ID, err)
	}
	mem.Content = string(plaintext)

	if err := json.Unmarshal([]byte(tagsJSON), &mem.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for %s: %w", mem.ID, err)
	}
	mem.CreatedAt = time.UnixMilli(createdTS)
	mem.UpdatedAt = time.UnixMilli(updatedTS)
	return &mem, nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
