package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// requesting user. Cross-tenant lookups collapse into this error so callers
// cannot distinguish "missing" from "someone else's".
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint (email, api_key) rejects
// a write.
var ErrDuplicate = errors.New("duplicate value")

// Store is the authoritative catalog backed by Postgres with pgvector.
// Chunk writes and the matching document update share one transaction, so a
// reader sees either the pre-ingestion or the post-ingestion state, never a
// partial chunk set.
type Store struct {
	pool     *pgxpool.Pool
	efSearch int

	annOnce    sync.Once
	annIndexed bool
}

// NewStore wraps an established pool. efSearch is the per-session HNSW
// candidate-list size applied to ANN queries.
func NewStore(pool *pgxpool.Pool, efSearch int) *Store {
	return &Store{pool: pool, efSearch: efSearch}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
