package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection_id TEXT PRIMARY KEY,
	record JSONB NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Postgres keeps one row per collection in the documents table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres backend over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the documents table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresSchema)
	return err
}

func (p *Postgres) Fetch(ctx context.Context, collectionID string) (Document, error) {
	var record []byte
	var version int64
	err := p.pool.QueryRow(ctx, `SELECT record, version FROM documents WHERE collection_id = $1`, collectionID).Scan(&record, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{Revision: AbsentRevision}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("postgres fetch %s: %w", collectionID, err)
	}
	return Document{Record: record, Revision: strconv.FormatInt(version, 10)}, nil
}

func (p *Postgres) Put(ctx context.Context, collectionID string, record json.RawMessage, ifMatch string) (Document, error) {
	var (
		row     pgx.Row
		version int64
	)
	switch ifMatch {
	case AnyRevision:
		row = p.pool.QueryRow(ctx, `
INSERT INTO documents (collection_id, record)
VALUES ($1, $2)
ON CONFLICT (collection_id) DO UPDATE SET
	record = EXCLUDED.record,
	version = documents.version + 1,
	updated_at = now()
RETURNING version;`, collectionID, []byte(record))
	case AbsentRevision:
		row = p.pool.QueryRow(ctx, `
INSERT INTO documents (collection_id, record)
VALUES ($1, $2)
ON CONFLICT (collection_id) DO NOTHING
RETURNING version;`, collectionID, []byte(record))
	default:
		expected, err := strconv.ParseInt(ifMatch, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("postgres put %s: bad revision %q", collectionID, ifMatch)
		}
		row = p.pool.QueryRow(ctx, `
UPDATE documents
SET record = $2,
	version = version + 1,
	updated_at = now()
WHERE collection_id = $1 AND version = $3
RETURNING version;`, collectionID, []byte(record), expected)
	}

	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrConflict
		}
		return Document{}, fmt.Errorf("postgres put %s: %w", collectionID, err)
	}
	return Document{Record: record, Revision: strconv.FormatInt(version, 10)}, nil
}
