package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/db"
	"github.com/sells-group/emigration-stats/internal/model"
)

// PostgresStore implements Store using pgxpool with JSONB documents.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection_created ON documents(collection, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fields, created_at, updated_at FROM documents WHERE collection = $1 ORDER BY created_at, id`,
		collection,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", collection)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanPgDocument(rows, collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list iterate")
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, fields, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	d, err := scanPgDocument(row, collection)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s/%s", collection, id)
	}
	return d, err
}

func (s *PostgresStore) Add(ctx context.Context, collection string, fields model.RawRecord) (*Document, error) {
	id, clean := prepareFields(fields)
	now := time.Now().UTC()

	fieldsJSON, err := json.Marshal(clean)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, fields, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		collection, id, fieldsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert %s/%s", collection, id)
	}
	return &Document{ID: id, Collection: collection, Fields: clean, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields model.RawRecord) error {
	fieldsJSON, err := json.Marshal(stripMetadata(fields))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET fields = $1, updated_at = $2 WHERE collection = $3 AND id = $4`,
		fieldsJSON, time.Now().UTC(), collection, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s/%s", collection, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update %s/%s", collection, id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s/%s", collection, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete %s/%s", collection, id)
	}
	return nil
}

var documentUpsert = db.UpsertConfig{
	Table:        "documents",
	Columns:      []string{"collection", "id", "fields", "created_at", "updated_at"},
	ConflictKeys: []string{"collection", "id"},
	UpdateCols:   []string{"fields", "updated_at"},
}

// Import bulk-writes records into collection, replacing documents that share
// an ID. It returns the number of rows written.
func (s *PostgresStore) Import(ctx context.Context, collection string, records []model.RawRecord) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		id, clean := prepareFields(r)
		fieldsJSON, err := json.Marshal(clean)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal fields")
		}
		at := importTime(now, i)
		rows = append(rows, []any{collection, id, fieldsJSON, at, at})
	}
	n, err := db.BulkUpsert(ctx, s.pool, documentUpsert, rows)
	return n, eris.Wrapf(err, "postgres: import %s", collection)
}

func scanPgDocument(row pgx.Row, collection string) (*Document, error) {
	var d Document
	var fieldsJSON []byte
	if err := row.Scan(&d.ID, &fieldsJSON, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan document")
	}
	fields, err := decodeFields(fieldsJSON)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal %s/%s", collection, d.ID)
	}
	d.Collection = collection
	d.Fields = fields
	return &d, nil
}
