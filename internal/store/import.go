package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/model"
)

// BulkImporter is implemented by stores that can write many records in one
// round trip.
type BulkImporter interface {
	Import(ctx context.Context, collection string, records []model.RawRecord) (int64, error)
}

// ImportAll writes records into collection, using the store's bulk path when
// it has one and falling back to one Add per record.
func ImportAll(ctx context.Context, s Store, collection string, records []model.RawRecord) (int64, error) {
	if bi, ok := s.(BulkImporter); ok {
		return bi.Import(ctx, collection, records)
	}
	var n int64
	for i, r := range records {
		if _, err := s.Add(ctx, collection, r); err != nil {
			return n, eris.Wrapf(err, "store: import record %d", i)
		}
		n++
	}
	return n, nil
}

// Import writes records in a single transaction, replacing documents that
// share an ID.
func (s *SQLiteStore) Import(ctx context.Context, collection string, records []model.RawRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for i, r := range records {
		id, clean := prepareFields(r)
		fieldsJSON, err := json.Marshal(clean)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal fields")
		}
		at := importTime(now, i)
		if _, err := stmt.ExecContext(ctx, collection, id, string(fieldsJSON), at, at); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import %s/%s", collection, id)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

// importTime spaces imported rows a microsecond apart so List keeps file order.
func importTime(base time.Time, i int) time.Time {
	return base.Add(time.Duration(i) * time.Microsecond)
}
