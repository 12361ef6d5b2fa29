package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/emigration-stats/internal/model"
)

// ErrNotFound is returned when a document does not exist in its collection.
var ErrNotFound = errors.New("store: document not found")

// Metadata keys injected into every listed record.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is one stored record. Fields never contain the metadata keys.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Fields     model.RawRecord `json:"fields"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Raw returns the document's fields with id, createdAt and updatedAt injected.
func (d Document) Raw() model.RawRecord {
	out := make(model.RawRecord, len(d.Fields)+3)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[FieldID] = d.ID
	out[FieldCreatedAt] = d.CreatedAt.UTC().Format(time.RFC3339)
	out[FieldUpdatedAt] = d.UpdatedAt.UTC().Format(time.RFC3339)
	return out
}

// Snapshot converts documents to raw records ready for the dataset pipeline.
func Snapshot(docs []Document) []model.RawRecord {
	out := make([]model.RawRecord, len(docs))
	for i, d := range docs {
		out[i] = d.Raw()
	}
	return out
}

// Store persists records as JSON documents keyed by (collection, id).
type Store interface {
	// List returns every document in collection ordered by creation time.
	List(ctx context.Context, collection string) ([]Document, error)
	// Get returns one document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Add stores fields as a new document. An "id" field, when it is a
	// non-empty string, becomes the document ID; otherwise one is generated.
	Add(ctx context.Context, collection string, fields model.RawRecord) (*Document, error)
	// Update replaces the fields of an existing document.
	Update(ctx context.Context, collection, id string, fields model.RawRecord) error
	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// prepareFields splits a caller record into an ID and the fields to persist.
// Metadata keys are stripped; an empty ID is replaced by a new UUID.
func prepareFields(fields model.RawRecord) (string, model.RawRecord) {
	id, _ := fields[FieldID].(string)
	if id == "" {
		id = uuid.New().String()
	}
	return id, stripMetadata(fields)
}

func stripMetadata(fields model.RawRecord) model.RawRecord {
	out := make(model.RawRecord, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		if val, ok := v.(model.Value); ok {
			v = val.Interface()
		}
		out[k] = v
	}
	return out
}
