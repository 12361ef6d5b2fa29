package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/model"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// "memory" driver.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
	now  func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.docs[collection]))
	for _, d := range s.docs[collection] {
		out = append(out, copyDocument(d))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[collection][id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get %s/%s", collection, id)
	}
	cp := copyDocument(d)
	return &cp, nil
}

func (s *MemoryStore) Add(_ context.Context, collection string, fields model.RawRecord) (*Document, error) {
	id, clean := prepareFields(fields)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]Document)
		s.docs[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return nil, eris.Errorf("memory: document %s/%s already exists", collection, id)
	}
	d := Document{ID: id, Collection: collection, Fields: clean, CreatedAt: now, UpdatedAt: now}
	coll[id] = d
	cp := copyDocument(d)
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, fields model.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[collection][id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: update %s/%s", collection, id)
	}
	d.Fields = stripMetadata(fields)
	d.UpdatedAt = s.now()
	s.docs[collection][id] = d
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][id]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: delete %s/%s", collection, id)
	}
	delete(s.docs[collection], id)
	return nil
}

func copyDocument(d Document) Document {
	fields := make(model.RawRecord, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	return d
}
