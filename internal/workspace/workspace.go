// Package workspace holds the three live record sources (uploaded file,
// edit buffer, store snapshot) and republishes the merged dataset whenever
// one of them changes.
package workspace

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/schema"
)

// Workspace recomputes the dataset from its current sources on every Set
// call. Readers get an immutable *dataset.Dataset and never block writers.
type Workspace struct {
	heuristics schema.Heuristics

	mu       sync.Mutex
	uploaded []model.RawRecord
	edited   []model.RawRecord
	synced   []model.RawRecord
	subs     map[int]chan *dataset.Dataset
	nextID   int

	current atomic.Pointer[dataset.Dataset]
}

// New returns an empty workspace classifying columns with h.
func New(h schema.Heuristics) *Workspace {
	w := &Workspace{
		heuristics: h,
		subs:       make(map[int]chan *dataset.Dataset),
	}
	w.current.Store(dataset.Empty())
	return w
}

// Dataset returns the latest dataset.
func (w *Workspace) Dataset() *dataset.Dataset {
	return w.current.Load()
}

// SetUploaded replaces the uploaded-file source. Pass nil to clear it.
func (w *Workspace) SetUploaded(records []model.RawRecord) *dataset.Dataset {
	return w.update(func() { w.uploaded = cloneRaw(records) })
}

// SetEdited replaces the edit buffer. Pass nil to clear it.
func (w *Workspace) SetEdited(records []model.RawRecord) *dataset.Dataset {
	return w.update(func() { w.edited = cloneRaw(records) })
}

// SetSynced replaces the store snapshot.
func (w *Workspace) SetSynced(records []model.RawRecord) *dataset.Dataset {
	return w.update(func() { w.synced = cloneRaw(records) })
}

// Sources returns copies of the three current sources.
func (w *Workspace) Sources() (uploaded, edited, synced []model.RawRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneRaw(w.uploaded), cloneRaw(w.edited), cloneRaw(w.synced)
}

// Subscribe registers a listener for new datasets. The channel holds at most
// one pending dataset; a newer one replaces an unread one. Call the returned
// func to unsubscribe.
func (w *Workspace) Subscribe() (<-chan *dataset.Dataset, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	ch := make(chan *dataset.Dataset, 1)
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if c, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(c)
			}
		})
	}
}

func (w *Workspace) update(set func()) *dataset.Dataset {
	w.mu.Lock()
	defer w.mu.Unlock()

	set()
	ds := dataset.BuildWith(w.heuristics, w.uploaded, w.edited, w.synced)
	w.current.Store(ds)
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- ds
	}

	zap.L().Debug("workspace: dataset rebuilt",
		zap.String("source", string(ds.Source)),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.Schema.Columns)),
	)
	return ds
}

// cloneRaw copies the slice and each top-level map so later caller writes
// cannot reach the held source.
func cloneRaw(records []model.RawRecord) []model.RawRecord {
	if records == nil {
		return nil
	}
	out := make([]model.RawRecord, len(records))
	for i, r := range records {
		cp := make(model.RawRecord, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
