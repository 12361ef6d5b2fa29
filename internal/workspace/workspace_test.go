package workspace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/schema"
)

func TestWorkspace_StartsEmpty(t *testing.T) {
	t.Parallel()

	w := New(schema.DefaultHeuristics())
	ds := w.Dataset()
	require.NotNil(t, ds)
	assert.Equal(t, dataset.SourceNone, ds.Source)
	assert.Zero(t, ds.Len())
}

func TestWorkspace_PriorityIndependentOfOrder(t *testing.T) {
	t.Parallel()

	uploaded := []model.RawRecord{{"year": "2001", "src": "u"}}
	edited := []model.RawRecord{{"year": "2002", "src": "e"}}
	synced := []model.RawRecord{{"year": "2003", "src": "s"}}

	a := New(schema.DefaultHeuristics())
	a.SetUploaded(uploaded)
	a.SetEdited(edited)
	a.SetSynced(synced)

	b := New(schema.DefaultHeuristics())
	b.SetSynced(synced)
	b.SetEdited(edited)
	b.SetUploaded(uploaded)

	assert.Equal(t, dataset.SourceUploaded, a.Dataset().Source)
	assert.Equal(t, a.Dataset().Records, b.Dataset().Records)

	a.SetUploaded(nil)
	assert.Equal(t, dataset.SourceEdited, a.Dataset().Source)
	a.SetEdited(nil)
	assert.Equal(t, dataset.SourceSynced, a.Dataset().Source)
	assert.Equal(t, "s", a.Dataset().Records[0]["src"].String())
}

func TestWorkspace_SourcesAreCopied(t *testing.T) {
	t.Parallel()

	w := New(schema.DefaultHeuristics())
	in := []model.RawRecord{{"year": "2001"}}
	w.SetEdited(in)
	in[0]["year"] = "1066"

	_, edited, _ := w.Sources()
	assert.Equal(t, "2001", edited[0]["year"])
	edited[0]["year"] = "1066"
	_, again, _ := w.Sources()
	assert.Equal(t, "2001", again[0]["year"])
}

func TestWorkspace_SubscribeLatestWins(t *testing.T) {
	t.Parallel()

	w := New(schema.DefaultHeuristics())
	ch, cancel := w.Subscribe()
	defer cancel()

	w.SetSynced([]model.RawRecord{{"year": "2001"}})
	last := w.SetSynced([]model.RawRecord{{"year": "2001"}, {"year": "2002"}})

	got := <-ch
	assert.Same(t, last, got)
	select {
	case <-ch:
		t.Fatal("stale dataset still pending")
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestWorkspace_UsesHeuristics(t *testing.T) {
	t.Parallel()

	h := schema.DefaultHeuristics()
	h.YearMin, h.YearMax = 1950, 1960
	w := New(h)
	ds := w.SetSynced([]model.RawRecord{{"year": "2001", "n": "1"}})
	assert.Empty(t, ds.Schema.YearColumn)
	assert.Equal(t, model.TypeNumber, ds.Schema.Types["year"])
}

func TestWorkspace_ConcurrentSetters(t *testing.T) {
	t.Parallel()

	w := New(schema.DefaultHeuristics())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); w.SetUploaded([]model.RawRecord{{"year": "2001"}}) }()
		go func() { defer wg.Done(); w.SetEdited([]model.RawRecord{{"year": "2002"}}) }()
		go func() { defer wg.Done(); _ = w.Dataset().Len() }()
	}
	wg.Wait()
	assert.Equal(t, dataset.SourceUploaded, w.Dataset().Source)
}
