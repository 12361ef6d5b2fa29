package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emigration-stats/internal/model"
)

func TestGroupStatus_FoldsFlatFields(t *testing.T) {
	t.Parallel()

	records := Rows([]model.RawRecord{
		{"Year": "2000", "single": "16", "married": "0", "widower": "25"},
		{"Year": "2001", "single": "20", "married": "5", "widower": ""},
	})

	got := GroupStatus(records)
	require.Len(t, got, 2)

	for _, r := range got {
		for _, f := range StatusFields {
			assert.NotContains(t, r, f)
		}
	}

	s0 := got[0]["status"].Record()
	assert.True(t, s0["single"].Equal(model.Number(16)))
	assert.True(t, s0["married"].Equal(model.Number(0)))
	assert.True(t, s0["widower"].Equal(model.Number(25)))

	s1 := got[1]["status"].Record()
	assert.True(t, s1["widower"].Equal(model.Number(0)))
	assert.True(t, got[1]["year"].Equal(model.Number(2001)))
}

func TestGroupStatus_CaseInsensitiveNames(t *testing.T) {
	t.Parallel()

	got := GroupStatus([]model.Record{
		{"Single": model.Text("3"), "Live_In": model.Number(1), "year": model.Number(1999)},
	})

	assert.NotContains(t, got[0], "Single")
	assert.NotContains(t, got[0], "Live_In")
	s := got[0]["status"].Record()
	assert.True(t, s["single"].Equal(model.Number(3)))
	assert.True(t, s["live_in"].Equal(model.Number(1)))
}

func TestGroupStatus_ExistingNestedCoerced(t *testing.T) {
	t.Parallel()

	records := []model.Record{{
		"year":   model.Number(2005),
		"status": model.Nested(model.Record{"single": model.Text(" 7 "), "note": model.Text(" n/a ")}),
		"region": model.Text("Visayas"),
	}}

	got := GroupStatus(records)
	s := got[0]["status"].Record()
	assert.True(t, s["single"].Equal(model.Number(7)))
	assert.True(t, s["note"].Equal(model.Text("n/a")))
	assert.True(t, got[0]["region"].Equal(model.Text("Visayas")))

	// input untouched
	orig := records[0]["status"].Record()
	assert.True(t, orig["single"].Equal(model.Text(" 7 ")))
}

func TestGroupStatus_MixedShapesKeepsNestedChildren(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		{"year": model.Number(2000), "single": model.Number(1)},
		{
			"year":    model.Number(2001),
			"status":  model.Nested(model.Record{"single": model.Number(9)}),
			"single":  model.Number(100),
			"married": model.Number(2),
		},
	}

	got := GroupStatus(records)
	assert.NotContains(t, got[1], "single")
	assert.NotContains(t, got[1], "married")
	s := got[1]["status"].Record()
	assert.True(t, s["single"].Equal(model.Number(9)))
	assert.True(t, s["married"].Equal(model.Number(2)))
}

func TestGroupStatus_NoDetectionPassesThrough(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		{"year": model.Number(2000), "country": model.Text("Canada")},
		{"year": model.Number(2001), "single": model.Number(4)},
	}

	got := GroupStatus(records)
	assert.True(t, got[0].Equal(records[0]))
	assert.True(t, got[1].Equal(records[1]))
	assert.NotContains(t, got[1], "status")
}

func TestGroupStatus_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GroupStatus(nil))
	assert.Empty(t, GroupStatus([]model.Record{}))
}

func TestGroupStatus_ScalarStatusIsKept(t *testing.T) {
	t.Parallel()

	got := GroupStatus(Rows([]model.RawRecord{
		{"year": "2000", "single": "3", "status": "active"},
		{"year": "2001", "single": "4", "status": "closed", "status_value": "x"},
		{"year": "2002", "single": "5"},
	}))

	assert.True(t, got[0]["status"].Record()["single"].Equal(model.Number(3)))
	assert.True(t, got[0][StatusValueField].Equal(model.Text("active")))

	assert.True(t, got[1]["status_value"].Equal(model.Text("x")))
	assert.True(t, got[1]["status_value_2"].Equal(model.Text("closed")))

	assert.NotContains(t, got[2], StatusValueField)
	assert.Equal(t, got, GroupStatus(got), "grouping is idempotent")
}
