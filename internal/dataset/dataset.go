// Package dataset picks the authoritative record source, orders it by year and
// exposes schema-aware views over the result.
package dataset

import (
	"sort"

	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/normalize"
	"github.com/sells-group/emigration-stats/internal/schema"
)

// Source names the candidate a dataset was built from.
type Source string

// Candidate sources in priority order.
const (
	SourceUploaded Source = "uploaded"
	SourceEdited   Source = "edited"
	SourceSynced   Source = "synced"
	SourceNone     Source = "none"
)

// Dataset is an immutable, year-ordered record set with its inferred schema.
// Rebuild it instead of mutating it.
type Dataset struct {
	Records []model.Record `json:"records"`
	Schema  model.Schema   `json:"schema"`
	Source  Source         `json:"source"`
}

// Empty returns a dataset with no records.
func Empty() *Dataset {
	return &Dataset{Records: []model.Record{}, Schema: model.EmptySchema(), Source: SourceNone}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// pick returns the first non-empty candidate and its source.
func pick(uploaded, edited, synced []model.RawRecord) ([]model.RawRecord, Source) {
	switch {
	case len(uploaded) > 0:
		return uploaded, SourceUploaded
	case len(edited) > 0:
		return edited, SourceEdited
	case len(synced) > 0:
		return synced, SourceSynced
	default:
		return nil, SourceNone
	}
}

// Select returns the normalized, status-grouped and year-sorted records of the
// highest-priority non-empty candidate (uploaded, then edited, then synced).
// It returns an empty slice when all three are empty.
func Select(uploaded, edited, synced []model.RawRecord) []model.Record {
	raw, _ := pick(uploaded, edited, synced)
	records := prepare(raw)
	sortInPlace(records, model.YearMin, model.YearMax)
	return records
}

// Build selects the authoritative candidate and derives its schema with the
// default heuristics.
func Build(uploaded, edited, synced []model.RawRecord) *Dataset {
	return BuildWith(schema.DefaultHeuristics(), uploaded, edited, synced)
}

// BuildWith is Build with explicit classification heuristics.
func BuildWith(h schema.Heuristics, uploaded, edited, synced []model.RawRecord) *Dataset {
	raw, src := pick(uploaded, edited, synced)
	records := prepare(raw)
	sc := schema.GenerateWith(records, h)
	lo, hi := sc.YearBounds()
	sortInPlace(records, lo, hi)
	return &Dataset{Records: records, Schema: sc, Source: src}
}

// FromRecords wraps already normalized records, sorting a copy by year within
// the schema's year bounds.
func FromRecords(records []model.Record, h schema.Heuristics) *Dataset {
	sorted := make([]model.Record, len(records))
	copy(sorted, records)
	sc := schema.GenerateWith(sorted, h)
	lo, hi := sc.YearBounds()
	sortInPlace(sorted, lo, hi)
	return &Dataset{Records: sorted, Schema: sc, Source: SourceNone}
}

func prepare(raw []model.RawRecord) []model.Record {
	if len(raw) == 0 {
		return []model.Record{}
	}
	return normalize.GroupStatus(normalize.Rows(raw))
}

// SortByYear returns a copy of records ordered ascending by year. Records
// without a resolvable year go last; ties keep their original order.
func SortByYear(records []model.Record) []model.Record {
	return SortByYearIn(records, model.YearMin, model.YearMax)
}

// SortByYearIn is SortByYear with years resolved within [lo, hi].
func SortByYearIn(records []model.Record, lo, hi int) []model.Record {
	out := make([]model.Record, len(records))
	copy(out, records)
	sortInPlace(out, lo, hi)
	return out
}

func sortInPlace(records []model.Record, lo, hi int) {
	type keyed struct {
		year int
		ok   bool
	}
	keys := make([]keyed, len(records))
	idx := make([]int, len(records))
	for i, r := range records {
		y, ok := model.ResolveYearIn(r[model.YearField], lo, hi)
		keys[i] = keyed{y, ok}
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		return ka.ok && ka.year < kb.year
	})
	sorted := make([]model.Record, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}
