package schema

import (
	"sort"
	"strings"

	"github.com/sells-group/emigration-stats/internal/model"
)

// statusColumn is the nested column produced by status grouping.
const statusColumn = "status"

// Generate derives a schema from records with the default heuristics.
func Generate(records []model.Record) model.Schema {
	return GenerateWith(records, DefaultHeuristics())
}

// GenerateWith derives a schema from records. The result depends only on the
// set of records, not their order.
//
// Columns are the union of top-level keys, minus metadata keys and keys that
// hold a nested record anywhere. Only one column is ever tested for year-ness:
// "year" in any casing, or else the first column in sorted order. A confirmed
// year column moves to the front. When any record carries a nested status,
// "status" is appended as a nested column.
func GenerateWith(records []model.Record, h Heuristics) model.Schema {
	h = h.orDefault()
	out := model.EmptySchema()
	if len(records) == 0 {
		return out
	}

	out.YearMin, out.YearMax = h.YearMin, h.YearMax

	seen := make(map[string]bool)
	nested := make(map[string]bool)
	hasStatus := false
	for _, r := range records {
		for k, v := range r {
			if v.IsNested() {
				nested[k] = true
				if k == statusColumn {
					hasStatus = true
				}
				continue
			}
			seen[k] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		if IsMetadata(k) || nested[k] {
			continue
		}
		columns = append(columns, k)
	}
	sortColumns(columns)

	yearCol := yearCandidate(columns)
	if yearCol != "" {
		if ClassifyWith(columnValues(records, yearCol), h) == model.TypeYear {
			out.YearColumn = yearCol
			columns = moveToFront(columns, yearCol)
		}
	}

	for _, c := range columns {
		if c == out.YearColumn {
			out.Types[c] = model.TypeYear
			continue
		}
		t := ClassifyWith(columnValues(records, c), h)
		if t == model.TypeYear {
			t = model.TypeNumber
		}
		out.Types[c] = t
	}
	out.Columns = columns

	if hasStatus && !out.Has(statusColumn) {
		out.Columns = append(out.Columns, statusColumn)
		out.Types[statusColumn] = model.TypeNested
	}
	return out
}

// sortColumns orders names case-insensitively with an exact-string tie-break.
func sortColumns(cols []string) {
	sort.Slice(cols, func(i, j int) bool {
		a, b := strings.ToLower(cols[i]), strings.ToLower(cols[j])
		if a != b {
			return a < b
		}
		return cols[i] < cols[j]
	})
}

func yearCandidate(columns []string) string {
	for _, c := range columns {
		if strings.EqualFold(c, model.YearField) {
			return c
		}
	}
	if len(columns) > 0 {
		return columns[0]
	}
	return ""
}

func moveToFront(columns []string, col string) []string {
	out := make([]string, 0, len(columns))
	out = append(out, col)
	for _, c := range columns {
		if c != col {
			out = append(out, c)
		}
	}
	return out
}

// columnValues collects the non-null values of column across records.
func columnValues(records []model.Record, column string) []model.Value {
	vals := make([]model.Value, 0, len(records))
	for _, r := range records {
		v, ok := r[column]
		if !ok || v.IsNull() {
			continue
		}
		vals = append(vals, v)
	}
	return vals
}
