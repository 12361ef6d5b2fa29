package dataset

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/sells-group/emigration-stats/internal/model"
)

// ChartType is a suggested visualization.
type ChartType string

// Chart types returned by SuggestChart.
const (
	ChartLine       ChartType = "line"
	ChartBar        ChartType = "bar"
	ChartScatter    ChartType = "scatter"
	ChartPie        ChartType = "pie"
	ChartHistogram  ChartType = "histogram"
	ChartStackedBar ChartType = "stacked_bar"
)

// Range is the numeric extent of a column.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// YearPoint aggregates one column for a single year.
type YearPoint struct {
	Year  int     `json:"year" csv:"year"`
	Sum   float64 `json:"sum" csv:"sum"`
	Count int     `json:"count" csv:"count"`
	Min   float64 `json:"min" csv:"min"`
	Max   float64 `json:"max" csv:"max"`
}

// Mean returns Sum/Count, or 0 for an empty point.
func (p YearPoint) Mean() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Sum / float64(p.Count)
}

// TypeOf returns the semantic type of column. Dotted paths under a nested
// column ("status.single") are reported as numbers.
func (d *Dataset) TypeOf(column string) (model.SemanticType, bool) {
	if d == nil {
		return "", false
	}
	if t, ok := d.Schema.TypeOf(column); ok {
		return t, true
	}
	head, _, found := strings.Cut(column, ".")
	if !found {
		return "", false
	}
	if t, ok := d.Schema.TypeOf(head); ok && t == model.TypeNested {
		return model.TypeNumber, true
	}
	return "", false
}

// UniqueValues returns the distinct trimmed values of a category or boolean
// column in natural order. Other column types yield nil.
func (d *Dataset) UniqueValues(column string) []string {
	t, ok := d.TypeOf(column)
	if !ok || !t.IsDiscrete() {
		return nil
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range d.Records {
		v, ok := r.Lookup(column)
		if !ok || v.IsBlank() {
			continue
		}
		s := strings.TrimSpace(v.String())
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out
}

// NumericRange returns the min and max of a number or year column. Columns of
// other types, or without any numeric value, yield the zero Range.
func (d *Dataset) NumericRange(column string) Range {
	t, ok := d.TypeOf(column)
	if !ok || !t.IsNumeric() {
		return Range{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range d.Records {
		v, ok := r.Lookup(column)
		if !ok {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if math.IsInf(lo, 1) {
		return Range{}
	}
	return Range{Min: lo, Max: hi}
}

// YearSeries aggregates valueColumn per year of the schema's year column, in
// ascending year order. valueColumn may be a dotted path into a nested record.
// Records with no resolvable year or no numeric value are skipped. Sums are
// accumulated in decimal so fractional inputs add exactly.
func (d *Dataset) YearSeries(valueColumn string) []YearPoint {
	if d == nil || d.Schema.YearColumn == "" {
		return nil
	}
	type acc struct {
		point YearPoint
		sum   decimal.Decimal
	}
	byYear := make(map[int]*acc)
	for _, r := range d.Records {
		year, ok := d.Schema.YearOf(r[d.Schema.YearColumn])
		if !ok {
			continue
		}
		v, ok := r.Lookup(valueColumn)
		if !ok {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			continue
		}
		a, ok := byYear[year]
		if !ok {
			byYear[year] = &acc{
				point: YearPoint{Year: year, Count: 1, Min: f, Max: f},
				sum:   decimal.NewFromFloat(f),
			}
			continue
		}
		a.sum = a.sum.Add(decimal.NewFromFloat(f))
		a.point.Count++
		a.point.Min = math.Min(a.point.Min, f)
		a.point.Max = math.Max(a.point.Max, f)
	}

	out := make([]YearPoint, 0, len(byYear))
	for _, a := range byYear {
		p := a.point
		p.Sum = a.sum.InexactFloat64()
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// SuggestChart picks a chart for an x column and an optional y column ("" for
// none) from their semantic types. Unknown combinations fall back to bar.
func (d *Dataset) SuggestChart(x, y string) ChartType {
	tx, ok := d.TypeOf(x)
	if !ok {
		return ChartBar
	}
	if y == "" {
		return suggestSingle(tx)
	}
	ty, ok := d.TypeOf(y)
	if !ok {
		return suggestSingle(tx)
	}
	return SuggestChartTypes(tx, ty)
}

// SuggestChartTypes is the lookup behind SuggestChart for a pair of types.
func SuggestChartTypes(x, y model.SemanticType) ChartType {
	switch {
	case (x == model.TypeYear || x == model.TypeDate) && y == model.TypeNumber:
		return ChartLine
	case x == model.TypeYear && y == model.TypeNested:
		return ChartStackedBar
	case (x == model.TypeCategory || x == model.TypeBoolean || x == model.TypeString) && y == model.TypeNumber:
		return ChartBar
	case x == model.TypeNumber && y == model.TypeNumber:
		return ChartScatter
	default:
		return ChartBar
	}
}

func suggestSingle(t model.SemanticType) ChartType {
	switch t {
	case model.TypeCategory, model.TypeBoolean:
		return ChartPie
	case model.TypeNumber:
		return ChartHistogram
	case model.TypeYear, model.TypeDate:
		return ChartLine
	default:
		return ChartBar
	}
}

// naturalLess compares strings treating digit runs as numbers, so "2" < "10".
// Letter runs compare case-insensitively; exact order breaks remaining ties.
func naturalLess(a, b string) bool {
	fallback := a < b
	for a != "" && b != "" {
		ca, ra := chunk(a)
		cb, rb := chunk(b)
		da, db := isDigits(ca), isDigits(cb)
		switch {
		case da && db:
			na, nb := strings.TrimLeft(ca, "0"), strings.TrimLeft(cb, "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
		case da != db:
			return da
		default:
			la, lb := strings.ToLower(ca), strings.ToLower(cb)
			if la != lb {
				return la < lb
			}
		}
		a, b = ra, rb
	}
	if a != "" || b != "" {
		return a == ""
	}
	return fallback
}

// chunk splits off the leading run of digits or non-digits.
func chunk(s string) (string, string) {
	digit := unicode.IsDigit(rune(s[0]))
	i := 1
	for i < len(s) && unicode.IsDigit(rune(s[i])) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigits(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}
