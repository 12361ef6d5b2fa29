package schema

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/emigration-stats/internal/model"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan-2006",
	"January 2006",
}

var bareYearRe = regexp.MustCompile(`^\d{4}$`)

var boolTokens = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"1": true, "0": true,
}

// Classify infers the semantic type of a column sample with the default
// heuristics.
func Classify(values []model.Value) model.SemanticType {
	return ClassifyWith(values, DefaultHeuristics())
}

// ClassifyWith infers the semantic type of a column sample. Nulls and blank
// strings are ignored; an empty remainder is a string column.
func ClassifyWith(values []model.Value, h Heuristics) model.SemanticType {
	h = h.orDefault()

	sample := make([]model.Value, 0, len(values))
	for _, v := range values {
		if v.IsBlank() {
			continue
		}
		sample = append(sample, v)
	}
	if len(sample) == 0 {
		return model.TypeString
	}

	if nums, ok := numericSample(sample); ok {
		if allYears(nums, h) {
			return model.TypeYear
		}
		return model.TypeNumber
	}
	if allNested(sample) {
		return model.TypeNested
	}
	if isBoolean(sample) {
		return model.TypeBoolean
	}
	if isDateSample(sample) {
		return model.TypeDate
	}
	if isCategory(sample, h) {
		return model.TypeCategory
	}
	return model.TypeString
}

func numericSample(sample []model.Value) ([]float64, bool) {
	nums := make([]float64, 0, len(sample))
	for _, v := range sample {
		switch v.Kind() {
		case model.KindNumber, model.KindText:
			f, ok := v.AsFloat()
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, false
			}
			nums = append(nums, f)
		default:
			return nil, false
		}
	}
	return nums, true
}

func allYears(nums []float64, h Heuristics) bool {
	for _, f := range nums {
		if f != math.Trunc(f) || f < float64(h.YearMin) || f > float64(h.YearMax) {
			return false
		}
	}
	return true
}

func allNested(sample []model.Value) bool {
	for _, v := range sample {
		if !v.IsNested() {
			return false
		}
	}
	return true
}

func isBoolean(sample []model.Value) bool {
	distinct := make(map[string]bool, 2)
	for _, v := range sample {
		if v.IsNested() {
			return false
		}
		tok := strings.ToLower(strings.TrimSpace(v.String()))
		if !boolTokens[tok] {
			return false
		}
		distinct[tok] = true
		if len(distinct) > 2 {
			return false
		}
	}
	return true
}

func isDateSample(sample []model.Value) bool {
	for _, v := range sample {
		s, ok := v.Str()
		if !ok {
			return false
		}
		s = strings.TrimSpace(s)
		if bareYearRe.MatchString(s) || !parsesAsDate(s) {
			return false
		}
	}
	return true
}

func parsesAsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isCategory(sample []model.Value, h Heuristics) bool {
	unique := make(map[string]struct{}, len(sample))
	for _, v := range sample {
		unique[strings.TrimSpace(v.String())] = struct{}{}
	}
	n := len(sample)
	ratio := float64(len(unique)) / float64(n)
	if ratio <= h.CategoryMaxRatio {
		return true
	}
	return len(unique) < h.CategoryMaxUnique && n >= h.CategoryMinSample
}
