// Package schema infers column semantics from normalized records.
package schema

import "github.com/sells-group/emigration-stats/internal/model"

// Heuristics tunes column classification.
type Heuristics struct {
	// CategoryMaxRatio is the highest unique/total ratio still treated as a category.
	CategoryMaxRatio float64 `yaml:"category_max_ratio" mapstructure:"category_max_ratio"`
	// CategoryMaxUnique and CategoryMinSample form the small-set rule: fewer
	// than CategoryMaxUnique distinct values over at least CategoryMinSample values.
	CategoryMaxUnique int `yaml:"category_max_unique" mapstructure:"category_max_unique"`
	CategoryMinSample int `yaml:"category_min_sample" mapstructure:"category_min_sample"`
	YearMin           int `yaml:"year_min" mapstructure:"year_min"`
	YearMax           int `yaml:"year_max" mapstructure:"year_max"`
}

// DefaultHeuristics returns the stock thresholds.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		CategoryMaxRatio:  0.2,
		CategoryMaxUnique: 50,
		CategoryMinSample: 10,
		YearMin:           model.YearMin,
		YearMax:           model.YearMax,
	}
}

// orDefault fills zero fields from DefaultHeuristics so a partially set
// config still classifies sensibly.
func (h Heuristics) orDefault() Heuristics {
	d := DefaultHeuristics()
	if h.CategoryMaxRatio <= 0 {
		h.CategoryMaxRatio = d.CategoryMaxRatio
	}
	if h.CategoryMaxUnique <= 0 {
		h.CategoryMaxUnique = d.CategoryMaxUnique
	}
	if h.CategoryMinSample <= 0 {
		h.CategoryMinSample = d.CategoryMinSample
	}
	if h.YearMin == 0 && h.YearMax == 0 {
		h.YearMin, h.YearMax = d.YearMin, d.YearMax
	}
	return h
}

// MetadataColumns are storage bookkeeping keys never shown as columns.
var MetadataColumns = []string{"id", "_id", "createdAt", "updatedAt", "uploadedAt", "__v"}

var metadataSet = func() map[string]bool {
	m := make(map[string]bool, len(MetadataColumns))
	for _, c := range MetadataColumns {
		m[c] = true
	}
	return m
}()

// IsMetadata reports whether column is a storage bookkeeping key.
func IsMetadata(column string) bool {
	return metadataSet[column]
}
