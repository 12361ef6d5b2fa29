package model

// SemanticType is the inferred meaning of a column.
type SemanticType string

// Semantic types assigned by schema inference.
const (
	TypeNumber   SemanticType = "number"
	TypeYear     SemanticType = "year"
	TypeString   SemanticType = "string"
	TypeBoolean  SemanticType = "boolean"
	TypeCategory SemanticType = "category"
	TypeDate     SemanticType = "date"
	TypeNested   SemanticType = "nested"
)

// IsNumeric reports whether t holds numbers.
func (t SemanticType) IsNumeric() bool {
	return t == TypeNumber || t == TypeYear
}

// IsDiscrete reports whether t holds a small set of filterable values.
func (t SemanticType) IsDiscrete() bool {
	return t == TypeCategory || t == TypeBoolean
}

// Schema is the ordered column list and type map derived from a record set.
// YearMin and YearMax are the bounds the year column was confirmed with; zero
// means the defaults.
type Schema struct {
	Columns    []string                `json:"columns"`
	Types      map[string]SemanticType `json:"types"`
	YearColumn string                  `json:"yearColumn,omitempty"`
	YearMin    int                     `json:"yearMin,omitempty"`
	YearMax    int                     `json:"yearMax,omitempty"`
}

// EmptySchema returns a schema with no columns.
func EmptySchema() Schema {
	return Schema{Columns: []string{}, Types: map[string]SemanticType{}}
}

// TypeOf returns the semantic type of column and whether it is known.
func (s Schema) TypeOf(column string) (SemanticType, bool) {
	t, ok := s.Types[column]
	return t, ok
}

// YearBounds returns the year range the schema was generated with.
func (s Schema) YearBounds() (lo, hi int) {
	if s.YearMin == 0 && s.YearMax == 0 {
		return YearMin, YearMax
	}
	return s.YearMin, s.YearMax
}

// YearOf reads v as a year within the schema's bounds.
func (s Schema) YearOf(v Value) (int, bool) {
	lo, hi := s.YearBounds()
	return ResolveYearIn(v, lo, hi)
}

// Has reports whether column is part of the schema.
func (s Schema) Has(column string) bool {
	_, ok := s.Types[column]
	return ok
}
