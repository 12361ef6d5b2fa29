package model

import (
	"math"
	"strings"
)

// Default bounds for a plausible calendar year.
const (
	YearMin = 1900
	YearMax = 2100
)

// YearField is the canonical name of the field that orders a dataset.
const YearField = "year"

// RawRecord is an untyped row as handed over by an importer or a store
// snapshot. Values are strings, numbers, bools, nil or nested maps.
type RawRecord map[string]any

// Record is a normalized row.
type Record map[string]Value

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if v.kind == KindNested {
			out[k] = Nested(v.nested.Clone())
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports deep equality of two records.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Raw converts r back into a RawRecord of plain Go values.
func (r Record) Raw() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}

// Lookup resolves a dotted path ("status.single") through nested records.
func (r Record) Lookup(path string) (Value, bool) {
	if v, ok := r[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	cur := r
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if !v.IsNested() {
			return Value{}, false
		}
		cur = v.nested
	}
	return Value{}, false
}

// Flatten returns the leaves of r keyed by their dotted path.
func (r Record) Flatten() map[string]Value {
	out := make(map[string]Value)
	r.flattenInto("", out)
	return out
}

func (r Record) flattenInto(prefix string, out map[string]Value) {
	for k, v := range r {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if v.IsNested() {
			v.nested.flattenInto(key, out)
			continue
		}
		out[key] = v
	}
}

// Year returns the record's year when it is an integral number within
// [YearMin, YearMax].
func (r Record) Year() (int, bool) {
	return ResolveYear(r[YearField])
}

// ResolveYear reads v as a year within the default bounds.
func ResolveYear(v Value) (int, bool) {
	return ResolveYearIn(v, YearMin, YearMax)
}

// ResolveYearIn reads v as an integral year within [lo, hi]. Numeric text is
// accepted so that un-normalized values behave the same.
func ResolveYearIn(v Value, lo, hi int) (int, bool) {
	f, ok := v.AsFloat()
	if !ok || f != math.Floor(f) {
		return 0, false
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, false
	}
	return int(f), true
}
