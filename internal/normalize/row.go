// Package normalize turns loosely typed rows into canonical records: trimmed
// keys and values, numeric coercion, dotted-key nesting and status grouping.
package normalize

import (
	"strings"

	"github.com/sells-group/emigration-stats/internal/model"
)

// Row converts one raw record into a normalized record. The input is never
// modified.
//
// Flat keys are applied first, then dotted keys, each group in sorted key
// order. A dotted path always wins over a flat scalar sitting on its route:
// the scalar is replaced by a nested record. When two raw keys trim to the
// same name, the one sorting last wins.
func Row(raw model.RawRecord) model.Record {
	out := make(model.Record, len(raw))
	if len(raw) == 0 {
		return out
	}

	var dotted []string
	for _, k := range model.SortedKeys(raw) {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if strings.Contains(key, ".") {
			dotted = append(dotted, k)
			continue
		}
		out[canonicalKey(key)] = leaf(raw[k])
	}

	for _, k := range dotted {
		segs := splitPath(k)
		switch len(segs) {
		case 0:
			continue
		case 1:
			out[canonicalKey(segs[0])] = leaf(raw[k])
		default:
			assignPath(out, segs, leaf(raw[k]))
		}
	}
	return out
}

// Rows normalizes every record in order.
func Rows(raws []model.RawRecord) []model.Record {
	out := make([]model.Record, len(raws))
	for i, r := range raws {
		out[i] = Row(r)
	}
	return out
}

// canonicalKey folds any casing of "year" to the canonical field name so the
// sort key is found regardless of header style.
func canonicalKey(key string) string {
	if strings.EqualFold(key, model.YearField) {
		return model.YearField
	}
	return key
}

func splitPath(key string) []string {
	parts := strings.Split(key, ".")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

func assignPath(dst model.Record, segs []string, v model.Value) {
	if top := canonicalKey(segs[0]); top != segs[0] {
		segs = append([]string{top}, segs[1:]...)
	}
	cur := dst
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok || !next.IsNested() {
			child := model.Record{}
			cur[seg] = model.Nested(child)
			cur = child
			continue
		}
		cur = next.Record()
	}
	cur[segs[len(segs)-1]] = v
}

// leaf canonicalizes a single raw value. Strings are trimmed and coerced,
// at any depth inside nested maps.
func leaf(x any) model.Value {
	v := model.Coerce(x)
	if v.IsNested() {
		return model.Nested(coerceTree(v.Record()))
	}
	return v
}

// coerceTree returns a copy of r with every scalar leaf coerced.
func coerceTree(r model.Record) model.Record {
	out := make(model.Record, len(r))
	for k, v := range r {
		if v.IsNested() {
			out[k] = model.Nested(coerceTree(v.Record()))
			continue
		}
		out[k] = model.Coerce(v)
	}
	return out
}
