package normalize

import (
	"strconv"
	"strings"

	"github.com/sells-group/emigration-stats/internal/model"
)

// StatusField is the nested field that holds civil-status counts.
const StatusField = "status"

// StatusValueField receives a scalar found under StatusField when flat counts
// are folded into that record. A numeric suffix is added if it is taken.
const StatusValueField = "status_value"

// StatusFields lists the flat civil-status count columns folded under StatusField.
var StatusFields = []string{"single", "married", "widower", "widowed", "divorced", "separated", "live_in"}

var statusSet = func() map[string]bool {
	m := make(map[string]bool, len(StatusFields))
	for _, f := range StatusFields {
		m[f] = true
	}
	return m
}()

// statusName reports the canonical status field for key, matching
// case-insensitively after trimming.
func statusName(key string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(key))
	return name, statusSet[name]
}

// HasFlatStatus reports whether r carries any status field as a flat key.
func HasFlatStatus(r model.Record) bool {
	for k, v := range r {
		if _, ok := statusName(k); ok && !v.IsNested() {
			return true
		}
	}
	return false
}

// GroupStatus folds flat civil-status counts into a nested "status" record.
// The first record decides whether the dataset carries flat status fields.
// Records that already hold a nested status get their children coerced; when
// the dataset is flat-status, any flat fields they also carry fill in missing
// children. A scalar already under "status" in a record that gets folded is
// kept under StatusValueField. Input records are not modified.
func GroupStatus(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	if len(records) == 0 {
		return out
	}
	grouping := HasFlatStatus(records[0])
	for i, r := range records {
		out[i] = groupRecord(r, grouping)
	}
	return out
}

func groupRecord(r model.Record, grouping bool) model.Record {
	existing, ok := r[StatusField]
	hasNested := ok && existing.IsNested()
	if !hasNested && !grouping {
		return r.Clone()
	}

	out := make(model.Record, len(r))
	var status model.Record
	if hasNested {
		children := existing.Record()
		status = make(model.Record, len(children))
		for k, v := range children {
			status[k] = coerceChild(v)
		}
	}

	moved := make(model.Record)
	for _, k := range model.SortedKeys(r) {
		v := r[k]
		if k == StatusField && hasNested {
			continue
		}
		if name, isStatus := statusName(k); grouping && isStatus && !v.IsNested() {
			moved[name] = v
			continue
		}
		if v.IsNested() {
			out[k] = model.Nested(v.Record().Clone())
			continue
		}
		out[k] = v
	}

	if len(moved) > 0 {
		if status == nil {
			status = make(model.Record, len(moved))
		}
		for name, v := range moved {
			if hasNested {
				if _, kept := existing.Record()[name]; kept {
					continue
				}
			}
			status[name] = coerceFlat(v)
		}
	}
	if status != nil {
		if prev, ok := out[StatusField]; ok && !prev.IsNull() {
			out[freeKey(out, StatusValueField)] = prev
		}
		out[StatusField] = model.Nested(status)
	}
	return out
}

// freeKey returns base, or base_2, base_3, ... whichever r does not hold.
func freeKey(r model.Record, base string) string {
	key := base
	for n := 2; ; n++ {
		if _, taken := r[key]; !taken {
			return key
		}
		key = base + "_" + strconv.Itoa(n)
	}
}

// coerceChild normalizes a value already nested under status.
func coerceChild(v model.Value) model.Value {
	if v.IsNested() {
		return model.Nested(v.Record().Clone())
	}
	return model.Coerce(v)
}

// coerceFlat normalizes a flat status value; blanks count as zero.
func coerceFlat(v model.Value) model.Value {
	if v.IsBlank() {
		return model.Number(0)
	}
	return model.Coerce(v)
}
