package model

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
	KindNested
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindNested:
		return "nested"
	default:
		return "null"
	}
}

// Value is a normalized field value: null, number, text, bool, or a nested record.
// The zero Value is null.
type Value struct {
	kind   Kind
	num    float64
	text   string
	flag   bool
	nested Record
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string as-is. Use Coerce for trimming and numeric detection.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Nested wraps a record.
func Nested(r Record) Value {
	if r == nil {
		r = Record{}
	}
	return Value{kind: KindNested, nested: r}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNested reports whether v holds a nested record.
func (v Value) IsNested() bool { return v.kind == KindNested }

// IsBlank reports whether v is null or whitespace-only text.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return strings.TrimSpace(v.text) == ""
	default:
		return false
	}
}

// Float returns the number held by v. ok is false for non-number values.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsFloat returns v as a number, parsing numeric text. ok is false when v
// cannot be read as a number.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		return ParseNumber(v.text)
	default:
		return 0, false
	}
}

// Str returns the text held by v. ok is false for non-text values.
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Record returns the nested record held by v, or nil.
func (v Value) Record() Record {
	if v.kind != KindNested {
		return nil
	}
	return v.nested
}

// String renders v for display, grouping and token comparison.
// Nested values render as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.num)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindNested:
		b, _ := json.Marshal(v.nested)
		return string(b)
	default:
		return ""
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	case KindNested:
		return v.nested.Equal(o.nested)
	default:
		return true
	}
}

// Interface converts v back to a plain Go value (float64, string, bool,
// map[string]any or nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.flag
	case KindNested:
		return map[string]any(v.nested.Raw())
	default:
		return nil
	}
}

// MarshalJSON encodes v as its natural JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.flag)
	case KindNested:
		return json.Marshal(v.nested)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value. Strings are kept verbatim; no numeric
// coercion happens here.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromInterface(raw)
	return nil
}

// FromInterface converts a plain Go value to a Value without coercing
// strings. Unknown types are rendered as text.
func FromInterface(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return Text(t.String())
	case map[string]any:
		return Nested(fromMap(t))
	case RawRecord:
		return Nested(fromMap(t))
	case Record:
		return Nested(t.Clone())
	}
	if f, ok := toFloat(x); ok {
		return Number(f)
	}
	b, err := json.Marshal(x)
	if err != nil {
		return Null()
	}
	return Text(string(b))
}

func fromMap(m map[string]any) Record {
	out := make(Record, len(m))
	for k, x := range m {
		out[k] = FromInterface(x)
	}
	return out
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

var (
	plainNumberRe   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	groupedNumberRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)
)

// ParseNumber parses s as a decimal number after trimming whitespace.
// Thousands separators are accepted only in well-formed groups ("1,234.5").
// Partial parses, hex, Inf and NaN are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	switch {
	case plainNumberRe.MatchString(s):
	case groupedNumberRe.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Coerce turns a raw scalar into its canonical Value: strings are trimmed and
// become numbers when they parse fully; other scalars keep their kind.
func Coerce(x any) Value {
	switch t := x.(type) {
	case string:
		return CoerceText(t)
	case Value:
		if s, ok := t.Str(); ok {
			return CoerceText(s)
		}
		return t
	}
	return FromInterface(x)
}

// CoerceText trims s and returns a Number when it parses fully, else Text.
func CoerceText(s string) Value {
	s = strings.TrimSpace(s)
	if f, ok := ParseNumber(s); ok {
		return Number(f)
	}
	return Text(s)
}

// FormatNumber renders f without trailing zeros; integral values print as integers.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
