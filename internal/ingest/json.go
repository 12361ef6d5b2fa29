package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/emigration-stats/internal/model"
)

// ReadJSON extracts records from a JSON document. path selects the record
// array (gjson syntax); a single object is read as one record. Scalars keep
// their literal text, nulls become empty strings and nested objects stay
// nested.
func ReadJSON(body []byte, path string) ([]model.RawRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("json: invalid document")
	}
	res := gjson.ParseBytes(body)
	if path != "" {
		res = res.Get(path)
		if !res.Exists() {
			return nil, eris.Errorf("json: path %q not found", path)
		}
	}

	if res.IsObject() {
		return []model.RawRecord{objectRecord(res)}, nil
	}
	if !res.IsArray() {
		return nil, eris.Errorf("json: expected an array of objects, got %s", res.Type)
	}

	var (
		out []model.RawRecord
		err error
		idx int
	)
	res.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			err = eris.Errorf("json: element %d is %s, not an object", idx, item.Type)
			return false
		}
		out = append(out, objectRecord(item))
		idx++
		return true
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.RawRecord{}
	}
	return out, nil
}

func objectRecord(obj gjson.Result) model.RawRecord {
	rec := model.RawRecord{}
	obj.ForEach(func(key, field gjson.Result) bool {
		rec[key.String()] = cellValue(field)
		return true
	})
	return rec
}

func cellValue(field gjson.Result) any {
	switch {
	case field.Type == gjson.Null:
		return ""
	case field.Type == gjson.String:
		return field.Str
	case field.IsObject():
		return objectRecord(field)
	default:
		return field.Raw
	}
}
