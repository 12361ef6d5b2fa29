package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emigration-stats/internal/model"
)

func TestReadJSON_Array(t *testing.T) {
	body := []byte(`[
		{"year": 2001, "country": "Japan", "verified": true, "note": null},
		{"year": "2002", "status": {"single": 4, "married": "7"}}
	]`)
	recs, err := ReadJSON(body, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.RawRecord{"year": "2001", "country": "Japan", "verified": "true", "note": ""}, recs[0])
	assert.Equal(t, model.RawRecord{"single": "4", "married": "7"}, recs[1]["status"])
}

func TestReadJSON_Path(t *testing.T) {
	body := []byte(`{"meta": {"source": "agency"}, "data": {"rows": [{"year": 1999}]}}`)
	recs, err := ReadJSON(body, "data.rows")
	require.NoError(t, err)
	assert.Equal(t, []model.RawRecord{{"year": "1999"}}, recs)

	_, err = ReadJSON(body, "data.missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadJSON_SingleObject(t *testing.T) {
	recs, err := ReadJSON([]byte(`{"year": 2003}`), "")
	require.NoError(t, err)
	assert.Equal(t, []model.RawRecord{{"year": "2003"}}, recs)
}

func TestReadJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid", `[{"year":`, "invalid document"},
		{"scalar root", `42`, "expected an array"},
		{"mixed array", `[{"year": 1}, 2]`, "element 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON([]byte(tt.body), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadJSON_EmptyArray(t *testing.T) {
	recs, err := ReadJSON([]byte(`[]`), "")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}
