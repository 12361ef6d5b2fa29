package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emigration-stats/internal/auth"
	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/ingest"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/schema"
	"github.com/sells-group/emigration-stats/internal/store"
	"github.com/sells-group/emigration-stats/internal/workspace"
)

type harness struct {
	ws    *workspace.Workspace
	store *store.MemoryStore
	feed  *store.Feed
	srv   *Server
	http  *httptest.Server
}

func newHarness(t *testing.T, opts Options, remote *ingest.Remote) *harness {
	t.Helper()
	h := &harness{
		ws:    workspace.New(schema.DefaultHeuristics()),
		store: store.NewMemory(),
	}
	h.feed = store.NewFeed(h.store, "emigrants", 0)
	h.srv = New(h.ws, h.feed, auth.DefaultPolicy(), remote, opts)
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, role string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.http.URL+path, body)
	require.NoError(t, err)
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func seed() []model.RawRecord {
	return []model.RawRecord{
		{"year": "2000", "region": "North", "single": "3", "married": "1"},
		{"year": "2001", "region": "South", "single": "5", "married": "2"},
		{"year": "2002", "region": "North", "single": "7", "married": "3"},
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	resp := h.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestMe(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	got := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/me", "", nil, ""))
	assert.Equal(t, "viewer", got["role"])

	got = decode[map[string]any](t, h.do(t, http.MethodGet, "/api/me?role=editor", "", nil, ""))
	assert.Equal(t, "editor", got["role"])

	got = decode[map[string]any](t, h.do(t, http.MethodGet, "/api/me", "ADMIN", nil, ""))
	assert.Equal(t, "admin", got["role"])
	assert.Len(t, got["permissions"], len(auth.AllPermissions))
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	tests := []struct {
		method string
		path   string
		role   string
		want   int
	}{
		{http.MethodGet, "/api/dataset", "viewer", http.StatusOK},
		{http.MethodPost, "/api/records", "viewer", http.StatusForbidden},
		{http.MethodDelete, "/api/records/x", "editor", http.StatusForbidden},
		{http.MethodDelete, "/api/records/x", "admin", http.StatusNotFound},
		{http.MethodGet, "/api/forecast?value=n", "viewer", http.StatusForbidden},
		{http.MethodPost, "/api/upload", "viewer", http.StatusForbidden},
		{http.MethodPut, "/api/edits", "viewer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" as "+tt.role, func(t *testing.T) {
			resp := h.do(t, tt.method, tt.path, tt.role, nil, "")
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestDatasetAndSchema(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	ds := decode[dataset.Dataset](t, h.do(t, http.MethodGet, "/api/dataset", "", nil, ""))
	assert.Equal(t, dataset.SourceSynced, ds.Source)
	assert.Len(t, ds.Records, 3)

	sc := decode[model.Schema](t, h.do(t, http.MethodGet, "/api/schema", "", nil, ""))
	assert.Equal(t, "year", sc.YearColumn)
	assert.Equal(t, []string{"year", "region", "status"}, sc.Columns)
	assert.Equal(t, model.TypeNested, sc.Types["status"])
}

func TestColumnViews(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	var raws []model.RawRecord
	for i := 0; i < 10; i++ {
		region := "North"
		if i%2 == 1 {
			region = "South"
		}
		raws = append(raws, model.RawRecord{
			"year":   strconv.Itoa(2000 + i),
			"region": region,
			"single": strconv.Itoa(i + 1),
		})
	}
	h.ws.SetSynced(raws)

	vals := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/columns/region/values", "", nil, ""))
	assert.Equal(t, "category", vals["type"])
	assert.Equal(t, []any{"North", "South"}, vals["values"])

	rng := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/columns/status.single/range", "", nil, ""))
	assert.Equal(t, "number", rng["type"])
	assert.Equal(t, float64(1), rng["min"])
	assert.Equal(t, float64(10), rng["max"])

	year := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/columns/year/values", "", nil, ""))
	assert.Equal(t, []any{}, year["values"])

	resp := h.do(t, http.MethodGet, "/api/columns/nope/values", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSeries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	got := decode[struct {
		Points []dataset.YearPoint `json:"points"`
	}](t, h.do(t, http.MethodGet, "/api/series?value=status.married", "", nil, ""))
	require.Len(t, got.Points, 3)
	assert.Equal(t, dataset.YearPoint{Year: 2001, Sum: 2, Count: 1, Min: 2, Max: 2}, got.Points[1])

	resp := h.do(t, http.MethodGet, "/api/series?value=status.married&format=csv", "", nil, "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "status.married-series.csv")
	assert.True(t, strings.HasPrefix(string(body), "year,sum,count,min,max\n2000,1,1,1,1\n"))

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/series", "", nil, "").StatusCode)
}

func TestSeries_NoYearColumn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced([]model.RawRecord{{"name": "a", "n": "1"}})
	resp := h.do(t, http.MethodGet, "/api/series?value=n", "", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestChart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	got := decode[map[string]string](t, h.do(t, http.MethodGet, "/api/chart?x=year&y=status", "", nil, ""))
	assert.Equal(t, "stacked_bar", got["chart"])
	got = decode[map[string]string](t, h.do(t, http.MethodGet, "/api/chart?x=year&y=status.single", "", nil, ""))
	assert.Equal(t, "line", got["chart"])
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/chart", "", nil, "").StatusCode)
}

func TestForecast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	resp := h.do(t, http.MethodGet, "/api/forecast?value=status.single&horizon=2&window=1", "editor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Points []struct {
			Year      int     `json:"year"`
			Value     float64 `json:"value"`
			Projected bool    `json:"projected"`
		} `json:"points"`
		Features *struct {
			Samples []any `json:"samples"`
		} `json:"features"`
	}](t, resp)
	require.Len(t, got.Points, 5)
	assert.Equal(t, 2004, got.Points[4].Year)
	assert.InDelta(t, 11, got.Points[4].Value, 1e-6)
	assert.True(t, got.Points[4].Projected)
	require.NotNil(t, got.Features)
	assert.Len(t, got.Features.Samples, 2)

	bad := h.do(t, http.MethodGet, "/api/forecast?value=status.single&metric=median", "admin", nil, "")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	neg := h.do(t, http.MethodGet, "/api/forecast?value=status.single&horizon=-1", "admin", nil, "")
	assert.Equal(t, http.StatusBadRequest, neg.StatusCode)
	huge := h.do(t, http.MethodGet, "/api/forecast?value=status.single&horizon=1099511627776", "admin", nil, "")
	assert.Equal(t, http.StatusBadRequest, huge.StatusCode)
	over := h.do(t, http.MethodGet, "/api/forecast?value=status.single&horizon=101", "admin", nil, "")
	assert.Equal(t, http.StatusBadRequest, over.StatusCode)
	short := h.do(t, http.MethodGet, "/api/forecast?value=status.single&window=5", "admin", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, short.StatusCode)
}

func TestExport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	resp := h.do(t, http.MethodGet, "/api/export", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "emigrants.csv")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "year,region,status.married,status.single\n"))

	xl := h.do(t, http.MethodGet, "/api/export?format=xlsx", "", nil, "")
	assert.Contains(t, xl.Header.Get("Content-Type"), "spreadsheetml")
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/export?format=pdf", "", nil, "").StatusCode)
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_Multipart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	body, ct := multipartBody(t, "upload.csv", "year;count\n1999;4\n1998;2\n")
	resp := h.do(t, http.MethodPost, "/api/upload?delimiter=%3B", "editor", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "uploaded", got["source"])
	assert.Equal(t, float64(2), got["rows"])

	ds := h.ws.Dataset()
	assert.Equal(t, 1998, mustYear(t, ds.Records[0]))

	resp = h.do(t, http.MethodDelete, "/api/upload", "editor", nil, "")
	assert.Equal(t, "synced", decode[map[string]any](t, resp)["source"])
}

func mustYear(t *testing.T, r model.Record) int {
	t.Helper()
	y, ok := r.Year()
	require.True(t, ok)
	return y
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)

	body, ct := multipartBody(t, "upload.pdf", "%PDF")
	assert.Equal(t, http.StatusUnsupportedMediaType, h.do(t, http.MethodPost, "/api/upload", "admin", body, ct).StatusCode)

	body, ct = multipartBody(t, "upload.json", "{not json")
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, http.MethodPost, "/api/upload", "admin", body, ct).StatusCode)

	resp := h.do(t, http.MethodPost, "/api/upload", "admin", strings.NewReader("year\n2000\n"), "text/csv")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/upload", "admin", strings.NewReader(`{"url":"http://x/a.csv"}`), "application/json")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	body, ct = multipartBody(t, "a.csv", "year\n2000\n")
	resp = h.do(t, http.MethodPost, "/api/upload?delimiter=ab", "admin", body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_RateLimited(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{UploadRPS: 0.001}, nil)
	body, ct := multipartBody(t, "a.csv", "year\n2000\n")
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/upload", "admin", body, ct).StatusCode)

	body, ct = multipartBody(t, "a.csv", "year\n2000\n")
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodPost, "/api/upload", "admin", body, ct).StatusCode)
}

func TestUpload_RemoteURL(t *testing.T) {
	t.Parallel()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"year":"2010","n":"1"},{"year":"2011","n":"2"}]}`))
	}))
	defer files.Close()

	h := newHarness(t, Options{}, ingest.NewRemote(ingest.RemoteOptions{HostRPS: 100}))
	payload := `{"url":"` + files.URL + `/export.json"}`
	resp := h.do(t, http.MethodPost, "/api/upload?json_path=data", "admin", strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, h.ws.Dataset().Len())
}

func TestEdits_Commit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	edits := `[{"year":"2003","region":"East"},{"year":"2002","region":"West"}]`

	resp := h.do(t, http.MethodPut, "/api/edits", "editor", strings.NewReader(edits), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "edited", decode[map[string]any](t, resp)["source"])

	got := decode[[]map[string]any](t, h.do(t, http.MethodGet, "/api/edits", "", nil, ""))
	assert.Len(t, got, 2)

	resp = h.do(t, http.MethodPost, "/api/edits/commit", "editor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	commit := decode[map[string]any](t, resp)
	assert.Equal(t, float64(2), commit["written"])
	assert.Equal(t, "synced", commit["source"])

	docs, err := h.store.List(context.Background(), "emigrants")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	resp = h.do(t, http.MethodPost, "/api/edits/commit", "editor", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPut, "/api/edits", "editor", strings.NewReader("{}"), "application/json").StatusCode)
}

func TestRecords_CRUD(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)

	resp := h.do(t, http.MethodPost, "/api/records", "editor", strings.NewReader(`{"year":"2005","region":"North"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decode[store.Document](t, resp)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, 1, h.ws.Dataset().Len(), "write resyncs the workspace")

	got := decode[store.Document](t, h.do(t, http.MethodGet, "/api/records/"+doc.ID, "", nil, ""))
	assert.Equal(t, "North", got.Fields["region"])

	resp = h.do(t, http.MethodPut, "/api/records/"+doc.ID, "editor", strings.NewReader(`{"year":"2005","region":"South"}`), "application/json")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "South", h.ws.Dataset().Records[0]["region"].String())

	list := decode[[]store.Document](t, h.do(t, http.MethodGet, "/api/records", "", nil, ""))
	assert.Len(t, list, 1)

	resp = h.do(t, http.MethodDelete, "/api/records/"+doc.ID, "admin", nil, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, h.ws.Dataset().Len())

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/records/"+doc.ID, "", nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPut, "/api/records/missing", "editor", strings.NewReader(`{}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/records", "editor", strings.NewReader(`[1]`), "application/json").StatusCode)
}

func TestSync(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	for _, r := range seed() {
		_, err := h.store.Add(context.Background(), "emigrants", r)
		require.NoError(t, err)
	}
	require.NoError(t, h.srv.Sync(context.Background()))
	assert.Equal(t, 3, h.ws.Dataset().Len())
	assert.False(t, h.ws.Dataset().Schema.Has("id"), "metadata keys are not columns")
}

func TestSync_FeedDrivesWorkspace(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	ctx := context.Background()
	_, err := h.store.Add(ctx, "emigrants", seed()[0])
	require.NoError(t, err)
	_, err = h.feed.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ws.Dataset().Len(), "a poll updates the workspace")

	resp := h.do(t, http.MethodPost, "/api/records", "editor", strings.NewReader(`{"year":"2001"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, h.ws.Dataset().Len())

	changed, err := h.feed.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "the write already published the current snapshot")
	assert.Equal(t, 2, h.ws.Dataset().Len())
}

func TestStream(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{}, nil)
	h.ws.SetSynced(seed())

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/stream?role=viewer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	var first streamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "dataset", first.Type)
	assert.Equal(t, 3, first.Dataset.Len())

	h.ws.SetUploaded([]model.RawRecord{{"year": "1990"}})

	var next streamMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, dataset.SourceUploaded, next.Dataset.Source)
	assert.Equal(t, 1, next.Dataset.Len())
}
