package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/auth"
	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/export"
	"github.com/sells-group/emigration-stats/internal/forecast"
	"github.com/sells-group/emigration-stats/internal/model"
)

// summary is the dataset header returned by write endpoints and the stream.
type summary struct {
	Source dataset.Source `json:"source"`
	Rows   int            `json:"rows"`
	Schema model.Schema   `json:"schema"`
}

func summarize(ds *dataset.Dataset) summary {
	return summary{Source: ds.Source, Rows: ds.Len(), Schema: ds.Schema}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	role := RoleFrom(r.Context())
	writeJSON(w, http.StatusOK, struct {
		Role        auth.Role         `json:"role"`
		Permissions []auth.Permission `json:"permissions"`
	}{role, s.policy.Permissions(role)})
}

func (s *Server) handleDataset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Dataset())
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Dataset().Schema)
}

// column resolves the {column} URL parameter, writing 404 when the dataset
// does not know it.
func (s *Server) column(w http.ResponseWriter, ds *dataset.Dataset, name string) (model.SemanticType, bool) {
	t, ok := ds.TypeOf(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown column %q", name)
	}
	return t, ok
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	ds := s.ws.Dataset()
	name := chi.URLParam(r, "column")
	t, ok := s.column(w, ds, name)
	if !ok {
		return
	}
	values := ds.UniqueValues(name)
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, struct {
		Column string             `json:"column"`
		Type   model.SemanticType `json:"type"`
		Values []string           `json:"values"`
	}{name, t, values})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	ds := s.ws.Dataset()
	name := chi.URLParam(r, "column")
	t, ok := s.column(w, ds, name)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Column string             `json:"column"`
		Type   model.SemanticType `json:"type"`
		dataset.Range
	}{name, t, ds.NumericRange(name)})
}

// series validates the ?value= column and returns its year series.
func (s *Server) series(w http.ResponseWriter, r *http.Request) (string, []dataset.YearPoint, bool) {
	ds := s.ws.Dataset()
	name := r.URL.Query().Get("value")
	if name == "" {
		writeError(w, http.StatusBadRequest, "value parameter is required")
		return "", nil, false
	}
	if _, ok := s.column(w, ds, name); !ok {
		return "", nil, false
	}
	if ds.Schema.YearColumn == "" {
		writeError(w, http.StatusUnprocessableEntity, "dataset has no year column")
		return "", nil, false
	}
	points := ds.YearSeries(name)
	if points == nil {
		points = []dataset.YearPoint{}
	}
	return name, points, true
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	name, points, ok := s.series(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", export.FormatCSV.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"-series.csv"))
		if err := export.WriteSeriesCSV(w, points); err != nil {
			writeError(w, http.StatusInternalServerError, "%s", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Value  string              `json:"value"`
		Points []dataset.YearPoint `json:"points"`
	}{name, points})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ds := s.ws.Dataset()
	q := r.URL.Query()
	x, y := q.Get("x"), q.Get("y")
	if x == "" {
		writeError(w, http.StatusBadRequest, "x parameter is required")
		return
	}
	if _, ok := s.column(w, ds, x); !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		X     string            `json:"x"`
		Y     string            `json:"y,omitempty"`
		Chart dataset.ChartType `json:"chart"`
	}{x, y, ds.SuggestChart(x, y)})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	_, points, ok := s.series(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	metric := forecast.Metric(q.Get("metric"))
	switch metric {
	case "":
		metric = forecast.MetricSum
	case forecast.MetricSum, forecast.MetricMean:
	default:
		writeError(w, http.StatusBadRequest, "unknown metric %q", metric)
		return
	}
	horizon, err := intParam(q.Get("horizon"), 5)
	if err != nil {
		writeError(w, http.StatusBadRequest, "horizon: %s", err.Error())
		return
	}
	window, err := intParam(q.Get("window"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "window: %s", err.Error())
		return
	}

	res, err := forecast.Project(points, metric, horizon)
	if err != nil {
		writeError(w, forecastStatus(err), "%s", err.Error())
		return
	}
	out := struct {
		forecast.Result
		Features *forecast.Features `json:"features,omitempty"`
	}{Result: res}
	if window > 0 {
		f, err := forecast.BuildFeatures(points, metric, window)
		if err != nil {
			writeError(w, forecastStatus(err), "%s", err.Error())
			return
		}
		out.Features = &f
	}
	writeJSON(w, http.StatusOK, out)
}

func forecastStatus(err error) int {
	if errors.Is(err, forecast.ErrInsufficientData) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.collection+"."+string(format)))
	if err := export.Write(w, s.ws.Dataset(), format); err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err.Error())
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Errorf("%q is not an integer", raw)
	}
	if n < 0 {
		return 0, eris.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}
