package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/emigration-stats/internal/ingest"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/store"
)

// ingestOptions reads parser options from query parameters: delimiter,
// encoding, sheet and json_path.
func ingestOptions(q url.Values) (ingest.Options, error) {
	var opts ingest.Options
	d, err := ingest.ParseDelimiter(q.Get("delimiter"))
	if err != nil {
		return opts, err
	}
	opts.CSV.Delimiter = d
	opts.CSV.Encoding = q.Get("encoding")
	opts.XLSX.SheetName = q.Get("sheet")
	opts.JSONPath = q.Get("json_path")
	return opts, nil
}

// handleUpload parses a multipart "file" part, or fetches {"url": ...}, and
// installs the rows as the uploaded source.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.uploads.Allow() {
		writeError(w, http.StatusTooManyRequests, "upload rate exceeded")
		return
	}
	opts, err := ingestOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	ctx := r.Context()

	var (
		records []model.RawRecord
		origin  string
	)
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		file, hdr, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "file part: %s", ferr.Error())
			return
		}
		defer file.Close() //nolint:errcheck

		origin = hdr.Filename
		format := ingest.Format(r.URL.Query().Get("format"))
		if format == "" {
			if format, err = ingest.DetectFormat(hdr.Filename); err != nil {
				writeError(w, http.StatusUnsupportedMediaType, "%s", err.Error())
				return
			}
		}
		records, err = ingest.Read(ctx, file, format, opts)
	case strings.HasPrefix(ct, "application/json"):
		var req struct {
			URL string `json:"url"`
		}
		if err := decodeJSON(r, &req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "body must be {\"url\": \"...\"}")
			return
		}
		if s.remote == nil {
			writeError(w, http.StatusNotImplemented, "remote fetch is disabled")
			return
		}
		origin = req.URL
		records, err = s.remote.Fetch(ctx, req.URL, opts)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}
	if err != nil {
		zap.L().Warn("api: upload rejected", zap.String("origin", origin), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "%s", err.Error())
		return
	}

	ds := s.ws.SetUploaded(records)
	zap.L().Info("api: upload installed", zap.String("origin", origin), zap.Int("rows", len(records)))
	writeJSON(w, http.StatusOK, summarize(ds))
}

func (s *Server) handleClearUpload(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarize(s.ws.SetUploaded(nil)))
}

func (s *Server) handleGetEdits(w http.ResponseWriter, _ *http.Request) {
	_, edited, _ := s.ws.Sources()
	if edited == nil {
		edited = []model.RawRecord{}
	}
	writeJSON(w, http.StatusOK, edited)
}

func (s *Server) handlePutEdits(w http.ResponseWriter, r *http.Request) {
	var records []model.RawRecord
	if err := decodeJSON(r, &records); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of records")
		return
	}
	writeJSON(w, http.StatusOK, summarize(s.ws.SetEdited(records)))
}

func (s *Server) handleClearEdits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarize(s.ws.SetEdited(nil)))
}

// handleCommitEdits writes the edit buffer to the store, clears it and
// reloads the synced source.
func (s *Server) handleCommitEdits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, edited, _ := s.ws.Sources()
	if len(edited) == 0 {
		writeError(w, http.StatusConflict, "edit buffer is empty")
		return
	}
	n, err := store.ImportAll(ctx, s.store, s.collection, edited)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.ws.SetEdited(nil)
	if err := s.Sync(ctx); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Written int64 `json:"written"`
		summary
	}{n, summarize(s.ws.Dataset())})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context(), s.collection)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), s.collection, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var fields model.RawRecord
	if err := decodeJSON(r, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	doc, err := s.store.Add(r.Context(), s.collection, fields)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.resync(r)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var fields model.RawRecord
	if err := decodeJSON(r, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if err := s.store.Update(r.Context(), s.collection, chi.URLParam(r, "id"), fields); err != nil {
		writeStoreError(w, err)
		return
	}
	s.resync(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), s.collection, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.resync(r)
	w.WriteHeader(http.StatusNoContent)
}

// resync reloads the synced source after a write. A failed reload is logged;
// the next feed poll corrects it.
func (s *Server) resync(r *http.Request) {
	if err := s.Sync(r.Context()); err != nil {
		zap.L().Warn("api: resync after write failed", zap.Error(err))
	}
}
