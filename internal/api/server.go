// Package api exposes the live dataset, its schema-aware views and the record
// store over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/emigration-stats/internal/auth"
	"github.com/sells-group/emigration-stats/internal/ingest"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/store"
	"github.com/sells-group/emigration-stats/internal/workspace"
)

// RoleHeader carries the caller's role. Browsers that cannot set headers
// (websocket handshakes) may pass ?role= instead.
const RoleHeader = "X-Role"

const defaultMaxUpload = 32 << 20

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins    []string
	UploadRPS      float64
	MaxUploadBytes int64
}

// Server wires the workspace and the store to HTTP handlers.
type Server struct {
	ws         *workspace.Workspace
	feed       *store.Feed
	store      store.Store
	collection string
	policy     *auth.Policy
	remote     *ingest.Remote
	opts       Options
	uploads    *rate.Limiter
	upgrader   websocket.Upgrader
}

// New builds a Server over the feed's collection and makes the feed the
// workspace's only source of synced records. remote may be nil, which
// disables upload by URL.
func New(ws *workspace.Workspace, feed *store.Feed, policy *auth.Policy, remote *ingest.Remote, opts Options) *Server {
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	limit, burst := rate.Inf, 1
	if opts.UploadRPS > 0 {
		limit = rate.Limit(opts.UploadRPS)
		if b := int(opts.UploadRPS); b > 1 {
			burst = b
		}
	}
	feed.OnChange(func(snap []model.RawRecord) { ws.SetSynced(snap) })
	return &Server{
		ws:         ws,
		feed:       feed,
		store:      feed.Store(),
		collection: feed.Collection(),
		policy:     policy,
		remote:     remote,
		opts:       opts,
		uploads:    rate.NewLimiter(limit, burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RoleHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withRole)
		r.Get("/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermView))
			r.Get("/dataset", s.handleDataset)
			r.Get("/schema", s.handleSchema)
			r.Get("/columns/{column}/values", s.handleValues)
			r.Get("/columns/{column}/range", s.handleRange)
			r.Get("/series", s.handleSeries)
			r.Get("/chart", s.handleChart)
			r.Get("/stream", s.handleStream)
			r.Get("/edits", s.handleGetEdits)
			r.Get("/records", s.handleListRecords)
			r.Get("/records/{id}", s.handleGetRecord)
		})

		r.With(s.require(auth.PermExport)).Get("/export", s.handleExport)
		r.With(s.require(auth.PermForecast)).Get("/forecast", s.handleForecast)

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermUpload))
			r.Post("/upload", s.handleUpload)
			r.Delete("/upload", s.handleClearUpload)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermEdit))
			r.Put("/edits", s.handlePutEdits)
			r.Delete("/edits", s.handleClearEdits)
			r.Post("/edits/commit", s.handleCommitEdits)
			r.Post("/records", s.handleAddRecord)
			r.Put("/records/{id}", s.handleUpdateRecord)
		})

		r.With(s.require(auth.PermDelete)).Delete("/records/{id}", s.handleDeleteRecord)
	})
	return r
}

// Sync refreshes the feed, which applies any change to the workspace before
// returning.
func (s *Server) Sync(ctx context.Context) error {
	_, err := s.feed.Refresh(ctx)
	return err
}

type roleKey struct{}

func (s *Server) withRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get(RoleHeader)
		if name == "" {
			name = r.URL.Query().Get("role")
		}
		role := s.policy.ParseRole(name)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
	})
}

// RoleFrom returns the role resolved for the request.
func RoleFrom(ctx context.Context) auth.Role {
	role, _ := ctx.Value(roleKey{}).(auth.Role)
	return role
}

func (s *Server) require(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFrom(r.Context())
			if !s.policy.Can(role, perm) {
				writeError(w, http.StatusForbidden, "role %q lacks permission %q", role, perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
