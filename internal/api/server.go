// Package api serves scan results over a read-only HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/clusterscan/internal/catalog"
	gormdb "github.com/thebtf/clusterscan/internal/db/gorm"
	"github.com/thebtf/clusterscan/internal/events"
	"github.com/thebtf/clusterscan/internal/ledger"
)

// Paging limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Deps are the data sources the server exposes. Any of them may be nil, in
// which case the matching routes are not mounted. Progress defaults to the
// Store's progress table when nil.
type Deps struct {
	Store    *gormdb.Store
	Progress ledger.Lister
	Catalog  *catalog.Registry
	Registry *prometheus.Registry
	Events   *events.Broadcaster
}

// Server is the HTTP router plus its data sources.
type Server struct {
	router     *chi.Mux
	store      *gormdb.Store
	detections *gormdb.DetectionStore
	runs       *gormdb.RunStore
	progress   ledger.Lister
	catalog    *catalog.Registry
	registry   *prometheus.Registry
	events     *events.Broadcaster
	startTime  time.Time
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     deps.Store,
		progress:  deps.Progress,
		catalog:   deps.Catalog,
		registry:  deps.Registry,
		events:    deps.Events,
		startTime: time.Now(),
	}
	if deps.Store != nil {
		s.detections = gormdb.NewDetectionStore(deps.Store)
		s.runs = gormdb.NewRunStore(deps.Store)
		if s.progress == nil {
			s.progress = gormdb.NewProgressView(deps.Store)
		}
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if s.store != nil {
			r.Get("/detections", s.handleDetections)
			r.Get("/detections/{patchID}", s.handleDetectionsByPatch)
			r.Get("/runs", s.handleRuns)
			r.Get("/runs/{runID}", s.handleRun)
		}
		if s.progress != nil {
			r.Get("/progress", s.handleProgress)
		}
		if s.catalog != nil {
			r.Get("/catalog", s.handleCatalog)
			r.Get("/catalog/{name}", s.handleCatalogObject)
		}
		if s.events != nil {
			r.Handle("/events", s.events)
		}
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.events != nil {
		// Event streams never end on their own.
		srv.RegisterOnShutdown(func() { _ = s.events.Close() })
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// paging reads limit and offset, clamping limit to [1, MaxLimit].
func paging(r *http.Request) (limit, offset int) {
	limit = queryInt(r, "limit", DefaultLimit)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset = queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
