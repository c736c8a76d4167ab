// Package server exposes the slicing service over HTTP: model uploads,
// profile management, slice job submission and polling, artifact downloads,
// and health plus metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"slicerd/internal/config"
	"slicerd/internal/logging"
	"slicerd/internal/metrics"
	"slicerd/internal/slicejobs"
	"slicerd/internal/slicer"
	"slicerd/internal/storage"
	"slicerd/internal/store"
)

var validate = validator.New()

// Server hosts the HTTP API.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	storage   *storage.Service
	runner    *slicejobs.Runner
	slicer    slicer.Client
	logger    *slog.Logger
	startedAt time.Time

	httpServer *http.Server
}

// New wires the API server against its collaborators.
func New(cfg *config.Config, st *store.Store, svc *storage.Service, runner *slicejobs.Runner, client slicer.Client, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		storage:   svc,
		runner:    runner,
		slicer:    client,
		logger:    logging.NewComponentLogger(logger, "api"),
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Paths.APIBind,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can drive the
// handler stack without binding a socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observeRequests)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/models", func(r chi.Router) {
		r.Post("/", s.handleUploadModel)
		r.Get("/", s.handleListModels)
		r.Get("/{modelID}", s.handleGetModel)
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Post("/", s.handleCreateProfile)
		r.Get("/", s.handleListProfiles)
		r.Get("/{profileID}", s.handleGetProfile)
		r.Patch("/{profileID}", s.handleUpdateProfile)
		r.Delete("/{profileID}", s.handleDeleteProfile)
	})

	r.Route("/slice-jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{jobID}", s.handleGetJob)
		r.Get("/{jobID}/gcode", s.handleDownloadGCode)
		r.Get("/{jobID}/project.3mf", s.handleDownloadProject)
	})

	return r
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("api listening", logging.String("bind", s.httpServer.Addr))
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		elapsed := time.Since(started)
		metrics.ObserveHTTPRequest(r.Method, route, wrapped.Status(), elapsed)
		s.logger.Info("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", wrapped.Status()),
			logging.Duration("elapsed", elapsed),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "slicerd",
		"health":  "/health",
		"metrics": "/metrics",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	available := s.slicer.Available()
	version := ""
	if available {
		versionCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if v, err := s.slicer.Version(versionCtx); err == nil {
			version = v
		}
	}

	profiles, err := s.store.CountProfiles(r.Context())
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}

	writeJSON(w, http.StatusOK, healthView{
		Status:          "ok",
		SlicerAvailable: available,
		SlicerVersion:   version,
		ProfilesLoaded:  profiles,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	})
}

// parsePage reads limit/offset query parameters with the API defaults.
func parsePage(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil && parsed >= 1 && parsed <= 100 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}

func parsePositiveInt(raw string) (int, error) {
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("negative")
	}
	return value, nil
}
