// Package server exposes the classification service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/straja-ai/ulap/internal/auth"
	"github.com/straja-ai/ulap/internal/camera"
	"github.com/straja-ai/ulap/internal/config"
	"github.com/straja-ai/ulap/internal/events"
	"github.com/straja-ai/ulap/internal/service"
)

// Server is the Ulap HTTP API.
type Server struct {
	cfg     config.ServerConfig
	authz   *auth.Auth
	svc     *service.Service
	emitter *events.Emitter
	version string
	started time.Time

	router *chi.Mux
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Version string
	Emitter *events.Emitter
}

// New creates a new Ulap server with all routes registered.
func New(cfg config.ServerConfig, authz *auth.Auth, svc *service.Service, opts Options) *Server {
	s := &Server{
		cfg:     cfg,
		authz:   authz,
		svc:     svc,
		emitter: opts.Emitter,
		version: opts.Version,
		started: time.Now(),
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = 32 << 20
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "No such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireAPIKey(s.authz))

		r.Get("/categories", s.handleCategories)
		r.Post("/classify", s.handleClassify)

		r.Get("/camera", s.handleCameraStatus)
		r.Post("/camera/start", s.handleCameraStart)
		r.Post("/camera/stop", s.handleCameraStop)
		r.Post("/camera/capture", s.handleCameraCapture)
	})

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Addr until ctx is cancelled, then drains in-flight
// requests for at most the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout.Std(),
		ReadTimeout:       s.cfg.ReadTimeout.Std(),
		WriteTimeout:      s.cfg.WriteTimeout.Std(),
		IdleTimeout:       s.cfg.IdleTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "address", s.cfg.Addr, "auth", s.authz.Enabled())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	timeout := s.cfg.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status     string        `json:"status"`
	Version    string        `json:"version"`
	Uptime     string        `json:"uptime"`
	Categories int           `json:"categories"`
	Camera     camera.Status `json:"camera"`
	Events     *events.Stats `json:"events,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    s.version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Categories: s.svc.Registry().Size(),
		Camera:     s.svc.Camera().Status(),
	}
	if s.emitter != nil {
		st := s.emitter.Stats()
		resp.Events = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
