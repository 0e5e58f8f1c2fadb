// Package server exposes the persisted narratives and run records over a
// small read-only HTTP API, for dashboards that embed the narrative next to
// the charts it describes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/sink"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Server serves narratives and run records from the sink store.
type Server struct {
	cfg        Config
	log        *slog.Logger
	narratives *sink.Store
	router     chi.Router
	httpServer *http.Server
}

// New creates a server over the given narrative store.
func New(cfg Config, log *slog.Logger, narratives *sink.Store) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		narratives: narratives,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/narratives", s.handleListNarratives)
		r.Get("/narratives/{period}", s.handleGetNarrative)
		r.Get("/runs", s.handleListRuns)
	})

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) handleListNarratives(w http.ResponseWriter, r *http.Request) {
	narratives, err := s.narratives.ListNarratives(r.Context())
	if err != nil {
		s.internalError(w, "listing narratives", err)
		return
	}
	if narratives == nil {
		narratives = []sink.Narrative{}
	}
	writeJSON(w, http.StatusOK, narratives)
}

func (s *Server) handleGetNarrative(w http.ResponseWriter, r *http.Request) {
	period, err := facts.ParsePeriodKey(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.narratives.GetNarrative(r.Context(), period)
	if err != nil {
		s.internalError(w, "loading narrative", err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no narrative for period %s", period))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	runs, err := s.narratives.ListRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, "listing runs", err)
		return
	}
	if runs == nil {
		runs = []sink.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info("narrative server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
