// Package statsapi exposes the engine's read-only display surface over HTTP:
// a JSON snapshot for UI collaborators and the prometheus scrape endpoint.
package statsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/echolab-ai/echometer/pkg/latency"
)

// Server serves snapshots of one engine's state. It never mutates the engine.
type Server struct {
	engine  *latency.Engine
	quality func() string
	logger  *zap.Logger
	srv     *http.Server
}

func New(addr string, engine *latency.Engine, quality func() string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quality == nil {
		quality = func() string { return "unknown" }
	}

	s := &Server{engine: engine, quality: quality, logger: logger}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	return s
}

// Router builds the HTTP surface. Split out so tests can hit it directly.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
	})
	return r
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("stats server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("stats server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statsResponse struct {
	SessionID         string                `json:"session_id"`
	State             latency.State         `json:"state"`
	ConnectionQuality string                `json:"connection_quality"`
	Current           *latency.Measurement  `json:"current,omitempty"`
	CurrentBand       string                `json:"current_band,omitempty"`
	Statistics        latency.Statistics    `json:"statistics"`
	History           []latency.Measurement `json:"history"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		SessionID:         s.engine.SessionID(),
		State:             s.engine.CurrentState(),
		ConnectionQuality: s.quality(),
		Statistics:        s.engine.Snapshot(),
		History:           s.engine.History(),
	}
	if m, ok := s.engine.Current(); ok {
		resp.Current = &m
		resp.CurrentBand = s.engine.Config().QualityLabel(m.ValueMs)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
