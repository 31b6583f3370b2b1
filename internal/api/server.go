// Package api provides the HTTP API server for Watchtower.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quantumlife/watchtower/internal/monitor"
	"github.com/quantumlife/watchtower/internal/scheduler"
	"github.com/quantumlife/watchtower/internal/storage"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	wsHub      *WebSocketHub

	engine    *monitor.Engine
	scheduler *scheduler.Scheduler

	monitorStore *storage.MonitorStore
	stateStore   *storage.StateStore
	alertStore   *storage.AlertStore
}

// Config for the server
type Config struct {
	Port      int
	DB        *storage.DB
	Engine    *monitor.Engine
	Scheduler *scheduler.Scheduler
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		engine:       cfg.Engine,
		scheduler:    cfg.Scheduler,
		monitorStore: storage.NewMonitorStore(cfg.DB),
		stateStore:   storage.NewStateStore(cfg.DB),
		alertStore:   storage.NewAlertStore(cfg.DB),
		wsHub:        NewWebSocketHub(),
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Monitors
		r.Get("/monitors", s.handleListMonitors)
		r.Post("/monitors", s.handleCreateMonitor)
		r.Get("/monitors/{monitorID}", s.handleGetMonitor)
		r.Put("/monitors/{monitorID}", s.handleUpdateMonitor)
		r.Delete("/monitors/{monitorID}", s.handleDeleteMonitor)
		r.Post("/monitors/{monitorID}/enable", s.handleEnableMonitor)
		r.Post("/monitors/{monitorID}/disable", s.handleDisableMonitor)
		r.Post("/monitors/{monitorID}/poll", s.handlePollMonitor)
		r.Get("/monitors/{monitorID}/state", s.handleGetMonitorState)
		r.Get("/monitors/{monitorID}/audits", s.handleGetMonitorAudits)

		// Batch poll
		r.Post("/poll", s.handlePollAll)

		// Alerts
		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/{alertID}", s.handleGetAlert)
		r.Post("/alerts/{alertID}/acknowledge", s.handleAcknowledgeAlert)
		r.Post("/alerts/{alertID}/forward", s.handleForwardAlert)

		// Stats
		r.Get("/stats", s.handleGetStats)
	})

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()

	fmt.Printf("API server starting on http://localhost%s\n", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// --- Stats ---

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.monitorStore.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	openAlerts, _ := s.alertStore.List(storage.ListFilter{Unacknowledged: true})

	result := map[string]interface{}{
		"total_monitors": len(monitors),
		"open_alerts":    len(openAlerts),
	}
	if s.scheduler != nil {
		result["scheduler"] = s.scheduler.GetStats()
	}

	s.respondJSON(w, http.StatusOK, result)
}
