package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quantumlife/watchtower/internal/core"
)

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.monitorStore.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"monitors": monitors,
		"count":    len(monitors),
	})
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var cfg core.MonitorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if cfg.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if cfg.MonitorID == "" {
		cfg.MonitorID = uuid.New().String()
	}

	if err := s.monitorStore.Create(&cfg); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.monitorStore.GetByID(chi.URLParam(r, "monitorID"))
	if err != nil {
		if errors.Is(err, core.ErrMonitorNotFound) {
			s.respondError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	var cfg core.MonitorConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.MonitorID = chi.URLParam(r, "monitorID")

	if err := s.monitorStore.Update(&cfg); err != nil {
		if errors.Is(err, core.ErrMonitorNotFound) {
			s.respondError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := s.monitorStore.Delete(chi.URLParam(r, "monitorID")); err != nil {
		if errors.Is(err, core.ErrMonitorNotFound) {
			s.respondError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) setMonitorEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	monitorID := chi.URLParam(r, "monitorID")

	if _, err := s.monitorStore.GetByID(monitorID); err != nil {
		if errors.Is(err, core.ErrMonitorNotFound) {
			s.respondError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.stateStore.SetEnabled(monitorID, enabled); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id": monitorID,
		"is_enabled": enabled,
	})
}

func (s *Server) handleEnableMonitor(w http.ResponseWriter, r *http.Request) {
	s.setMonitorEnabled(w, r, true)
}

func (s *Server) handleDisableMonitor(w http.ResponseWriter, r *http.Request) {
	s.setMonitorEnabled(w, r, false)
}

func (s *Server) handlePollMonitor(w http.ResponseWriter, r *http.Request) {
	monitorID := chi.URLParam(r, "monitorID")

	result, err := s.engine.PollOne(r.Context(), monitorID, core.PollManual)
	switch {
	case errors.Is(err, core.ErrMonitorNotFound):
		s.respondError(w, http.StatusNotFound, "monitor not found")
		return
	case errors.Is(err, core.ErrPollInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}

	// Poll-level failures still carry a result; surface it with 200 so the
	// caller can inspect the error field.
	if result == nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.broadcastAlerts(result)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePollAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.PollAll(r.Context(), core.PollManual)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, result := range results {
		s.broadcastAlerts(result)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) broadcastAlerts(result *core.PollResult) {
	if result == nil {
		return
	}
	for i := range result.Alerts {
		s.Broadcast("alert.created", result.Alerts[i])
	}
}

func (s *Server) handleGetMonitorState(w http.ResponseWriter, r *http.Request) {
	monitorID := chi.URLParam(r, "monitorID")

	if _, err := s.monitorStore.GetByID(monitorID); err != nil {
		if errors.Is(err, core.ErrMonitorNotFound) {
			s.respondError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state, err := s.stateStore.Get(monitorID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetMonitorAudits(w http.ResponseWriter, r *http.Request) {
	monitorID := chi.URLParam(r, "monitorID")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	audits, err := s.stateStore.RecentAudits(monitorID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"count":  len(audits),
	})
}
