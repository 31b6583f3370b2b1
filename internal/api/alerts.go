package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/storage"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := storage.ListFilter{
		MonitorID:      r.URL.Query().Get("monitor_id"),
		Unacknowledged: r.URL.Query().Get("unacknowledged") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	alerts, err := s.alertStore.List(filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.alertStore.GetByID(chi.URLParam(r, "alertID"))
	if err != nil {
		if errors.Is(err, core.ErrAlertNotFound) {
			s.respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	if err := s.alertStore.Acknowledge(alertID); err != nil {
		if errors.Is(err, core.ErrAlertNotFound) {
			s.respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"id":     alertID,
		"status": "acknowledged",
	})
}

func (s *Server) handleForwardAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	if err := s.alertStore.MarkForwarded(alertID); err != nil {
		if errors.Is(err, core.ErrAlertNotFound) {
			s.respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"id":     alertID,
		"status": "forwarded",
	})
}
