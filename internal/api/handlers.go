package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/wxgate/internal/audit"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Endpoints:     len(s.apps),
		Apps:          make([]AppHealth, 0, len(s.apps)),
		Subscribers:   s.events.Subscribers(),
		EventsDropped: s.events.Dropped(),
	}
	for _, app := range s.apps {
		n := app.InFlight()
		resp.InFlight += n
		resp.Apps = append(resp.Apps, AppHealth{App: app.App(), InFlight: n})
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleMessages handles GET /messages?app=&limit=.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		s.writeError(w, http.StatusServiceUnavailable, "message log is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.messages.Recent(r.Context(), r.URL.Query().Get("app"), limit)
	if err != nil {
		s.logger.Error("failed to read message log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read message log")
		return
	}
	resp := MessagesResponse{Messages: records}
	if resp.Messages == nil {
		resp.Messages = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
