package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/crashdb/internal/core"
	"github.com/JonMunkholm/crashdb/internal/logging"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Store  string            `json:"store"`
	Writer core.WriterStatus `json:"writer"`
}

// handleHealth reports liveness, storage reachability and write slot
// usage. An unreachable store answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Writer: s.service.WriterStatus()}
	status := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health: store ping failed", "error", err)
			resp.Status, resp.Store = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
