package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListDetailTables lists the registered detail tables and their
// parent entity.
func (s *Server) handleListDetailTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListDetailTables())
}

// handleCreateDetail creates a detail row. The body carries the parent id
// under the parent's key column, e.g. {"vehicle_id": 12, ...}.
func (s *Server) handleCreateDetail(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		respondError(w, r, err)
		return
	}
	row, err := s.service.CreateDetail(writeContext(r), chi.URLParam(r, "table"), raw)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleGetDetail(w http.ResponseWriter, r *http.Request) {
	row, err := s.service.GetDetail(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "parentID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleUpdateDetail(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		respondError(w, r, err)
		return
	}
	row, err := s.service.UpdateDetail(writeContext(r), chi.URLParam(r, "table"), chi.URLParam(r, "parentID"), raw)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteDetail(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteDetail(writeContext(r), chi.URLParam(r, "table"), chi.URLParam(r, "parentID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
