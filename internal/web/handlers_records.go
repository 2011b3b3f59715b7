package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// Crashes

// handleCreateCrash creates a crash. With ?with_date=true its crash_date
// detail row is written in the same transaction.
func (s *Server) handleCreateCrash(w http.ResponseWriter, r *http.Request) {
	withDate, err := boolParam(r, "with_date")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req crashRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(w, r, err)
		return
	}

	create := s.service.CreateCrash
	if withDate {
		create = s.service.CreateCrashWithDate
	}
	rec, err := create(writeContext(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListCrashes(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, core.EntityCrash)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.service.ListCrashes(r.Context(), page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetCrash(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetCrash(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateCrash(w http.ResponseWriter, r *http.Request) {
	var req crashRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.UpdateCrash(writeContext(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteCrash(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCrash(writeContext(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// People

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var in core.PersonInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.CreatePerson(writeContext(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, core.EntityPerson)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.service.ListPeople(r.Context(), page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetPerson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	var patch core.PersonInput
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.UpdatePerson(writeContext(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePerson(writeContext(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Vehicles

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var in core.VehicleInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.CreateVehicle(writeContext(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, core.EntityVehicle)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.service.ListVehicles(r.Context(), page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := parseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.GetVehicle(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := parseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	var patch core.VehicleInput
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.service.UpdateVehicle(writeContext(r), id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := parseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.DeleteVehicle(writeContext(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
