// Package handlers exposes the scheduling, billing, prescription and
// registry services over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, clinic.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clinic.ErrSchedulingConflict), errors.Is(err, clinic.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, clinic.ErrInvalidTransition), errors.Is(err, clinic.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, clinic.ErrInvalidAmount), errors.Is(err, clinic.ErrMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, clinic.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
