package handlers

import (
	"net/http"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/registry"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// RegistryHandler serves master data: patients, doctors, rooms and the
// treatment and medication catalogs.
type RegistryHandler struct {
	svc    *registry.Service
	logger *logging.Logger
}

func NewRegistryHandler(svc *registry.Service, logger *logging.Logger) *RegistryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RegistryHandler{svc: svc, logger: logger}
}

// --- patients ---

func (h *RegistryHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var p clinic.Patient
	if !decodeJSON(w, r, &p) {
		return
	}
	created, err := h.svc.CreatePatient(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RegistryHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var p clinic.Patient
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = id
	if err := h.svc.UpdatePatient(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RegistryHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePatient(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListAppointmentsByPatient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- doctors ---

func (h *RegistryHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var d clinic.Doctor
	if !decodeJSON(w, r, &d) {
		return
	}
	created, err := h.svc.CreateDoctor(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDoctor(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *RegistryHandler) DeactivateDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeactivateDoctor(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) ReactivateDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.ReactivateDoctor(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteDoctor(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- rooms ---

func (h *RegistryHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var room clinic.Room
	if !decodeJSON(w, r, &room) {
		return
	}
	created, err := h.svc.CreateRoom(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	room, err := h.svc.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RegistryHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteRoom(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- treatments ---

func (h *RegistryHandler) CreateTreatment(w http.ResponseWriter, r *http.Request) {
	var t clinic.Treatment
	if !decodeJSON(w, r, &t) {
		return
	}
	created, err := h.svc.CreateTreatment(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) GetTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetTreatment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RegistryHandler) UpdateTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var t clinic.Treatment
	if !decodeJSON(w, r, &t) {
		return
	}
	t.ID = id
	if err := h.svc.UpdateTreatment(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RegistryHandler) DeleteTreatment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteTreatment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- medications ---

func (h *RegistryHandler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var m clinic.Medication
	if !decodeJSON(w, r, &m) {
		return
	}
	created, err := h.svc.CreateMedication(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) GetMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.svc.GetMedication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *RegistryHandler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteMedication(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- appointments ---

func (h *RegistryHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteAppointment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
