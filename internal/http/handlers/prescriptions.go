package handlers

import (
	"net/http"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/prescriptions"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// PrescriptionsHandler serves the prescription endpoints.
type PrescriptionsHandler struct {
	svc    *prescriptions.Service
	logger *logging.Logger
}

func NewPrescriptionsHandler(svc *prescriptions.Service, logger *logging.Logger) *PrescriptionsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PrescriptionsHandler{svc: svc, logger: logger}
}

type createPrescriptionRequest struct {
	PatientID     uint64  `json:"patient_id"`
	AppointmentID *uint64 `json:"appointment_id,omitempty"`
	DoctorID      *uint64 `json:"doctor_id,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// Create handles POST /prescriptions.
func (h *PrescriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	presc, err := h.svc.Create(r.Context(), prescriptions.CreateParams{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		DoctorID:      req.DoctorID,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, presc)
}

type prescriptionResponse struct {
	Prescription *clinic.Prescription      `json:"prescription"`
	Items        []clinic.PrescriptionItem `json:"items"`
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	presc, items, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prescriptionResponse{Prescription: presc, Items: items})
}

type addItemRequest struct {
	MedicationID uint64 `json:"medication_id"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// AddItem handles POST /prescriptions/{id}/items.
func (h *PrescriptionsHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.svc.AddItem(r.Context(), id, prescriptions.ItemParams{
		MedicationID: req.MedicationID,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		Duration:     req.Duration,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListByPatient handles GET /patients/{id}/prescriptions.
func (h *PrescriptionsHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListByPatient(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /prescriptions/{id}.
func (h *PrescriptionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
