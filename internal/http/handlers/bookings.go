package handlers

import (
	"net/http"
	"time"

	"github.com/oakmed/clinic-scheduler/internal/availability"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/scheduling"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// BookingsHandler serves the appointment booking endpoints.
type BookingsHandler struct {
	svc    *scheduling.Service
	logger *logging.Logger
}

func NewBookingsHandler(svc *scheduling.Service, logger *logging.Logger) *BookingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingsHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	PatientID uint64     `json:"patient_id"`
	DoctorID  uint64     `json:"doctor_id"`
	RoomID    *uint64    `json:"room_id,omitempty"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Create handles POST /appointments.
func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.Create(r.Context(), scheduling.CreateParams{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		RoomID:    req.RoomID,
		Start:     req.Start,
		End:       req.End,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// Get handles GET /appointments/{id}.
func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type rescheduleRequest struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Reschedule handles POST /appointments/{id}/reschedule.
func (h *BookingsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), id, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status clinic.Status `json:"status"`
}

// UpdateStatus handles POST /appointments/{id}/status, applying one step of
// the lifecycle state machine.
func (h *BookingsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.svc.Advance(r.Context(), id, req.Status)
	if err != nil {
		if appt != nil {
			// transition committed, invoice generation failed; report the
			// partial success rather than pretending the transition failed
			h.logger.Error("invoice generation after completion failed", "appointment_id", id, "error", err)
			writeJSON(w, http.StatusOK, appt)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /appointments/{id}/cancel.
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// NoShow handles POST /appointments/{id}/no-show.
func (h *BookingsHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.MarkNoShow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type availabilityResponse struct {
	Occupied bool `json:"occupied"`
}

// Availability handles GET /availability?kind=doctor&id=5&start=...&end=...
func (h *BookingsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var kind availability.SubjectKind
	switch q.Get("kind") {
	case "doctor":
		kind = availability.SubjectDoctor
	case "room":
		kind = availability.SubjectRoom
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "kind must be doctor or room"})
		return
	}
	id, err := parseUint(q.Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start"})
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end"})
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Occupied: h.svc.Occupied(kind, id, start, end),
	})
}
