package handlers

import (
	"net/http"

	"github.com/oakmed/clinic-scheduler/internal/billing"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// BillingHandler serves treatment lines, invoices and payments.
type BillingHandler struct {
	rec    *billing.Reconciler
	logger *logging.Logger
}

func NewBillingHandler(rec *billing.Reconciler, logger *logging.Logger) *BillingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BillingHandler{rec: rec, logger: logger}
}

type addLineRequest struct {
	TreatmentID uint64 `json:"treatment_id"`
	Quantity    int32  `json:"quantity"`
}

// AddTreatmentLine handles POST /appointments/{id}/treatments.
func (h *BillingHandler) AddTreatmentLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	line, err := h.rec.AddTreatmentLine(r.Context(), id, req.TreatmentID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// GenerateInvoice handles POST /appointments/{id}/invoice. Safe to repeat;
// the existing invoice comes back on subsequent calls.
func (h *BillingHandler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.rec.GenerateInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type invoiceResponse struct {
	Invoice  *clinic.Invoice  `json:"invoice"`
	Payments []clinic.Payment `json:"payments"`
}

// GetInvoice handles GET /invoices/{id}.
func (h *BillingHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, payments, err := h.rec.Invoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv, Payments: payments})
}

type recordPaymentRequest struct {
	Amount    clinic.Cents         `json:"amount"`
	Method    clinic.PaymentMethod `json:"method"`
	Reference string               `json:"reference,omitempty"`
}

// RecordPayment handles POST /invoices/{id}/payments.
func (h *BillingHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req recordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := h.rec.RecordPayment(r.Context(), id, req.Amount, req.Method, req.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}
