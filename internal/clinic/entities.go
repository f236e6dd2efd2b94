// Package clinic holds the domain model shared by the scheduling, billing
// and prescription services: entities, enums, monetary amounts and the
// collaborator interfaces (clock, ID allocation) the engine consumes.
package clinic

import "time"

// Gender is the patient gender enum.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the known genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Status is the appointment lifecycle status.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// PaymentMethod is the payment method enum.
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodCard      PaymentMethod = "card"
	MethodInsurance PaymentMethod = "insurance"
	MethodOther     PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodInsurance, MethodOther:
		return true
	}
	return false
}

// Patient is a clinic patient. Deleting a patient cascades to their
// appointments and prescriptions.
type Patient struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      Gender    `json:"gender"`
	Contact     string    `json:"contact,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Doctor is a practitioner. Doctors are never hard-deleted while
// appointments reference them; deactivation is the soft-delete path.
type Doctor struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Room is a bookable room. Room assignment on an appointment is optional;
// deleting a room nulls the reference.
type Room struct {
	ID          uint64 `json:"id"`
	Number      string `json:"number"`
	Floor       int    `json:"floor"`
	Description string `json:"description,omitempty"`
}

// Treatment is an immutable catalog entry. Billing lines capture the price
// at billing time so later catalog changes never rewrite history.
type Treatment struct {
	ID    uint64 `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Price Cents  `json:"price"`
}

// Medication is a catalog entry, unique per (name, strength, form).
type Medication struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Strength     string `json:"strength"`
	Form         string `json:"form"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Appointment is the aggregation root for treatment lines and the (at most
// one) invoice. End may be nil; for conflict checking a nil end occupies a
// configured default duration.
type Appointment struct {
	ID        uint64     `json:"id"`
	PatientID uint64     `json:"patient_id"`
	DoctorID  uint64     `json:"doctor_id"`
	RoomID    *uint64    `json:"room_id,omitempty"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	Status    Status     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TreatmentLine is a billed treatment on an appointment. At most one line
// per (appointment, treatment); repeats aggregate into Quantity. UnitPrice
// is frozen at first capture.
type TreatmentLine struct {
	AppointmentID uint64 `json:"appointment_id"`
	TreatmentID   uint64 `json:"treatment_id"`
	Quantity      int32  `json:"quantity"`
	UnitPrice     Cents  `json:"unit_price"`
}

// Prescription ties medication items to a patient, optionally linked to the
// originating appointment and prescribing doctor. Deleting the appointment
// nulls the link; the prescription itself is retained.
type Prescription struct {
	ID            uint64    `json:"id"`
	PatientID     uint64    `json:"patient_id"`
	AppointmentID *uint64   `json:"appointment_id,omitempty"`
	DoctorID      *uint64   `json:"doctor_id,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	Notes         string    `json:"notes,omitempty"`
}

// PrescriptionItem is a medication on a prescription, unique per
// (prescription, medication).
type PrescriptionItem struct {
	PrescriptionID uint64 `json:"prescription_id"`
	MedicationID   uint64 `json:"medication_id"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Invoice is the financial record for an appointment. AppointmentID is
// nulled, not cascaded, when the appointment is deleted.
type Invoice struct {
	ID            uint64    `json:"id"`
	AppointmentID *uint64   `json:"appointment_id,omitempty"`
	Total         Cents     `json:"total"`
	IssuedAt      time.Time `json:"issued_at"`
	Paid          bool      `json:"paid"`
	Notes         string    `json:"notes,omitempty"`
}

// Payment is a recorded payment against an invoice. Deleting the invoice
// cascades to its payments.
type Payment struct {
	ID        uint64        `json:"id"`
	InvoiceID uint64        `json:"invoice_id"`
	PaidAt    time.Time     `json:"paid_at"`
	Amount    Cents         `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference,omitempty"`
}
