// Package prescriptions issues prescriptions against the medication catalog
// and keeps their links to patients and appointments consistent.
package prescriptions

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.prescriptions")

// Store is the slice of the entity repository the service needs.
type Store interface {
	GetPatient(ctx context.Context, id uint64) (*clinic.Patient, error)
	GetDoctor(ctx context.Context, id uint64) (*clinic.Doctor, error)
	GetAppointment(ctx context.Context, id uint64) (*clinic.Appointment, error)
	GetMedication(ctx context.Context, id uint64) (*clinic.Medication, error)
	CreatePrescription(ctx context.Context, p *clinic.Prescription) error
	GetPrescription(ctx context.Context, id uint64) (*clinic.Prescription, error)
	PutPrescriptionItem(ctx context.Context, item *clinic.PrescriptionItem) error
	ListPrescriptionItems(ctx context.Context, prescriptionID uint64) ([]clinic.PrescriptionItem, error)
	ListPrescriptionsByPatient(ctx context.Context, patientID uint64) ([]clinic.Prescription, error)
	DeletePrescription(ctx context.Context, id uint64) error
}

// Config carries the service's collaborators.
type Config struct {
	Store  Store
	IDs    clinic.IDAllocator
	Clock  clinic.Clock
	Logger *logging.Logger
}

// Service manages prescriptions and their medication items.
type Service struct {
	store  Store
	ids    clinic.IDAllocator
	clock  clinic.Clock
	logger *logging.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Store == nil {
		panic("prescriptions: store required")
	}
	if cfg.IDs == nil {
		panic("prescriptions: id allocator required")
	}
	s := &Service{
		store:  cfg.Store,
		ids:    cfg.IDs,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
	if s.clock == nil {
		s.clock = clinic.RealClock()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// CreateParams describes a new prescription. AppointmentID and DoctorID are
// optional; when an appointment is given it must belong to the patient.
type CreateParams struct {
	PatientID     uint64
	AppointmentID *uint64
	DoctorID      *uint64
	Notes         string
}

// Create issues a prescription after validating every reference.
func (s *Service) Create(ctx context.Context, params CreateParams) (*clinic.Prescription, error) {
	ctx, span := tracer.Start(ctx, "prescriptions.create")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.patient_id", int64(params.PatientID)))

	if _, err := s.store.GetPatient(ctx, params.PatientID); err != nil {
		return nil, fmt.Errorf("prescriptions: patient lookup: %w", err)
	}
	if params.DoctorID != nil {
		if _, err := s.store.GetDoctor(ctx, *params.DoctorID); err != nil {
			return nil, fmt.Errorf("prescriptions: doctor lookup: %w", err)
		}
	}
	if params.AppointmentID != nil {
		appt, err := s.store.GetAppointment(ctx, *params.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("prescriptions: appointment lookup: %w", err)
		}
		if appt.PatientID != params.PatientID {
			return nil, fmt.Errorf("prescriptions: appointment %d belongs to patient %d, not %d: %w",
				appt.ID, appt.PatientID, params.PatientID, clinic.ErrMismatch)
		}
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("prescriptions: allocate id: %w", err)
	}
	presc := &clinic.Prescription{
		ID:            id,
		PatientID:     params.PatientID,
		AppointmentID: params.AppointmentID,
		DoctorID:      params.DoctorID,
		IssuedAt:      s.clock.Now(),
		Notes:         params.Notes,
	}
	if err := s.store.CreatePrescription(ctx, presc); err != nil {
		return nil, fmt.Errorf("prescriptions: persist: %w", err)
	}
	s.logger.Info("prescription issued", "prescription_id", presc.ID, "patient_id", presc.PatientID)
	return presc, nil
}

// ItemParams describes one medication on a prescription.
type ItemParams struct {
	MedicationID uint64
	Dosage       string
	Frequency    string
	Duration     string
	Notes        string
}

// AddItem attaches a medication to a prescription. Re-adding the same
// medication replaces the dosage instructions rather than duplicating the
// row.
func (s *Service) AddItem(ctx context.Context, prescriptionID uint64, params ItemParams) (*clinic.PrescriptionItem, error) {
	ctx, span := tracer.Start(ctx, "prescriptions.add_item")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.prescription_id", int64(prescriptionID)),
		attribute.Int64("clinic.medication_id", int64(params.MedicationID)),
	)

	if params.Dosage == "" || params.Frequency == "" {
		return nil, fmt.Errorf("prescriptions: dosage and frequency required: %w", clinic.ErrInvalidState)
	}
	if _, err := s.store.GetPrescription(ctx, prescriptionID); err != nil {
		return nil, fmt.Errorf("prescriptions: prescription lookup: %w", err)
	}
	if _, err := s.store.GetMedication(ctx, params.MedicationID); err != nil {
		return nil, fmt.Errorf("prescriptions: medication lookup: %w", err)
	}

	item := &clinic.PrescriptionItem{
		PrescriptionID: prescriptionID,
		MedicationID:   params.MedicationID,
		Dosage:         params.Dosage,
		Frequency:      params.Frequency,
		Duration:       params.Duration,
		Notes:          params.Notes,
	}
	if err := s.store.PutPrescriptionItem(ctx, item); err != nil {
		return nil, fmt.Errorf("prescriptions: persist item: %w", err)
	}
	return item, nil
}

// Get returns a prescription with its items.
func (s *Service) Get(ctx context.Context, id uint64) (*clinic.Prescription, []clinic.PrescriptionItem, error) {
	presc, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("prescriptions: lookup: %w", err)
	}
	items, err := s.store.ListPrescriptionItems(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("prescriptions: list items: %w", err)
	}
	return presc, items, nil
}

// ListByPatient returns a patient's prescriptions, oldest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uint64) ([]clinic.Prescription, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("prescriptions: patient lookup: %w", err)
	}
	out, err := s.store.ListPrescriptionsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("prescriptions: list: %w", err)
	}
	return out, nil
}

// Delete removes a prescription and its items.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	if err := s.store.DeletePrescription(ctx, id); err != nil {
		return fmt.Errorf("prescriptions: delete: %w", err)
	}
	s.logger.Info("prescription deleted", "prescription_id", id)
	return nil
}
