// Package registry manages the clinic's master data: patients, doctors,
// rooms and the treatment and medication catalogs. Deletions carry the
// referential rules of the domain — cascade for patient history, restrict
// for catalog entries in use, null-out for optional room assignments — and
// keep the availability index in step with removed appointments.
package registry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakmed/clinic-scheduler/internal/availability"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.registry")

// Store is the slice of the entity repository the registry needs.
type Store interface {
	CreatePatient(ctx context.Context, p *clinic.Patient) error
	GetPatient(ctx context.Context, id uint64) (*clinic.Patient, error)
	UpdatePatient(ctx context.Context, p *clinic.Patient) error
	DeletePatient(ctx context.Context, id uint64) ([]clinic.Appointment, error)

	CreateDoctor(ctx context.Context, d *clinic.Doctor) error
	GetDoctor(ctx context.Context, id uint64) (*clinic.Doctor, error)
	UpdateDoctor(ctx context.Context, d *clinic.Doctor) error
	SetDoctorActive(ctx context.Context, id uint64, active bool) error
	DeleteDoctor(ctx context.Context, id uint64) error

	CreateRoom(ctx context.Context, r *clinic.Room) error
	GetRoom(ctx context.Context, id uint64) (*clinic.Room, error)
	UpdateRoom(ctx context.Context, r *clinic.Room) error
	DeleteRoom(ctx context.Context, id uint64) ([]clinic.Appointment, error)

	CreateTreatment(ctx context.Context, t *clinic.Treatment) error
	GetTreatment(ctx context.Context, id uint64) (*clinic.Treatment, error)
	UpdateTreatment(ctx context.Context, t *clinic.Treatment) error
	DeleteTreatment(ctx context.Context, id uint64) error

	CreateMedication(ctx context.Context, m *clinic.Medication) error
	GetMedication(ctx context.Context, id uint64) (*clinic.Medication, error)
	DeleteMedication(ctx context.Context, id uint64) error

	GetAppointment(ctx context.Context, id uint64) (*clinic.Appointment, error)
	DeleteAppointment(ctx context.Context, id uint64) error
	ListAppointmentsByPatient(ctx context.Context, patientID uint64) ([]clinic.Appointment, error)
}

// Config carries the registry's collaborators.
type Config struct {
	Store           Store
	Index           *availability.Index
	IDs             clinic.IDAllocator
	Clock           clinic.Clock
	Logger          *logging.Logger
	DefaultDuration time.Duration
}

// Service is the master-data registry.
type Service struct {
	store           Store
	index           *availability.Index
	ids             clinic.IDAllocator
	clock           clinic.Clock
	logger          *logging.Logger
	defaultDuration time.Duration
}

func NewService(cfg Config) *Service {
	if cfg.Store == nil {
		panic("registry: store required")
	}
	if cfg.Index == nil {
		panic("registry: availability index required")
	}
	if cfg.IDs == nil {
		panic("registry: id allocator required")
	}
	s := &Service{
		store:           cfg.Store,
		index:           cfg.Index,
		ids:             cfg.IDs,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		defaultDuration: cfg.DefaultDuration,
	}
	if s.clock == nil {
		s.clock = clinic.RealClock()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.defaultDuration <= 0 {
		s.defaultDuration = 20 * time.Minute
	}
	return s
}

// --- patients ---

func (s *Service) CreatePatient(ctx context.Context, p clinic.Patient) (*clinic.Patient, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("registry: patient name required: %w", clinic.ErrInvalidState)
	}
	if !p.Gender.Valid() {
		return nil, fmt.Errorf("registry: unknown gender %q: %w", p.Gender, clinic.ErrInvalidState)
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: allocate id: %w", err)
	}
	p.ID = id
	p.CreatedAt = s.clock.Now()
	if err := s.store.CreatePatient(ctx, &p); err != nil {
		return nil, fmt.Errorf("registry: persist patient: %w", err)
	}
	return &p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uint64) (*clinic.Patient, error) {
	return s.store.GetPatient(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p clinic.Patient) error {
	if !p.Gender.Valid() {
		return fmt.Errorf("registry: unknown gender %q: %w", p.Gender, clinic.ErrInvalidState)
	}
	return s.store.UpdatePatient(ctx, &p)
}

// DeletePatient removes the patient and cascades to their appointments and
// prescriptions. Reservations held by the removed appointments are released
// so the freed slots become bookable immediately.
func (s *Service) DeletePatient(ctx context.Context, id uint64) error {
	ctx, span := tracer.Start(ctx, "registry.delete_patient")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.patient_id", int64(id)))

	removed, err := s.store.DeletePatient(ctx, id)
	if err != nil {
		return fmt.Errorf("registry: delete patient: %w", err)
	}
	s.releaseAppointments(removed)
	s.logger.Info("patient deleted", "patient_id", id, "appointments_removed", len(removed))
	return nil
}

// --- doctors ---

func (s *Service) CreateDoctor(ctx context.Context, d clinic.Doctor) (*clinic.Doctor, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("registry: doctor name required: %w", clinic.ErrInvalidState)
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: allocate id: %w", err)
	}
	d.ID = id
	d.Active = true
	d.CreatedAt = s.clock.Now()
	if err := s.store.CreateDoctor(ctx, &d); err != nil {
		return nil, fmt.Errorf("registry: persist doctor: %w", err)
	}
	return &d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uint64) (*clinic.Doctor, error) {
	return s.store.GetDoctor(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d clinic.Doctor) error {
	return s.store.UpdateDoctor(ctx, &d)
}

// DeactivateDoctor is the soft-delete path: the doctor stops accepting new
// bookings but existing history stays attributed.
func (s *Service) DeactivateDoctor(ctx context.Context, id uint64) error {
	if err := s.store.SetDoctorActive(ctx, id, false); err != nil {
		return fmt.Errorf("registry: deactivate doctor: %w", err)
	}
	s.logger.Info("doctor deactivated", "doctor_id", id)
	return nil
}

// ReactivateDoctor reverses a deactivation.
func (s *Service) ReactivateDoctor(ctx context.Context, id uint64) error {
	if err := s.store.SetDoctorActive(ctx, id, true); err != nil {
		return fmt.Errorf("registry: reactivate doctor: %w", err)
	}
	return nil
}

// DeleteDoctor hard-deletes a doctor. The store restricts the delete while
// any appointment still references them.
func (s *Service) DeleteDoctor(ctx context.Context, id uint64) error {
	if err := s.store.DeleteDoctor(ctx, id); err != nil {
		return fmt.Errorf("registry: delete doctor: %w", err)
	}
	s.logger.Info("doctor deleted", "doctor_id", id)
	return nil
}

// --- rooms ---

func (s *Service) CreateRoom(ctx context.Context, r clinic.Room) (*clinic.Room, error) {
	if r.Number == "" {
		return nil, fmt.Errorf("registry: room number required: %w", clinic.ErrInvalidState)
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: allocate id: %w", err)
	}
	r.ID = id
	if err := s.store.CreateRoom(ctx, &r); err != nil {
		return nil, fmt.Errorf("registry: persist room: %w", err)
	}
	return &r, nil
}

func (s *Service) GetRoom(ctx context.Context, id uint64) (*clinic.Room, error) {
	return s.store.GetRoom(ctx, id)
}

func (s *Service) UpdateRoom(ctx context.Context, r clinic.Room) error {
	return s.store.UpdateRoom(ctx, &r)
}

// DeleteRoom removes the room and nulls its reference on any appointment
// that used it. The affected appointments keep their doctor reservation;
// only the room side of the index is released.
func (s *Service) DeleteRoom(ctx context.Context, id uint64) error {
	ctx, span := tracer.Start(ctx, "registry.delete_room")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.room_id", int64(id)))

	affected, err := s.store.DeleteRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("registry: delete room: %w", err)
	}
	for _, appt := range affected {
		if appt.Status.Terminal() || appt.RoomID == nil {
			continue
		}
		s.index.Release(availability.Reservation{
			Subject:  availability.Subject{Kind: availability.SubjectRoom, ID: *appt.RoomID},
			Interval: availability.EffectiveInterval(appt.Start, appt.End, s.defaultDuration),
			Owner:    appt.ID,
		})
	}
	s.logger.Info("room deleted", "room_id", id, "appointments_detached", len(affected))
	return nil
}

// --- treatments ---

func (s *Service) CreateTreatment(ctx context.Context, t clinic.Treatment) (*clinic.Treatment, error) {
	if t.Code == "" || t.Name == "" {
		return nil, fmt.Errorf("registry: treatment code and name required: %w", clinic.ErrInvalidState)
	}
	if t.Price < 0 {
		return nil, fmt.Errorf("registry: treatment price %s: %w", t.Price, clinic.ErrInvalidAmount)
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: allocate id: %w", err)
	}
	t.ID = id
	if err := s.store.CreateTreatment(ctx, &t); err != nil {
		return nil, fmt.Errorf("registry: persist treatment: %w", err)
	}
	return &t, nil
}

func (s *Service) GetTreatment(ctx context.Context, id uint64) (*clinic.Treatment, error) {
	return s.store.GetTreatment(ctx, id)
}

func (s *Service) UpdateTreatment(ctx context.Context, t clinic.Treatment) error {
	if t.Price < 0 {
		return fmt.Errorf("registry: treatment price %s: %w", t.Price, clinic.ErrInvalidAmount)
	}
	return s.store.UpdateTreatment(ctx, &t)
}

// DeleteTreatment is restricted while billing lines reference the entry.
func (s *Service) DeleteTreatment(ctx context.Context, id uint64) error {
	if err := s.store.DeleteTreatment(ctx, id); err != nil {
		return fmt.Errorf("registry: delete treatment: %w", err)
	}
	return nil
}

// --- medications ---

func (s *Service) CreateMedication(ctx context.Context, m clinic.Medication) (*clinic.Medication, error) {
	if m.Name == "" || m.Strength == "" || m.Form == "" {
		return nil, fmt.Errorf("registry: medication name, strength and form required: %w", clinic.ErrInvalidState)
	}
	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: allocate id: %w", err)
	}
	m.ID = id
	if err := s.store.CreateMedication(ctx, &m); err != nil {
		return nil, fmt.Errorf("registry: persist medication: %w", err)
	}
	return &m, nil
}

func (s *Service) GetMedication(ctx context.Context, id uint64) (*clinic.Medication, error) {
	return s.store.GetMedication(ctx, id)
}

// DeleteMedication is restricted while prescription items reference the
// entry.
func (s *Service) DeleteMedication(ctx context.Context, id uint64) error {
	if err := s.store.DeleteMedication(ctx, id); err != nil {
		return fmt.Errorf("registry: delete medication: %w", err)
	}
	return nil
}

// --- appointments ---

// DeleteAppointment removes an appointment outright: treatment lines go with
// it, invoice and prescription links are nulled, and any index reservations
// it held are released.
func (s *Service) DeleteAppointment(ctx context.Context, id uint64) error {
	ctx, span := tracer.Start(ctx, "registry.delete_appointment")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.appointment_id", int64(id)))

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("registry: appointment lookup: %w", err)
	}
	if err := s.store.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("registry: delete appointment: %w", err)
	}
	s.releaseAppointments([]clinic.Appointment{*appt})
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// ListAppointmentsByPatient returns a patient's appointment history.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uint64) ([]clinic.Appointment, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("registry: patient lookup: %w", err)
	}
	return s.store.ListAppointmentsByPatient(ctx, patientID)
}

// releaseAppointments frees index reservations for removed non-terminal
// appointments. Terminal ones hold none.
func (s *Service) releaseAppointments(removed []clinic.Appointment) {
	for _, appt := range removed {
		if appt.Status.Terminal() {
			continue
		}
		s.index.ReleaseAll(availability.ReservationsFor(&appt, s.defaultDuration))
	}
}
