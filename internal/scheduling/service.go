// Package scheduling is the booking engine: it validates and commits
// appointment creation, rescheduling and lifecycle transitions against the
// availability index and the entity store.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakmed/clinic-scheduler/internal/availability"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/events"
	"github.com/oakmed/clinic-scheduler/internal/observability/metrics"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.scheduling")

// DefaultAppointmentDuration blocks a nil-end appointment for a fixed slot
// so the no-double-booking guarantee holds even without an explicit end.
const DefaultAppointmentDuration = 20 * time.Minute

const defaultRetryAttempts = 3

// Store is the slice of the entity repository the booking engine needs.
type Store interface {
	GetPatient(ctx context.Context, id uint64) (*clinic.Patient, error)
	GetDoctor(ctx context.Context, id uint64) (*clinic.Doctor, error)
	GetRoom(ctx context.Context, id uint64) (*clinic.Room, error)
	CreateAppointment(ctx context.Context, a *clinic.Appointment) error
	GetAppointment(ctx context.Context, id uint64) (*clinic.Appointment, error)
	UpdateAppointmentTimes(ctx context.Context, id uint64, start time.Time, end *time.Time) error
	UpdateAppointmentStatus(ctx context.Context, id uint64, status clinic.Status) error
	ListOpenAppointments(ctx context.Context) ([]clinic.Appointment, error)
}

// InvoiceGenerator is implemented by the billing reconciler; completing an
// appointment triggers invoice generation through it.
type InvoiceGenerator interface {
	GenerateInvoice(ctx context.Context, appointmentID uint64) (*clinic.Invoice, error)
}

// Config carries optional collaborator overrides.
type Config struct {
	Store           Store
	Index           *availability.Index
	IDs             clinic.IDAllocator
	Invoices        InvoiceGenerator
	Publisher       events.Publisher
	Leaser          *availability.Leaser
	Clock           clinic.Clock
	Logger          *logging.Logger
	Metrics         *metrics.SchedulingMetrics
	DefaultDuration time.Duration
	RetryAttempts   int
}

// Service owns the appointment state machine and reservation commits.
type Service struct {
	store           Store
	index           *availability.Index
	ids             clinic.IDAllocator
	invoices        InvoiceGenerator
	publisher       events.Publisher
	leaser          *availability.Leaser
	clock           clinic.Clock
	logger          *logging.Logger
	metrics         *metrics.SchedulingMetrics
	defaultDuration time.Duration
	retryAttempts   int
}

func NewService(cfg Config) *Service {
	if cfg.Store == nil {
		panic("scheduling: store required")
	}
	if cfg.Index == nil {
		panic("scheduling: availability index required")
	}
	if cfg.IDs == nil {
		panic("scheduling: id allocator required")
	}
	s := &Service{
		store:           cfg.Store,
		index:           cfg.Index,
		ids:             cfg.IDs,
		invoices:        cfg.Invoices,
		publisher:       cfg.Publisher,
		leaser:          cfg.Leaser,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		defaultDuration: cfg.DefaultDuration,
		retryAttempts:   cfg.RetryAttempts,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.clock == nil {
		s.clock = clinic.RealClock()
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.defaultDuration <= 0 {
		s.defaultDuration = DefaultAppointmentDuration
	}
	if s.retryAttempts <= 0 {
		s.retryAttempts = defaultRetryAttempts
	}
	return s
}

// CreateParams describes a booking request.
type CreateParams struct {
	PatientID uint64
	DoctorID  uint64
	RoomID    *uint64
	Start     time.Time
	End       *time.Time
	Reason    string
	Notes     string
}

// Create admits or rejects a booking. The doctor reservation (and room
// reservation, when a room is requested) commit as one atomic unit; on any
// conflict nothing is reserved and the caller gets the blocking interval.
func (s *Service) Create(ctx context.Context, p CreateParams) (*clinic.Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.patient_id", int64(p.PatientID)),
		attribute.Int64("clinic.doctor_id", int64(p.DoctorID)),
	)

	if err := validateWindow(p.Start, p.End); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPatient(ctx, p.PatientID); err != nil {
		return nil, fmt.Errorf("scheduling: patient lookup: %w", err)
	}
	doctor, err := s.store.GetDoctor(ctx, p.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: doctor lookup: %w", err)
	}
	if !doctor.Active {
		return nil, fmt.Errorf("scheduling: doctor %d is deactivated: %w", p.DoctorID, clinic.ErrNotFound)
	}
	if p.RoomID != nil {
		if _, err := s.store.GetRoom(ctx, *p.RoomID); err != nil {
			return nil, fmt.Errorf("scheduling: room lookup: %w", err)
		}
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: allocate id: %w", err)
	}
	appt := &clinic.Appointment{
		ID:        id,
		PatientID: p.PatientID,
		DoctorID:  p.DoctorID,
		RoomID:    p.RoomID,
		Start:     p.Start,
		End:       p.End,
		Status:    clinic.StatusScheduled,
		Reason:    p.Reason,
		Notes:     p.Notes,
		CreatedAt: s.clock.Now(),
	}
	reservations := availability.ReservationsFor(appt, s.defaultDuration)

	release, err := s.lease(ctx, reservations)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	if err := s.index.ReserveAll(reservations); err != nil {
		s.observeConflict("create", err)
		return nil, fmt.Errorf("scheduling: create: %w", err)
	}
	s.metrics.ObserveReserveLatency(time.Since(start).Seconds())

	err = clinic.WithRetry(ctx, s.retryAttempts, func() error {
		return s.store.CreateAppointment(ctx, appt)
	})
	if err != nil {
		s.index.ReleaseAll(reservations)
		s.metrics.ObserveBooking("create", "error")
		return nil, fmt.Errorf("scheduling: persist appointment: %w", err)
	}

	s.metrics.ObserveBooking("create", "ok")
	s.logger.Info("appointment scheduled",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"patient_id", appt.PatientID,
		"start", appt.Start,
	)
	s.publish(ctx, events.Event{
		Type:          events.TypeAppointmentScheduled,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		Status:        string(appt.Status),
	})
	return appt, nil
}

// Reschedule moves an appointment to a new window. Legal only while the
// status is scheduled or checked_in. A conflicting target leaves the
// original reservation committed.
func (s *Service) Reschedule(ctx context.Context, id uint64, newStart time.Time, newEnd *time.Time) (*clinic.Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.appointment_id", int64(id)))

	if err := validateWindow(newStart, newEnd); err != nil {
		return nil, err
	}
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: reschedule: %w", err)
	}
	if appt.Status != clinic.StatusScheduled && appt.Status != clinic.StatusCheckedIn {
		return nil, fmt.Errorf("scheduling: reschedule in status %s: %w", appt.Status, clinic.ErrInvalidState)
	}

	old := availability.ReservationsFor(appt, s.defaultDuration)
	moved := *appt
	moved.Start = newStart
	moved.End = newEnd
	next := availability.ReservationsFor(&moved, s.defaultDuration)

	release, err := s.lease(ctx, append(append([]availability.Reservation{}, old...), next...))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.index.Exchange(old, next); err != nil {
		s.observeConflict("reschedule", err)
		return nil, fmt.Errorf("scheduling: reschedule: %w", err)
	}

	err = clinic.WithRetry(ctx, s.retryAttempts, func() error {
		return s.store.UpdateAppointmentTimes(ctx, id, newStart, newEnd)
	})
	if err != nil {
		// restore the original window; the subjects were just vacated so
		// the swap back cannot conflict
		if xerr := s.index.Exchange(next, old); xerr != nil {
			s.logger.Error("failed to restore reservation after persist error", "appointment_id", id, "error", xerr)
		}
		s.metrics.ObserveBooking("reschedule", "error")
		return nil, fmt.Errorf("scheduling: persist reschedule: %w", err)
	}

	s.metrics.ObserveBooking("reschedule", "ok")
	s.logger.Info("appointment rescheduled", "appointment_id", id, "start", newStart)
	s.publish(ctx, events.Event{
		Type:          events.TypeAppointmentRescheduled,
		AppointmentID: id,
		PatientID:     appt.PatientID,
		Status:        string(appt.Status),
	})
	return &moved, nil
}

// Cancel transitions to cancelled and frees the reserved intervals. Any
// existing invoice is left untouched.
func (s *Service) Cancel(ctx context.Context, id uint64) (*clinic.Appointment, error) {
	return s.terminate(ctx, id, clinic.StatusCancelled)
}

// MarkNoShow transitions to no_show and frees the reserved intervals.
func (s *Service) MarkNoShow(ctx context.Context, id uint64) (*clinic.Appointment, error) {
	return s.terminate(ctx, id, clinic.StatusNoShow)
}

func (s *Service) terminate(ctx context.Context, id uint64, to clinic.Status) (*clinic.Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.terminate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.appointment_id", int64(id)),
		attribute.String("clinic.status", string(to)),
	)

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: %s: %w", to, err)
	}
	if !canTransition(appt.Status, to) {
		return nil, fmt.Errorf("scheduling: %s -> %s: %w", appt.Status, to, clinic.ErrInvalidTransition)
	}

	err = clinic.WithRetry(ctx, s.retryAttempts, func() error {
		return s.store.UpdateAppointmentStatus(ctx, id, to)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: persist %s: %w", to, err)
	}

	// release after the status commit; a transiently conservative index is
	// harmless, a prematurely freed slot is not
	s.index.ReleaseAll(availability.ReservationsFor(appt, s.defaultDuration))

	appt.Status = to
	s.metrics.ObserveBooking(string(to), "ok")
	s.logger.Info("appointment closed", "appointment_id", id, "status", to)
	s.publish(ctx, events.Event{
		Type:          events.TypeAppointmentStatus,
		AppointmentID: id,
		PatientID:     appt.PatientID,
		Status:        string(to),
	})
	return appt, nil
}

// Advance applies one step of the status state machine. Completing an
// appointment triggers invoice generation when none exists yet; the
// generation is idempotent, so a failure there can be retried through the
// billing API without re-running the transition.
func (s *Service) Advance(ctx context.Context, id uint64, next clinic.Status) (*clinic.Appointment, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("scheduling: unknown status %q: %w", next, clinic.ErrInvalidTransition)
	}
	if next == clinic.StatusCancelled || next == clinic.StatusNoShow {
		return s.terminate(ctx, id, next)
	}

	ctx, span := tracer.Start(ctx, "scheduling.advance")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.appointment_id", int64(id)),
		attribute.String("clinic.status", string(next)),
	)

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: advance: %w", err)
	}
	if !canTransition(appt.Status, next) {
		return nil, fmt.Errorf("scheduling: %s -> %s: %w", appt.Status, next, clinic.ErrInvalidTransition)
	}

	err = clinic.WithRetry(ctx, s.retryAttempts, func() error {
		return s.store.UpdateAppointmentStatus(ctx, id, next)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: persist advance: %w", err)
	}
	appt.Status = next

	s.publish(ctx, events.Event{
		Type:          events.TypeAppointmentStatus,
		AppointmentID: id,
		PatientID:     appt.PatientID,
		Status:        string(next),
	})

	if next == clinic.StatusCompleted && s.invoices != nil {
		if _, err := s.invoices.GenerateInvoice(ctx, id); err != nil {
			return appt, fmt.Errorf("scheduling: generate invoice for completed appointment: %w", err)
		}
	}
	return appt, nil
}

// Get returns an appointment by ID.
func (s *Service) Get(ctx context.Context, id uint64) (*clinic.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: get: %w", err)
	}
	return appt, nil
}

// Occupied answers whether the subject has any committed interval
// overlapping [start, end).
func (s *Service) Occupied(kind availability.SubjectKind, id uint64, start, end time.Time) bool {
	return s.index.Occupied(
		availability.Subject{Kind: kind, ID: id},
		availability.Interval{Start: start, End: end},
	)
}

// Rehydrate rebuilds the availability index from open appointments. Called
// once at startup before the service accepts bookings.
func (s *Service) Rehydrate(ctx context.Context) error {
	appts, err := s.store.ListOpenAppointments(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: rehydrate: %w", err)
	}
	for i := range appts {
		rs := availability.ReservationsFor(&appts[i], s.defaultDuration)
		if err := s.index.ReserveAll(rs); err != nil {
			// stored data violating the overlap invariant: log loudly, skip
			s.logger.Error("stored appointment conflicts during rehydrate", "appointment_id", appts[i].ID, "error", err)
		}
	}
	s.logger.Info("availability index rebuilt", "appointments", len(appts))
	return nil
}

func (s *Service) lease(ctx context.Context, rs []availability.Reservation) (func(), error) {
	if s.leaser == nil {
		return func() {}, nil
	}
	subjects := make([]availability.Subject, len(rs))
	for i, r := range rs {
		subjects[i] = r.Subject
	}
	release, err := s.leaser.Acquire(ctx, subjects)
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}
	return release, nil
}

func (s *Service) observeConflict(operation string, err error) {
	s.metrics.ObserveBooking(operation, "conflict")
	var conflict *availability.ConflictError
	if errors.As(err, &conflict) {
		s.metrics.ObserveConflict(conflict.Subject.Kind.String())
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = s.clock.Now()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("event publish failed", "type", ev.Type, "error", err)
	}
}

func validateWindow(start time.Time, end *time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("scheduling: start time required: %w", clinic.ErrInvalidState)
	}
	if end != nil && end.Before(start) {
		return fmt.Errorf("scheduling: end before start: %w", clinic.ErrInvalidState)
	}
	return nil
}
