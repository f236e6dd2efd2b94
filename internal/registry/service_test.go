package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmed/clinic-scheduler/internal/availability"
	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/store/memstore"
)

type fixture struct {
	svc   *Service
	store *memstore.Store
	index *availability.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	index := availability.NewIndex()
	svc := NewService(Config{
		Store:           store,
		Index:           index,
		IDs:             clinic.NewSequence(0),
		Clock:           clinic.FixedClock{T: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		DefaultDuration: 20 * time.Minute,
	})
	return &fixture{svc: svc, store: store, index: index}
}

func ptr[T any](v T) *T { return &v }

// seedAppointment persists an appointment and mirrors its reservations into
// the index, the way the booking engine would have.
func (f *fixture) seedAppointment(t *testing.T, appt clinic.Appointment) {
	t.Helper()
	require.NoError(t, f.store.CreateAppointment(context.Background(), &appt))
	if !appt.Status.Terminal() {
		require.NoError(t, f.index.ReserveAll(availability.ReservationsFor(&appt, 20*time.Minute)))
	}
}

func TestCreatePatientAssignsIDAndTimestamp(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.CreatePatient(context.Background(), clinic.Patient{
		Name:   "Ada Byron",
		Gender: clinic.GenderFemale,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.ID)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), p.CreatedAt)

	_, err = f.svc.CreatePatient(context.Background(), clinic.Patient{Name: "X", Gender: "unknown"})
	assert.ErrorIs(t, err, clinic.ErrInvalidState)
}

func TestDeletePatientCascadesAndFreesSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, clinic.Patient{Name: "Ada Byron", Gender: clinic.GenderFemale})
	require.NoError(t, err)
	d, err := f.svc.CreateDoctor(ctx, clinic.Doctor{Name: "Dr. Rivera"})
	require.NoError(t, err)

	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	f.seedAppointment(t, clinic.Appointment{
		ID: 500, PatientID: p.ID, DoctorID: d.ID, Start: start, Status: clinic.StatusScheduled,
	})

	subject := availability.Subject{Kind: availability.SubjectDoctor, ID: d.ID}
	window := availability.EffectiveInterval(start, nil, 20*time.Minute)
	require.True(t, f.index.Occupied(subject, window))

	require.NoError(t, f.svc.DeletePatient(ctx, p.ID))

	_, err = f.store.GetAppointment(ctx, 500)
	assert.ErrorIs(t, err, clinic.ErrNotFound)
	assert.False(t, f.index.Occupied(subject, window), "freed slot must be bookable again")
}

func TestDeleteDoctorRestrictedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, clinic.Patient{Name: "Ada Byron", Gender: clinic.GenderFemale})
	require.NoError(t, err)
	d, err := f.svc.CreateDoctor(ctx, clinic.Doctor{Name: "Dr. Rivera"})
	require.NoError(t, err)
	f.seedAppointment(t, clinic.Appointment{
		ID: 500, PatientID: p.ID, DoctorID: d.ID,
		Start: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), Status: clinic.StatusScheduled,
	})

	err = f.svc.DeleteDoctor(ctx, d.ID)
	assert.ErrorIs(t, err, clinic.ErrInvalidState)

	// deactivation is the supported path while history exists
	require.NoError(t, f.svc.DeactivateDoctor(ctx, d.ID))
	got, err := f.svc.GetDoctor(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, f.svc.ReactivateDoctor(ctx, d.ID))
	got, err = f.svc.GetDoctor(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestDeleteRoomDetachesAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, clinic.Patient{Name: "Ada Byron", Gender: clinic.GenderFemale})
	require.NoError(t, err)
	d, err := f.svc.CreateDoctor(ctx, clinic.Doctor{Name: "Dr. Rivera"})
	require.NoError(t, err)
	room, err := f.svc.CreateRoom(ctx, clinic.Room{Number: "101", Floor: 1})
	require.NoError(t, err)

	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	f.seedAppointment(t, clinic.Appointment{
		ID: 500, PatientID: p.ID, DoctorID: d.ID, RoomID: ptr(room.ID),
		Start: start, Status: clinic.StatusScheduled,
	})

	require.NoError(t, f.svc.DeleteRoom(ctx, room.ID))

	appt, err := f.store.GetAppointment(ctx, 500)
	require.NoError(t, err)
	assert.Nil(t, appt.RoomID, "room link must be nulled, appointment retained")

	window := availability.EffectiveInterval(start, nil, 20*time.Minute)
	assert.False(t, f.index.Occupied(availability.Subject{Kind: availability.SubjectRoom, ID: room.ID}, window))
	assert.True(t, f.index.Occupied(availability.Subject{Kind: availability.SubjectDoctor, ID: d.ID}, window),
		"doctor reservation survives the room delete")
}

func TestDeleteCatalogEntriesRestrictedWhileInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, clinic.Patient{Name: "Ada Byron", Gender: clinic.GenderFemale})
	require.NoError(t, err)
	d, err := f.svc.CreateDoctor(ctx, clinic.Doctor{Name: "Dr. Rivera"})
	require.NoError(t, err)
	treatment, err := f.svc.CreateTreatment(ctx, clinic.Treatment{Code: "BTX", Name: "Botox", Price: 9500})
	require.NoError(t, err)
	med, err := f.svc.CreateMedication(ctx, clinic.Medication{Name: "Amoxicillin", Strength: "500mg", Form: "capsule"})
	require.NoError(t, err)

	f.seedAppointment(t, clinic.Appointment{
		ID: 500, PatientID: p.ID, DoctorID: d.ID,
		Start: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), Status: clinic.StatusScheduled,
	})
	require.NoError(t, f.store.PutTreatmentLine(ctx, &clinic.TreatmentLine{
		AppointmentID: 500, TreatmentID: treatment.ID, Quantity: 1, UnitPrice: treatment.Price,
	}))
	require.NoError(t, f.store.CreatePrescription(ctx, &clinic.Prescription{ID: 600, PatientID: p.ID}))
	require.NoError(t, f.store.PutPrescriptionItem(ctx, &clinic.PrescriptionItem{
		PrescriptionID: 600, MedicationID: med.ID, Dosage: "500mg", Frequency: "daily",
	}))

	assert.ErrorIs(t, f.svc.DeleteTreatment(ctx, treatment.ID), clinic.ErrInvalidState)
	assert.ErrorIs(t, f.svc.DeleteMedication(ctx, med.ID), clinic.ErrInvalidState)

	// once the references are gone the deletes succeed
	require.NoError(t, f.svc.DeleteAppointment(ctx, 500))
	require.NoError(t, f.store.DeletePrescription(ctx, 600))
	assert.NoError(t, f.svc.DeleteTreatment(ctx, treatment.ID))
	assert.NoError(t, f.svc.DeleteMedication(ctx, med.ID))
}

func TestDeleteAppointmentNullsInvoiceLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, clinic.Patient{Name: "Ada Byron", Gender: clinic.GenderFemale})
	require.NoError(t, err)
	d, err := f.svc.CreateDoctor(ctx, clinic.Doctor{Name: "Dr. Rivera"})
	require.NoError(t, err)

	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	f.seedAppointment(t, clinic.Appointment{
		ID: 500, PatientID: p.ID, DoctorID: d.ID, Start: start, Status: clinic.StatusScheduled,
	})
	require.NoError(t, f.store.CreateInvoice(ctx, &clinic.Invoice{
		ID: 700, AppointmentID: ptr(uint64(500)), Total: 9500,
	}))

	require.NoError(t, f.svc.DeleteAppointment(ctx, 500))

	inv, err := f.store.GetInvoice(ctx, 700)
	require.NoError(t, err)
	assert.Nil(t, inv.AppointmentID, "invoice survives as a detached financial record")

	window := availability.EffectiveInterval(start, nil, 20*time.Minute)
	assert.False(t, f.index.Occupied(availability.Subject{Kind: availability.SubjectDoctor, ID: d.ID}, window))
}

func TestRoomNumberUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRoom(ctx, clinic.Room{Number: "101", Floor: 1})
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, clinic.Room{Number: "101", Floor: 2})
	assert.ErrorIs(t, err, clinic.ErrConflict)
}
