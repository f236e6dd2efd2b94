package prescriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/store/memstore"
)

func newFixture(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	require.NoError(t, store.CreatePatient(ctx, &clinic.Patient{ID: 1, Name: "Ada Byron", Gender: clinic.GenderFemale}))
	require.NoError(t, store.CreatePatient(ctx, &clinic.Patient{ID: 2, Name: "Tom Hall", Gender: clinic.GenderMale}))
	require.NoError(t, store.CreateDoctor(ctx, &clinic.Doctor{ID: 5, Name: "Dr. Rivera", Active: true}))
	require.NoError(t, store.CreateMedication(ctx, &clinic.Medication{ID: 20, Name: "Amoxicillin", Strength: "500mg", Form: "capsule"}))
	require.NoError(t, store.CreateAppointment(ctx, &clinic.Appointment{
		ID:        50,
		PatientID: 1,
		DoctorID:  5,
		Start:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Status:    clinic.StatusCompleted,
	}))

	svc := NewService(Config{
		Store: store,
		IDs:   clinic.NewSequence(100),
		Clock: clinic.FixedClock{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
	})
	return svc, store
}

func ptr[T any](v T) *T { return &v }

func TestCreateLinksAppointmentAndDoctor(t *testing.T) {
	svc, _ := newFixture(t)

	presc, err := svc.Create(context.Background(), CreateParams{
		PatientID:     1,
		AppointmentID: ptr(uint64(50)),
		DoctorID:      ptr(uint64(5)),
		Notes:         "post-procedure course",
	})
	require.NoError(t, err)
	assert.NotZero(t, presc.ID)
	require.NotNil(t, presc.AppointmentID)
	assert.Equal(t, uint64(50), *presc.AppointmentID)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), presc.IssuedAt)
}

func TestCreateRejectsForeignAppointment(t *testing.T) {
	svc, _ := newFixture(t)

	// appointment 50 belongs to patient 1
	_, err := svc.Create(context.Background(), CreateParams{
		PatientID:     2,
		AppointmentID: ptr(uint64(50)),
	})
	assert.ErrorIs(t, err, clinic.ErrMismatch)
}

func TestCreateRejectsUnknownReferences(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{PatientID: 99})
	assert.ErrorIs(t, err, clinic.ErrNotFound)

	_, err = svc.Create(ctx, CreateParams{PatientID: 1, DoctorID: ptr(uint64(99))})
	assert.ErrorIs(t, err, clinic.ErrNotFound)
}

func TestAddItemUpserts(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	presc, err := svc.Create(ctx, CreateParams{PatientID: 1})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, presc.ID, ItemParams{
		MedicationID: 20,
		Dosage:       "500mg",
		Frequency:    "3x daily",
		Duration:     "7 days",
	})
	require.NoError(t, err)

	// same medication again revises the instructions in place
	_, err = svc.AddItem(ctx, presc.ID, ItemParams{
		MedicationID: 20,
		Dosage:       "250mg",
		Frequency:    "2x daily",
	})
	require.NoError(t, err)

	_, items, err := svc.Get(ctx, presc.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "250mg", items[0].Dosage)
	assert.Equal(t, "2x daily", items[0].Frequency)
}

func TestAddItemValidates(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	presc, err := svc.Create(ctx, CreateParams{PatientID: 1})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, presc.ID, ItemParams{MedicationID: 20, Frequency: "daily"})
	assert.ErrorIs(t, err, clinic.ErrInvalidState)

	_, err = svc.AddItem(ctx, presc.ID, ItemParams{MedicationID: 99, Dosage: "1", Frequency: "daily"})
	assert.ErrorIs(t, err, clinic.ErrNotFound)

	_, err = svc.AddItem(ctx, 9999, ItemParams{MedicationID: 20, Dosage: "1", Frequency: "daily"})
	assert.ErrorIs(t, err, clinic.ErrNotFound)
}

func TestListByPatient(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateParams{PatientID: 1})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateParams{PatientID: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{PatientID: 2})
	require.NoError(t, err)

	got, err := svc.ListByPatient(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}

func TestDeleteRemovesItems(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	presc, err := svc.Create(ctx, CreateParams{PatientID: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, presc.ID, ItemParams{MedicationID: 20, Dosage: "500mg", Frequency: "daily"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, presc.ID))

	_, err = store.GetPrescription(ctx, presc.ID)
	assert.ErrorIs(t, err, clinic.ErrNotFound)
	items, err := store.ListPrescriptionItems(ctx, presc.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}
