package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreatePatient(ctx, &clinic.Patient{ID: 1, Name: "Ada Byron", Gender: clinic.GenderFemale}))
	require.NoError(t, s.CreateDoctor(ctx, &clinic.Doctor{ID: 5, Name: "Dr. Rivera", Active: true}))
	require.NoError(t, s.CreateRoom(ctx, &clinic.Room{ID: 8, Number: "101"}))
	require.NoError(t, s.CreateTreatment(ctx, &clinic.Treatment{ID: 10, Code: "BTX", Name: "Botox", Price: 9500}))
	require.NoError(t, s.CreateMedication(ctx, &clinic.Medication{ID: 20, Name: "Amoxicillin", Strength: "500mg", Form: "capsule"}))
	require.NoError(t, s.CreateAppointment(ctx, &clinic.Appointment{
		ID: 50, PatientID: 1, DoctorID: 5, RoomID: ptr(uint64(8)),
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Status: clinic.StatusScheduled,
	}))
	return s
}

func TestOneInvoicePerAppointment(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.CreateInvoice(ctx, &clinic.Invoice{ID: 100, AppointmentID: ptr(uint64(50))}))
	err := s.CreateInvoice(ctx, &clinic.Invoice{ID: 101, AppointmentID: ptr(uint64(50))})
	assert.ErrorIs(t, err, clinic.ErrConflict)

	// a detached invoice does not count against the uniqueness rule
	require.NoError(t, s.CreateInvoice(ctx, &clinic.Invoice{ID: 102}))
}

func TestDeleteInvoiceCascadesPayments(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.CreateInvoice(ctx, &clinic.Invoice{ID: 100, AppointmentID: ptr(uint64(50)), Total: 9500}))
	require.NoError(t, s.CreatePayment(ctx, &clinic.Payment{ID: 200, InvoiceID: 100, Amount: 9500, Method: clinic.MethodCard}))

	require.NoError(t, s.DeleteInvoice(ctx, 100))

	payments, err := s.ListPayments(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, payments)

	err = s.CreatePayment(ctx, &clinic.Payment{ID: 201, InvoiceID: 100, Amount: 1, Method: clinic.MethodCash})
	assert.ErrorIs(t, err, clinic.ErrNotFound, "payments never dangle without an invoice")
}

func TestDeleteAppointmentKeepsInvoiceAndPrescription(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.CreateInvoice(ctx, &clinic.Invoice{ID: 100, AppointmentID: ptr(uint64(50))}))
	require.NoError(t, s.CreatePrescription(ctx, &clinic.Prescription{ID: 300, PatientID: 1, AppointmentID: ptr(uint64(50))}))
	require.NoError(t, s.PutTreatmentLine(ctx, &clinic.TreatmentLine{AppointmentID: 50, TreatmentID: 10, Quantity: 1, UnitPrice: 9500}))

	require.NoError(t, s.DeleteAppointment(ctx, 50))

	inv, err := s.GetInvoice(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, inv.AppointmentID)

	presc, err := s.GetPrescription(ctx, 300)
	require.NoError(t, err)
	assert.Nil(t, presc.AppointmentID)

	lines, err := s.ListTreatmentLines(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, lines, "treatment lines go with the appointment")
}

func TestDeletePatientCascadesHistory(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePrescription(ctx, &clinic.Prescription{ID: 300, PatientID: 1}))
	require.NoError(t, s.PutPrescriptionItem(ctx, &clinic.PrescriptionItem{
		PrescriptionID: 300, MedicationID: 20, Dosage: "500mg", Frequency: "daily",
	}))

	removed, err := s.DeletePatient(ctx, 1)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, uint64(50), removed[0].ID)

	_, err = s.GetPrescription(ctx, 300)
	assert.ErrorIs(t, err, clinic.ErrNotFound)
	_, err = s.GetAppointment(ctx, 50)
	assert.ErrorIs(t, err, clinic.ErrNotFound)

	// medication catalog untouched by the cascade
	_, err = s.GetMedication(ctx, 20)
	assert.NoError(t, err)
}

func TestCatalogUniqueness(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := s.CreateTreatment(ctx, &clinic.Treatment{ID: 11, Code: "BTX", Name: "Other", Price: 1})
	assert.ErrorIs(t, err, clinic.ErrConflict)

	err = s.CreateMedication(ctx, &clinic.Medication{ID: 21, Name: "Amoxicillin", Strength: "500mg", Form: "capsule"})
	assert.ErrorIs(t, err, clinic.ErrConflict)

	// same name, different strength is a distinct catalog entry
	err = s.CreateMedication(ctx, &clinic.Medication{ID: 22, Name: "Amoxicillin", Strength: "250mg", Form: "capsule"})
	assert.NoError(t, err)
}

func TestListOpenAppointmentsSkipsTerminal(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAppointment(ctx, &clinic.Appointment{
		ID: 51, PatientID: 1, DoctorID: 5,
		Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), Status: clinic.StatusScheduled,
	}))
	require.NoError(t, s.UpdateAppointmentStatus(ctx, 51, clinic.StatusCancelled))

	open, err := s.ListOpenAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(50), open[0].ID)
}
