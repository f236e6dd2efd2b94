package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/events"
	"github.com/oakmed/clinic-scheduler/internal/store/memstore"
)

type billingFixture struct {
	rec       *Reconciler
	store     *memstore.Store
	publisher *events.MemoryPublisher
	apptID    uint64
	botoxID   uint64
	peelID    uint64
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	seq := clinic.NewSequence(100)
	publisher := events.NewMemoryPublisher()

	require.NoError(t, store.CreatePatient(ctx, &clinic.Patient{ID: 1, Name: "Ada Byron", Gender: clinic.GenderFemale}))
	require.NoError(t, store.CreateDoctor(ctx, &clinic.Doctor{ID: 2, Name: "Dr. Rivera", Active: true}))
	require.NoError(t, store.CreateTreatment(ctx, &clinic.Treatment{ID: 10, Code: "BTX", Name: "Botox", Price: 9500}))
	require.NoError(t, store.CreateTreatment(ctx, &clinic.Treatment{ID: 11, Code: "PEEL", Name: "Chemical Peel", Price: 12000}))
	require.NoError(t, store.CreateAppointment(ctx, &clinic.Appointment{
		ID:        50,
		PatientID: 1,
		DoctorID:  2,
		Start:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Status:    clinic.StatusCompleted,
	}))

	rec := NewReconciler(Config{
		Store:     store,
		IDs:       seq,
		Publisher: publisher,
		Clock:     clinic.FixedClock{T: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
	})
	return &billingFixture{rec: rec, store: store, publisher: publisher, apptID: 50, botoxID: 10, peelID: 11}
}

func (f *billingFixture) eventTypes() []string {
	var out []string
	for _, ev := range f.publisher.Events() {
		out = append(out, ev.Type)
	}
	return out
}

func TestAddTreatmentLineAggregatesAtFrozenPrice(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	line, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), line.Quantity)
	assert.Equal(t, clinic.Cents(9500), line.UnitPrice)

	// catalog price change must not touch the captured line
	require.NoError(t, f.store.UpdateTreatment(ctx, &clinic.Treatment{ID: f.botoxID, Code: "BTX", Name: "Botox", Price: 11000}))

	line, err = f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), line.Quantity)
	assert.Equal(t, clinic.Cents(9500), line.UnitPrice)

	lines, err := f.store.ListTreatmentLines(ctx, f.apptID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestAddTreatmentLineRejectsNonPositiveQuantity(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.rec.AddTreatmentLine(context.Background(), f.apptID, f.botoxID, 0)
	assert.ErrorIs(t, err, clinic.ErrInvalidAmount)

	_, err = f.rec.AddTreatmentLine(context.Background(), f.apptID, f.botoxID, -3)
	assert.ErrorIs(t, err, clinic.ErrInvalidAmount)
}

func TestAddTreatmentLineRejectsCancelledAppointment(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateAppointmentStatus(ctx, f.apptID, clinic.StatusCancelled))

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	assert.ErrorIs(t, err, clinic.ErrInvalidState)
}

func TestGenerateInvoiceIsIdempotent(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 2)
	require.NoError(t, err)

	first, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)
	assert.Equal(t, clinic.Cents(19000), first.Total)
	assert.False(t, first.Paid)

	second, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// only one generation event despite two calls
	assert.Equal(t, []string{events.TypeInvoiceGenerated}, f.eventTypes())
}

func TestRecordPaymentMarksPaidWhenCovered(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	require.NoError(t, err)
	inv, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)

	_, err = f.rec.RecordPayment(ctx, inv.ID, 4000, clinic.MethodCash, "")
	require.NoError(t, err)
	got, _, err := f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, got.Paid, "partial payment must leave the invoice open")

	p, err := f.rec.RecordPayment(ctx, inv.ID, 5500, clinic.MethodCard, "txn-778")
	require.NoError(t, err)
	assert.Equal(t, "txn-778", p.Reference)

	got, payments, err := f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	assert.Len(t, payments, 2)
	assert.NotEmpty(t, payments[0].Reference, "blank reference gets a generated one")
	assert.Contains(t, f.eventTypes(), events.TypeInvoicePaid)
}

func TestRecordPaymentValidatesAmountAndMethod(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	inv, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)

	_, err = f.rec.RecordPayment(ctx, inv.ID, 0, clinic.MethodCash, "")
	assert.ErrorIs(t, err, clinic.ErrInvalidAmount)

	_, err = f.rec.RecordPayment(ctx, inv.ID, 100, clinic.PaymentMethod("barter"), "")
	assert.ErrorIs(t, err, clinic.ErrInvalidAmount)

	_, err = f.rec.RecordPayment(ctx, 9999, 100, clinic.MethodCash, "")
	assert.ErrorIs(t, err, clinic.ErrNotFound)
}

func TestLateLineReopensPaidInvoice(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	require.NoError(t, err)
	inv, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)
	require.Equal(t, clinic.Cents(9500), inv.Total)

	_, err = f.rec.RecordPayment(ctx, inv.ID, 9500, clinic.MethodCard, "txn-1")
	require.NoError(t, err)
	got, _, err := f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, got.Paid)

	_, err = f.rec.AddTreatmentLine(ctx, f.apptID, f.peelID, 1)
	require.NoError(t, err)

	got, _, err = f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, clinic.Cents(21500), got.Total)
	assert.False(t, got.Paid, "late line must reopen the invoice")
	assert.Contains(t, f.eventTypes(), events.TypeInvoiceReopened)

	// settling the difference closes it again
	_, err = f.rec.RecordPayment(ctx, inv.ID, 12000, clinic.MethodCash, "")
	require.NoError(t, err)
	got, _, err = f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
}

func TestOverpaymentStillCountsAsPaid(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	require.NoError(t, err)
	inv, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)

	_, err = f.rec.RecordPayment(ctx, inv.ID, 10000, clinic.MethodInsurance, "claim-42")
	require.NoError(t, err)
	got, _, err := f.rec.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
}

func TestLinesBeforeInvoicingAccumulateSilently(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.rec.AddTreatmentLine(ctx, f.apptID, f.botoxID, 1)
	require.NoError(t, err)
	_, err = f.rec.AddTreatmentLine(ctx, f.apptID, f.peelID, 2)
	require.NoError(t, err)
	assert.Empty(t, f.eventTypes())

	inv, err := f.rec.GenerateInvoice(ctx, f.apptID)
	require.NoError(t, err)
	assert.Equal(t, clinic.Cents(33500), inv.Total)
}
