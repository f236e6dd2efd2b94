// Package billing keeps invoice totals consistent with billed treatment
// lines and recorded payments.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
	"github.com/oakmed/clinic-scheduler/internal/events"
	"github.com/oakmed/clinic-scheduler/internal/observability/metrics"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.billing")

const defaultRetryAttempts = 3

// Store is the slice of the entity repository the reconciler needs.
type Store interface {
	GetAppointment(ctx context.Context, id uint64) (*clinic.Appointment, error)
	GetTreatment(ctx context.Context, id uint64) (*clinic.Treatment, error)
	PutTreatmentLine(ctx context.Context, line *clinic.TreatmentLine) error
	ListTreatmentLines(ctx context.Context, appointmentID uint64) ([]clinic.TreatmentLine, error)
	CreateInvoice(ctx context.Context, inv *clinic.Invoice) error
	GetInvoice(ctx context.Context, id uint64) (*clinic.Invoice, error)
	GetInvoiceByAppointment(ctx context.Context, appointmentID uint64) (*clinic.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *clinic.Invoice) error
	CreatePayment(ctx context.Context, p *clinic.Payment) error
	ListPayments(ctx context.Context, invoiceID uint64) ([]clinic.Payment, error)
}

// Config carries the reconciler's collaborators.
type Config struct {
	Store         Store
	IDs           clinic.IDAllocator
	Publisher     events.Publisher
	Clock         clinic.Clock
	Logger        *logging.Logger
	Metrics       *metrics.BillingMetrics
	RetryAttempts int
}

// Reconciler derives invoice totals, applies payments and maintains the
// paid flag. One invoice per appointment, totals in integer cents.
type Reconciler struct {
	store         Store
	ids           clinic.IDAllocator
	publisher     events.Publisher
	clock         clinic.Clock
	logger        *logging.Logger
	metrics       *metrics.BillingMetrics
	retryAttempts int
	locks         *keyedLocks
}

func NewReconciler(cfg Config) *Reconciler {
	if cfg.Store == nil {
		panic("billing: store required")
	}
	if cfg.IDs == nil {
		panic("billing: id allocator required")
	}
	r := &Reconciler{
		store:         cfg.Store,
		ids:           cfg.IDs,
		publisher:     cfg.Publisher,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		retryAttempts: cfg.RetryAttempts,
		locks:         newKeyedLocks(),
	}
	if r.publisher == nil {
		r.publisher = events.NopPublisher{}
	}
	if r.clock == nil {
		r.clock = clinic.RealClock()
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	if r.retryAttempts <= 0 {
		r.retryAttempts = defaultRetryAttempts
	}
	return r
}

// AddTreatmentLine bills a treatment on an appointment. The catalog price is
// frozen into the line at first capture; re-adding the same treatment
// aggregates quantity at that frozen price. When an invoice exists its total
// is recomputed and the paid flag re-evaluated — a late line on a paid
// invoice flips it back to unpaid.
func (r *Reconciler) AddTreatmentLine(ctx context.Context, appointmentID, treatmentID uint64, quantity int32) (*clinic.TreatmentLine, error) {
	ctx, span := tracer.Start(ctx, "billing.add_treatment_line")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.appointment_id", int64(appointmentID)),
		attribute.Int64("clinic.treatment_id", int64(treatmentID)),
	)

	if quantity < 1 {
		return nil, fmt.Errorf("billing: quantity %d: %w", quantity, clinic.ErrInvalidAmount)
	}

	unlock := r.locks.lock(appointmentKey(appointmentID))
	defer unlock()

	appt, err := r.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("billing: appointment lookup: %w", err)
	}
	if appt.Status == clinic.StatusCancelled || appt.Status == clinic.StatusNoShow {
		return nil, fmt.Errorf("billing: appointment %d is %s: %w", appointmentID, appt.Status, clinic.ErrInvalidState)
	}
	treatment, err := r.store.GetTreatment(ctx, treatmentID)
	if err != nil {
		return nil, fmt.Errorf("billing: treatment lookup: %w", err)
	}

	lines, err := r.store.ListTreatmentLines(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("billing: list lines: %w", err)
	}
	line := clinic.TreatmentLine{
		AppointmentID: appointmentID,
		TreatmentID:   treatmentID,
		Quantity:      quantity,
		UnitPrice:     treatment.Price,
	}
	for _, existing := range lines {
		if existing.TreatmentID == treatmentID {
			line.Quantity = existing.Quantity + quantity
			line.UnitPrice = existing.UnitPrice // frozen at first capture
			break
		}
	}
	err = clinic.WithRetry(ctx, r.retryAttempts, func() error {
		return r.store.PutTreatmentLine(ctx, &line)
	})
	if err != nil {
		return nil, fmt.Errorf("billing: persist line: %w", err)
	}

	if err := r.reconcileInvoice(ctx, appointmentID); err != nil {
		return nil, err
	}
	return &line, nil
}

// GenerateInvoice creates the appointment's invoice exactly once; repeat
// calls return the existing invoice unchanged.
func (r *Reconciler) GenerateInvoice(ctx context.Context, appointmentID uint64) (*clinic.Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.generate_invoice")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.appointment_id", int64(appointmentID)))

	unlock := r.locks.lock(appointmentKey(appointmentID))
	defer unlock()

	if _, err := r.store.GetAppointment(ctx, appointmentID); err != nil {
		return nil, fmt.Errorf("billing: appointment lookup: %w", err)
	}
	if inv, err := r.store.GetInvoiceByAppointment(ctx, appointmentID); err == nil {
		return inv, nil
	} else if !errors.Is(err, clinic.ErrNotFound) {
		return nil, fmt.Errorf("billing: invoice lookup: %w", err)
	}

	total, err := r.computeTotal(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	id, err := r.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: allocate id: %w", err)
	}
	inv := &clinic.Invoice{
		ID:            id,
		AppointmentID: &appointmentID,
		Total:         total,
		IssuedAt:      r.clock.Now(),
		Paid:          false,
	}
	err = clinic.WithRetry(ctx, r.retryAttempts, func() error {
		return r.store.CreateInvoice(ctx, inv)
	})
	if err != nil {
		// lost an idempotency race: another writer invoiced first
		if errors.Is(err, clinic.ErrConflict) {
			if existing, lookupErr := r.store.GetInvoiceByAppointment(ctx, appointmentID); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("billing: persist invoice: %w", err)
	}

	r.metrics.ObserveInvoiceGenerated()
	r.logger.Info("invoice generated", "invoice_id", inv.ID, "appointment_id", appointmentID, "total", inv.Total)
	r.publish(ctx, events.Event{
		Type:          events.TypeInvoiceGenerated,
		AppointmentID: appointmentID,
		InvoiceID:     inv.ID,
		Total:         inv.Total.String(),
	})
	return inv, nil
}

// RecordPayment appends a payment and re-evaluates the paid flag: paid is
// true iff the payment sum covers the total. Overpayment still counts as
// paid; underpayment leaves the invoice open.
func (r *Reconciler) RecordPayment(ctx context.Context, invoiceID uint64, amount clinic.Cents, method clinic.PaymentMethod, reference string) (*clinic.Payment, error) {
	ctx, span := tracer.Start(ctx, "billing.record_payment")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.invoice_id", int64(invoiceID)))

	if amount <= 0 {
		return nil, fmt.Errorf("billing: payment amount %s: %w", amount, clinic.ErrInvalidAmount)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("billing: unknown payment method %q: %w", method, clinic.ErrInvalidAmount)
	}

	// peek to choose the lock key, then re-read under the lock
	peek, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("billing: invoice lookup: %w", err)
	}
	unlock := r.locks.lock(invoiceLockKey(peek))
	defer unlock()

	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("billing: invoice lookup: %w", err)
	}

	if reference == "" {
		reference = uuid.NewString()
	}
	id, err := r.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: allocate id: %w", err)
	}
	payment := &clinic.Payment{
		ID:        id,
		InvoiceID: invoiceID,
		PaidAt:    r.clock.Now(),
		Amount:    amount,
		Method:    method,
		Reference: reference,
	}
	err = clinic.WithRetry(ctx, r.retryAttempts, func() error {
		return r.store.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, fmt.Errorf("billing: persist payment: %w", err)
	}

	paid, err := r.paymentsCover(ctx, invoiceID, inv.Total)
	if err != nil {
		return nil, err
	}
	if paid != inv.Paid {
		inv.Paid = paid
		err = clinic.WithRetry(ctx, r.retryAttempts, func() error {
			return r.store.UpdateInvoice(ctx, inv)
		})
		if err != nil {
			return nil, fmt.Errorf("billing: persist paid flag: %w", err)
		}
		if paid {
			r.publish(ctx, events.Event{
				Type:      events.TypeInvoicePaid,
				InvoiceID: invoiceID,
				Total:     inv.Total.String(),
			})
		}
	}

	r.metrics.ObservePayment(string(method))
	r.logger.Info("payment recorded",
		"invoice_id", invoiceID,
		"payment_id", payment.ID,
		"amount", amount,
		"method", method,
		"paid", inv.Paid,
	)
	r.publish(ctx, events.Event{
		Type:      events.TypePaymentRecorded,
		InvoiceID: invoiceID,
		PaymentID: payment.ID,
		Total:     amount.String(),
	})
	return payment, nil
}

// Invoice returns an invoice with its payments.
func (r *Reconciler) Invoice(ctx context.Context, invoiceID uint64) (*clinic.Invoice, []clinic.Payment, error) {
	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("billing: invoice lookup: %w", err)
	}
	payments, err := r.store.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("billing: list payments: %w", err)
	}
	return inv, payments, nil
}

// reconcileInvoice recomputes the total after a line change and re-evaluates
// the paid flag, surfacing a paid->unpaid flip as an event.
func (r *Reconciler) reconcileInvoice(ctx context.Context, appointmentID uint64) error {
	inv, err := r.store.GetInvoiceByAppointment(ctx, appointmentID)
	if errors.Is(err, clinic.ErrNotFound) {
		return nil // lines before invoicing accumulate silently
	}
	if err != nil {
		return fmt.Errorf("billing: invoice lookup: %w", err)
	}

	total, err := r.computeTotal(ctx, appointmentID)
	if err != nil {
		return err
	}
	paid, err := r.paymentsCover(ctx, inv.ID, total)
	if err != nil {
		return err
	}

	wasPaid := inv.Paid
	if total == inv.Total && paid == inv.Paid {
		return nil
	}
	inv.Total = total
	inv.Paid = paid
	err = clinic.WithRetry(ctx, r.retryAttempts, func() error {
		return r.store.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("billing: persist total: %w", err)
	}

	if wasPaid && !paid {
		r.metrics.ObserveInvoiceReopened()
		r.logger.Warn("paid invoice reopened by late treatment line", "invoice_id", inv.ID, "total", total)
		r.publish(ctx, events.Event{
			Type:          events.TypeInvoiceReopened,
			AppointmentID: appointmentID,
			InvoiceID:     inv.ID,
			Total:         total.String(),
		})
	}
	return nil
}

// computeTotal sums quantity x frozen unit price over the appointment's
// lines. Integer cents throughout, so the two-decimal result is exact.
func (r *Reconciler) computeTotal(ctx context.Context, appointmentID uint64) (clinic.Cents, error) {
	lines, err := r.store.ListTreatmentLines(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("billing: list lines: %w", err)
	}
	var total clinic.Cents
	for _, line := range lines {
		total += line.UnitPrice.MulQty(line.Quantity)
	}
	return total, nil
}

func (r *Reconciler) paymentsCover(ctx context.Context, invoiceID uint64, total clinic.Cents) (bool, error) {
	payments, err := r.store.ListPayments(ctx, invoiceID)
	if err != nil {
		return false, fmt.Errorf("billing: list payments: %w", err)
	}
	var sum clinic.Cents
	for _, p := range payments {
		sum += p.Amount
	}
	return sum >= total, nil
}

func (r *Reconciler) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = r.clock.Now()
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Error("event publish failed", "type", ev.Type, "error", err)
	}
}

func appointmentKey(id uint64) string {
	return fmt.Sprintf("appt/%d", id)
}

func invoiceLockKey(inv *clinic.Invoice) string {
	if inv.AppointmentID != nil {
		return appointmentKey(*inv.AppointmentID)
	}
	return fmt.Sprintf("inv/%d", inv.ID)
}
