// Package events carries appointment and billing lifecycle events to
// interested consumers. Two publishers exist: an in-process fan-out used
// with the memory store, and a Postgres outbox for reliable delivery.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeAppointmentScheduled   = "appointment.scheduled"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentStatus      = "appointment.status_changed"
	TypeInvoiceGenerated       = "invoice.generated"
	TypeInvoicePaid            = "invoice.paid"
	TypeInvoiceReopened        = "invoice.reopened"
	TypePaymentRecorded        = "payment.recorded"
)

// Event is one lifecycle fact. Zero-valued reference fields are omitted from
// the serialized payload.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	AppointmentID  uint64    `json:"appointment_id,omitempty"`
	PatientID      uint64    `json:"patient_id,omitempty"`
	InvoiceID      uint64    `json:"invoice_id,omitempty"`
	PaymentID      uint64    `json:"payment_id,omitempty"`
	PrescriptionID uint64    `json:"prescription_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Total          string    `json:"total,omitempty"`
}

// Publisher accepts engine events. Implementations must not block the
// calling operation on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher fans events out to registered subscribers synchronously.
// Used with the in-memory store and in tests.
type MemoryPublisher struct {
	mu   sync.Mutex
	subs []func(Event)
	log  []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Subscribe registers a callback invoked for every published event.
func (p *MemoryPublisher) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

func (p *MemoryPublisher) Publish(_ context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	p.mu.Lock()
	p.log = append(p.log, ev)
	subs := make([]func(Event), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.log))
	copy(out, p.log)
	return out
}
