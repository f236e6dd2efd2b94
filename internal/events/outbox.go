package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// outboxDB is the slice of the pgx pool the outbox needs; pgxmock satisfies
// it in tests.
type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Outbox persists events in the same database as the domain rows so a
// crashed process never loses a committed fact. Implements Publisher.
type Outbox struct {
	db outboxDB
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &Outbox{db: pool}
}

func newOutboxWithDB(db outboxDB) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) Publish(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	query := `
		INSERT INTO outbox (id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := o.db.Exec(ctx, query, ev.ID, ev.Type, payload, ev.OccurredAt); err != nil {
		return fmt.Errorf("events: insert outbox: %w", err)
	}
	return nil
}

// PendingEntry is an undelivered outbox row.
type PendingEntry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

func (o *Outbox) FetchPending(ctx context.Context, limit int32) ([]PendingEntry, error) {
	query := `
		SELECT id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := o.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []PendingEntry
	for rows.Next() {
		var entry PendingEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (o *Outbox) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := o.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// DeliveryHandler consumes pending outbox entries.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry PendingEntry) error
}

// DeliveryHandlerFunc adapts a func to DeliveryHandler.
type DeliveryHandlerFunc func(ctx context.Context, entry PendingEntry) error

func (f DeliveryHandlerFunc) Handle(ctx context.Context, entry PendingEntry) error {
	return f(ctx, entry)
}

// Deliverer polls the outbox and invokes the handler for each pending entry.
type Deliverer struct {
	outbox    *Outbox
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(outbox *Outbox, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		outbox:    outbox,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start blocks until ctx is done, draining pending entries on a ticker.
func (d *Deliverer) Start(ctx context.Context) {
	if d.outbox == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "event_id", entry.ID, "type", entry.Type, "error", err)
			continue
		}
		if _, err := d.outbox.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("outbox mark delivered failed", "event_id", entry.ID, "error", err)
		}
	}
}
