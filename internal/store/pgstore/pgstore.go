// Package pgstore is the Postgres storage backend, built on pgx. The
// referential rules (cascade, restrict, set-null) live in the schema; this
// layer translates driver errors into the domain taxonomy and surfaces the
// rows the callers need for index bookkeeping.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

// DB is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements the entity repository against Postgres.
type Store struct {
	db DB
}

func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db required")
	}
	return &Store{db: db}
}

// pg error codes the domain cares about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// mapErr translates driver errors into domain sentinels. restrictAsState
// controls how foreign-key violations read: on deletes they mean the row is
// still referenced (invalid state), on inserts a referenced parent is
// missing (not found).
func mapErr(op string, err error, restrictAsState bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pgstore: %s: %w", op, clinic.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("pgstore: %s: %s: %w", op, pgErr.ConstraintName, clinic.ErrConflict)
		case codeSerializationFail, codeDeadlockDetected:
			return fmt.Errorf("pgstore: %s: %w", op, clinic.ErrConflict)
		case codeForeignKeyViolation:
			if restrictAsState {
				return fmt.Errorf("pgstore: %s: %s: %w", op, pgErr.ConstraintName, clinic.ErrInvalidState)
			}
			return fmt.Errorf("pgstore: %s: %s: %w", op, pgErr.ConstraintName, clinic.ErrNotFound)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("pgstore: %s: %w", op, err)
	}
	return fmt.Errorf("pgstore: %s: %v: %w", op, err, clinic.ErrUnavailable)
}

func insertErr(op string, err error) error { return mapErr(op, err, false) }
func deleteErr(op string, err error) error { return mapErr(op, err, true) }

func requireAffected(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: %s: %w", op, clinic.ErrNotFound)
	}
	return nil
}

// --- patients ---

func (s *Store) CreatePatient(ctx context.Context, p *clinic.Patient) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO patients (id, name, date_of_birth, gender, contact, address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.DateOfBirth, p.Gender, p.Contact, p.Address, p.CreatedAt)
	return insertErr("create patient", err)
}

func (s *Store) GetPatient(ctx context.Context, id uint64) (*clinic.Patient, error) {
	var p clinic.Patient
	err := s.db.QueryRow(ctx,
		`SELECT id, name, date_of_birth, gender, contact, address, created_at
		 FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.DateOfBirth, &p.Gender, &p.Contact, &p.Address, &p.CreatedAt)
	if err != nil {
		return nil, insertErr("get patient", err)
	}
	return &p, nil
}

func (s *Store) UpdatePatient(ctx context.Context, p *clinic.Patient) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE patients SET name = $2, date_of_birth = $3, gender = $4, contact = $5, address = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.DateOfBirth, p.Gender, p.Contact, p.Address)
	if err != nil {
		return insertErr("update patient", err)
	}
	return requireAffected("update patient", tag)
}

// DeletePatient relies on the schema cascades (appointments, lines,
// prescriptions) and returns the appointments that went with the patient so
// the caller can release their reservations.
func (s *Store) DeletePatient(ctx context.Context, id uint64) ([]clinic.Appointment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, insertErr("delete patient", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, appointmentColumns+` FROM appointments WHERE patient_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, insertErr("delete patient", err)
	}
	removed, err := scanAppointments(rows)
	if err != nil {
		return nil, insertErr("delete patient", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return nil, deleteErr("delete patient", err)
	}
	if err := requireAffected("delete patient", tag); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, insertErr("delete patient", err)
	}
	return removed, nil
}

// --- doctors ---

func (s *Store) CreateDoctor(ctx context.Context, d *clinic.Doctor) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO doctors (id, name, contact, specialty, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Name, d.Contact, d.Specialty, d.Active, d.CreatedAt)
	return insertErr("create doctor", err)
}

func (s *Store) GetDoctor(ctx context.Context, id uint64) (*clinic.Doctor, error) {
	var d clinic.Doctor
	err := s.db.QueryRow(ctx,
		`SELECT id, name, contact, specialty, active, created_at FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Contact, &d.Specialty, &d.Active, &d.CreatedAt)
	if err != nil {
		return nil, insertErr("get doctor", err)
	}
	return &d, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, d *clinic.Doctor) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE doctors SET name = $2, contact = $3, specialty = $4 WHERE id = $1`,
		d.ID, d.Name, d.Contact, d.Specialty)
	if err != nil {
		return insertErr("update doctor", err)
	}
	return requireAffected("update doctor", tag)
}

func (s *Store) SetDoctorActive(ctx context.Context, id uint64, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE doctors SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return insertErr("set doctor active", err)
	}
	return requireAffected("set doctor active", tag)
}

// DeleteDoctor is restricted by the schema while appointments reference the
// doctor; the violation surfaces as an invalid-state error.
func (s *Store) DeleteDoctor(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete doctor", err)
	}
	return requireAffected("delete doctor", tag)
}

// --- rooms ---

func (s *Store) CreateRoom(ctx context.Context, r *clinic.Room) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rooms (id, number, floor, description) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Number, r.Floor, r.Description)
	return insertErr("create room", err)
}

func (s *Store) GetRoom(ctx context.Context, id uint64) (*clinic.Room, error) {
	var r clinic.Room
	err := s.db.QueryRow(ctx,
		`SELECT id, number, floor, description FROM rooms WHERE id = $1`, id).
		Scan(&r.ID, &r.Number, &r.Floor, &r.Description)
	if err != nil {
		return nil, insertErr("get room", err)
	}
	return &r, nil
}

func (s *Store) UpdateRoom(ctx context.Context, r *clinic.Room) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE rooms SET number = $2, floor = $3, description = $4 WHERE id = $1`,
		r.ID, r.Number, r.Floor, r.Description)
	if err != nil {
		return insertErr("update room", err)
	}
	return requireAffected("update room", tag)
}

// DeleteRoom returns the appointments that referenced the room before the
// schema nulls the link, so room reservations can be released.
func (s *Store) DeleteRoom(ctx context.Context, id uint64) ([]clinic.Appointment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, insertErr("delete room", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, appointmentColumns+` FROM appointments WHERE room_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, insertErr("delete room", err)
	}
	affected, err := scanAppointments(rows)
	if err != nil {
		return nil, insertErr("delete room", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return nil, deleteErr("delete room", err)
	}
	if err := requireAffected("delete room", tag); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, insertErr("delete room", err)
	}
	return affected, nil
}

// --- treatments ---

func (s *Store) CreateTreatment(ctx context.Context, t *clinic.Treatment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO treatments (id, code, name, price_cents) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Code, t.Name, int64(t.Price))
	return insertErr("create treatment", err)
}

func (s *Store) GetTreatment(ctx context.Context, id uint64) (*clinic.Treatment, error) {
	var t clinic.Treatment
	var price int64
	err := s.db.QueryRow(ctx,
		`SELECT id, code, name, price_cents FROM treatments WHERE id = $1`, id).
		Scan(&t.ID, &t.Code, &t.Name, &price)
	if err != nil {
		return nil, insertErr("get treatment", err)
	}
	t.Price = clinic.Cents(price)
	return &t, nil
}

func (s *Store) UpdateTreatment(ctx context.Context, t *clinic.Treatment) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE treatments SET code = $2, name = $3, price_cents = $4 WHERE id = $1`,
		t.ID, t.Code, t.Name, int64(t.Price))
	if err != nil {
		return insertErr("update treatment", err)
	}
	return requireAffected("update treatment", tag)
}

func (s *Store) DeleteTreatment(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM treatments WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete treatment", err)
	}
	return requireAffected("delete treatment", tag)
}

// --- medications ---

func (s *Store) CreateMedication(ctx context.Context, m *clinic.Medication) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO medications (id, name, strength, form, manufacturer)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Strength, m.Form, m.Manufacturer)
	return insertErr("create medication", err)
}

func (s *Store) GetMedication(ctx context.Context, id uint64) (*clinic.Medication, error) {
	var m clinic.Medication
	err := s.db.QueryRow(ctx,
		`SELECT id, name, strength, form, manufacturer FROM medications WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Strength, &m.Form, &m.Manufacturer)
	if err != nil {
		return nil, insertErr("get medication", err)
	}
	return &m, nil
}

func (s *Store) DeleteMedication(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete medication", err)
	}
	return requireAffected("delete medication", tag)
}

// --- appointments ---

const appointmentColumns = `SELECT id, patient_id, doctor_id, room_id, start_at, end_at, status, reason, notes, created_at`

func scanAppointment(row pgx.Row) (*clinic.Appointment, error) {
	var a clinic.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.RoomID, &a.Start, &a.End,
		&a.Status, &a.Reason, &a.Notes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]clinic.Appointment, error) {
	defer rows.Close()
	var out []clinic.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, a *clinic.Appointment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO appointments (id, patient_id, doctor_id, room_id, start_at, end_at, status, reason, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.PatientID, a.DoctorID, a.RoomID, a.Start, a.End, a.Status, a.Reason, a.Notes, a.CreatedAt)
	return insertErr("create appointment", err)
}

func (s *Store) GetAppointment(ctx context.Context, id uint64) (*clinic.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx, appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, insertErr("get appointment", err)
	}
	return a, nil
}

func (s *Store) UpdateAppointmentTimes(ctx context.Context, id uint64, start time.Time, end *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE appointments SET start_at = $2, end_at = $3 WHERE id = $1`, id, start, end)
	if err != nil {
		return insertErr("update appointment times", err)
	}
	return requireAffected("update appointment times", tag)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uint64, status clinic.Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE appointments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return insertErr("update appointment status", err)
	}
	return requireAffected("update appointment status", tag)
}

// DeleteAppointment relies on the schema: treatment lines cascade, invoice
// and prescription links null out.
func (s *Store) DeleteAppointment(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete appointment", err)
	}
	return requireAffected("delete appointment", tag)
}

func (s *Store) ListAppointmentsByPatient(ctx context.Context, patientID uint64) ([]clinic.Appointment, error) {
	rows, err := s.db.Query(ctx,
		appointmentColumns+` FROM appointments WHERE patient_id = $1 ORDER BY id`, patientID)
	if err != nil {
		return nil, insertErr("list appointments by patient", err)
	}
	out, err := scanAppointments(rows)
	if err != nil {
		return nil, insertErr("list appointments by patient", err)
	}
	return out, nil
}

func (s *Store) ListOpenAppointments(ctx context.Context) ([]clinic.Appointment, error) {
	rows, err := s.db.Query(ctx,
		appointmentColumns+` FROM appointments WHERE status NOT IN ('completed', 'cancelled', 'no_show') ORDER BY id`)
	if err != nil {
		return nil, insertErr("list open appointments", err)
	}
	out, err := scanAppointments(rows)
	if err != nil {
		return nil, insertErr("list open appointments", err)
	}
	return out, nil
}

// --- treatment lines ---

func (s *Store) PutTreatmentLine(ctx context.Context, line *clinic.TreatmentLine) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO treatment_lines (appointment_id, treatment_id, quantity, unit_price_cents)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (appointment_id, treatment_id)
		 DO UPDATE SET quantity = EXCLUDED.quantity, unit_price_cents = EXCLUDED.unit_price_cents`,
		line.AppointmentID, line.TreatmentID, line.Quantity, int64(line.UnitPrice))
	return insertErr("put treatment line", err)
}

func (s *Store) ListTreatmentLines(ctx context.Context, appointmentID uint64) ([]clinic.TreatmentLine, error) {
	rows, err := s.db.Query(ctx,
		`SELECT appointment_id, treatment_id, quantity, unit_price_cents
		 FROM treatment_lines WHERE appointment_id = $1 ORDER BY treatment_id`, appointmentID)
	if err != nil {
		return nil, insertErr("list treatment lines", err)
	}
	defer rows.Close()
	var out []clinic.TreatmentLine
	for rows.Next() {
		var line clinic.TreatmentLine
		var price int64
		if err := rows.Scan(&line.AppointmentID, &line.TreatmentID, &line.Quantity, &price); err != nil {
			return nil, insertErr("list treatment lines", err)
		}
		line.UnitPrice = clinic.Cents(price)
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, insertErr("list treatment lines", err)
	}
	return out, nil
}

// --- invoices ---

func (s *Store) CreateInvoice(ctx context.Context, inv *clinic.Invoice) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO invoices (id, appointment_id, total_cents, issued_at, paid, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		inv.ID, inv.AppointmentID, int64(inv.Total), inv.IssuedAt, inv.Paid, inv.Notes)
	return insertErr("create invoice", err)
}

func scanInvoice(row pgx.Row) (*clinic.Invoice, error) {
	var inv clinic.Invoice
	var total int64
	err := row.Scan(&inv.ID, &inv.AppointmentID, &total, &inv.IssuedAt, &inv.Paid, &inv.Notes)
	if err != nil {
		return nil, err
	}
	inv.Total = clinic.Cents(total)
	return &inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id uint64) (*clinic.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx,
		`SELECT id, appointment_id, total_cents, issued_at, paid, notes FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, insertErr("get invoice", err)
	}
	return inv, nil
}

func (s *Store) GetInvoiceByAppointment(ctx context.Context, appointmentID uint64) (*clinic.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx,
		`SELECT id, appointment_id, total_cents, issued_at, paid, notes
		 FROM invoices WHERE appointment_id = $1`, appointmentID))
	if err != nil {
		return nil, insertErr("get invoice by appointment", err)
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *clinic.Invoice) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE invoices SET total_cents = $2, paid = $3, notes = $4 WHERE id = $1`,
		inv.ID, int64(inv.Total), inv.Paid, inv.Notes)
	if err != nil {
		return insertErr("update invoice", err)
	}
	return requireAffected("update invoice", tag)
}

func (s *Store) DeleteInvoice(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete invoice", err)
	}
	return requireAffected("delete invoice", tag)
}

// --- payments ---

func (s *Store) CreatePayment(ctx context.Context, p *clinic.Payment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO payments (id, invoice_id, paid_at, amount_cents, method, reference)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.InvoiceID, p.PaidAt, int64(p.Amount), p.Method, p.Reference)
	return insertErr("create payment", err)
}

func (s *Store) ListPayments(ctx context.Context, invoiceID uint64) ([]clinic.Payment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, invoice_id, paid_at, amount_cents, method, reference
		 FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, insertErr("list payments", err)
	}
	defer rows.Close()
	var out []clinic.Payment
	for rows.Next() {
		var p clinic.Payment
		var amount int64
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PaidAt, &amount, &p.Method, &p.Reference); err != nil {
			return nil, insertErr("list payments", err)
		}
		p.Amount = clinic.Cents(amount)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, insertErr("list payments", err)
	}
	return out, nil
}

// --- prescriptions ---

func (s *Store) CreatePrescription(ctx context.Context, p *clinic.Prescription) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO prescriptions (id, patient_id, appointment_id, doctor_id, issued_at, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PatientID, p.AppointmentID, p.DoctorID, p.IssuedAt, p.Notes)
	return insertErr("create prescription", err)
}

func scanPrescription(row pgx.Row) (*clinic.Prescription, error) {
	var p clinic.Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.AppointmentID, &p.DoctorID, &p.IssuedAt, &p.Notes)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPrescription(ctx context.Context, id uint64) (*clinic.Prescription, error) {
	p, err := scanPrescription(s.db.QueryRow(ctx,
		`SELECT id, patient_id, appointment_id, doctor_id, issued_at, notes
		 FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return nil, insertErr("get prescription", err)
	}
	return p, nil
}

func (s *Store) PutPrescriptionItem(ctx context.Context, item *clinic.PrescriptionItem) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO prescription_items (prescription_id, medication_id, dosage, frequency, duration, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (prescription_id, medication_id)
		 DO UPDATE SET dosage = EXCLUDED.dosage, frequency = EXCLUDED.frequency,
		               duration = EXCLUDED.duration, notes = EXCLUDED.notes`,
		item.PrescriptionID, item.MedicationID, item.Dosage, item.Frequency, item.Duration, item.Notes)
	return insertErr("put prescription item", err)
}

func (s *Store) ListPrescriptionItems(ctx context.Context, prescriptionID uint64) ([]clinic.PrescriptionItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT prescription_id, medication_id, dosage, frequency, duration, notes
		 FROM prescription_items WHERE prescription_id = $1 ORDER BY medication_id`, prescriptionID)
	if err != nil {
		return nil, insertErr("list prescription items", err)
	}
	defer rows.Close()
	var out []clinic.PrescriptionItem
	for rows.Next() {
		var item clinic.PrescriptionItem
		if err := rows.Scan(&item.PrescriptionID, &item.MedicationID, &item.Dosage,
			&item.Frequency, &item.Duration, &item.Notes); err != nil {
			return nil, insertErr("list prescription items", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, insertErr("list prescription items", err)
	}
	return out, nil
}

func (s *Store) DeletePrescription(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete prescription", err)
	}
	return requireAffected("delete prescription", tag)
}

func (s *Store) ListPrescriptionsByPatient(ctx context.Context, patientID uint64) ([]clinic.Prescription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, patient_id, appointment_id, doctor_id, issued_at, notes
		 FROM prescriptions WHERE patient_id = $1 ORDER BY id`, patientID)
	if err != nil {
		return nil, insertErr("list prescriptions by patient", err)
	}
	defer rows.Close()
	var out []clinic.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, insertErr("list prescriptions by patient", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, insertErr("list prescriptions by patient", err)
	}
	return out, nil
}
