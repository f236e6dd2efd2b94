// Package memstore is the in-memory storage backend. It enforces the same
// referential rules as the Postgres backend — restrict, cascade and set-null
// behavior implemented as explicit steps so they stay visible and testable.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

// Store keeps every entity in maps guarded by one RWMutex. Write operations
// are serialized, which is the single-writer transaction boundary the
// engine's all-or-nothing semantics need.
type Store struct {
	mu sync.RWMutex

	patients      map[uint64]clinic.Patient
	doctors       map[uint64]clinic.Doctor
	rooms         map[uint64]clinic.Room
	treatments    map[uint64]clinic.Treatment
	medications   map[uint64]clinic.Medication
	appointments  map[uint64]clinic.Appointment
	lines         map[uint64]map[uint64]clinic.TreatmentLine // appointment -> treatment -> line
	invoices      map[uint64]clinic.Invoice
	payments      map[uint64][]clinic.Payment // invoice -> payments
	prescriptions map[uint64]clinic.Prescription
	items         map[uint64]map[uint64]clinic.PrescriptionItem // prescription -> medication -> item
}

func New() *Store {
	return &Store{
		patients:      make(map[uint64]clinic.Patient),
		doctors:       make(map[uint64]clinic.Doctor),
		rooms:         make(map[uint64]clinic.Room),
		treatments:    make(map[uint64]clinic.Treatment),
		medications:   make(map[uint64]clinic.Medication),
		appointments:  make(map[uint64]clinic.Appointment),
		lines:         make(map[uint64]map[uint64]clinic.TreatmentLine),
		invoices:      make(map[uint64]clinic.Invoice),
		payments:      make(map[uint64][]clinic.Payment),
		prescriptions: make(map[uint64]clinic.Prescription),
		items:         make(map[uint64]map[uint64]clinic.PrescriptionItem),
	}
}

// --- patients ---

func (s *Store) CreatePatient(_ context.Context, p *clinic.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; ok {
		return fmt.Errorf("memstore: patient %d exists: %w", p.ID, clinic.ErrConflict)
	}
	s.patients[p.ID] = *p
	return nil
}

func (s *Store) GetPatient(_ context.Context, id uint64) (*clinic.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, fmt.Errorf("memstore: patient %d: %w", id, clinic.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) UpdatePatient(_ context.Context, p *clinic.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; !ok {
		return fmt.Errorf("memstore: patient %d: %w", p.ID, clinic.ErrNotFound)
	}
	s.patients[p.ID] = *p
	return nil
}

// DeletePatient removes the patient and cascades to their appointments
// (with treatment lines, invoice and prescription links handled per rule)
// and prescriptions. The removed appointments are returned so the caller
// can release their reservations.
func (s *Store) DeletePatient(_ context.Context, id uint64) ([]clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok {
		return nil, fmt.Errorf("memstore: patient %d: %w", id, clinic.ErrNotFound)
	}

	var removed []clinic.Appointment
	for apptID, appt := range s.appointments {
		if appt.PatientID != id {
			continue
		}
		removed = append(removed, appt)
		s.deleteAppointmentLocked(apptID)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })

	for prescID, presc := range s.prescriptions {
		if presc.PatientID == id {
			delete(s.prescriptions, prescID)
			delete(s.items, prescID)
		}
	}
	delete(s.patients, id)
	return removed, nil
}

// --- doctors ---

func (s *Store) CreateDoctor(_ context.Context, d *clinic.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[d.ID]; ok {
		return fmt.Errorf("memstore: doctor %d exists: %w", d.ID, clinic.ErrConflict)
	}
	s.doctors[d.ID] = *d
	return nil
}

func (s *Store) GetDoctor(_ context.Context, id uint64) (*clinic.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("memstore: doctor %d: %w", id, clinic.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) UpdateDoctor(_ context.Context, d *clinic.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[d.ID]; !ok {
		return fmt.Errorf("memstore: doctor %d: %w", d.ID, clinic.ErrNotFound)
	}
	s.doctors[d.ID] = *d
	return nil
}

func (s *Store) SetDoctorActive(_ context.Context, id uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return fmt.Errorf("memstore: doctor %d: %w", id, clinic.ErrNotFound)
	}
	d.Active = active
	s.doctors[id] = d
	return nil
}

// DeleteDoctor refuses while any appointment references the doctor.
func (s *Store) DeleteDoctor(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[id]; !ok {
		return fmt.Errorf("memstore: doctor %d: %w", id, clinic.ErrNotFound)
	}
	for _, appt := range s.appointments {
		if appt.DoctorID == id {
			return fmt.Errorf("memstore: doctor %d referenced by appointment %d: %w", id, appt.ID, clinic.ErrInvalidState)
		}
	}
	delete(s.doctors, id)
	return nil
}

// --- rooms ---

func (s *Store) CreateRoom(_ context.Context, r *clinic.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return fmt.Errorf("memstore: room %d exists: %w", r.ID, clinic.ErrConflict)
	}
	for _, other := range s.rooms {
		if other.Number == r.Number {
			return fmt.Errorf("memstore: room number %q taken: %w", r.Number, clinic.ErrConflict)
		}
	}
	s.rooms[r.ID] = *r
	return nil
}

func (s *Store) GetRoom(_ context.Context, id uint64) (*clinic.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("memstore: room %d: %w", id, clinic.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) UpdateRoom(_ context.Context, r *clinic.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; !ok {
		return fmt.Errorf("memstore: room %d: %w", r.ID, clinic.ErrNotFound)
	}
	s.rooms[r.ID] = *r
	return nil
}

// DeleteRoom nulls the room reference on appointments and returns the
// affected ones (pre-mutation) so room reservations can be released.
func (s *Store) DeleteRoom(_ context.Context, id uint64) ([]clinic.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return nil, fmt.Errorf("memstore: room %d: %w", id, clinic.ErrNotFound)
	}
	var affected []clinic.Appointment
	for apptID, appt := range s.appointments {
		if appt.RoomID != nil && *appt.RoomID == id {
			affected = append(affected, appt)
			appt.RoomID = nil
			s.appointments[apptID] = appt
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i].ID < affected[j].ID })
	delete(s.rooms, id)
	return affected, nil
}

// --- treatments ---

func (s *Store) CreateTreatment(_ context.Context, t *clinic.Treatment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.treatments[t.ID]; ok {
		return fmt.Errorf("memstore: treatment %d exists: %w", t.ID, clinic.ErrConflict)
	}
	for _, other := range s.treatments {
		if other.Code == t.Code {
			return fmt.Errorf("memstore: treatment code %q taken: %w", t.Code, clinic.ErrConflict)
		}
	}
	s.treatments[t.ID] = *t
	return nil
}

func (s *Store) GetTreatment(_ context.Context, id uint64) (*clinic.Treatment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.treatments[id]
	if !ok {
		return nil, fmt.Errorf("memstore: treatment %d: %w", id, clinic.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) UpdateTreatment(_ context.Context, t *clinic.Treatment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.treatments[t.ID]; !ok {
		return fmt.Errorf("memstore: treatment %d: %w", t.ID, clinic.ErrNotFound)
	}
	s.treatments[t.ID] = *t
	return nil
}

func (s *Store) DeleteTreatment(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.treatments[id]; !ok {
		return fmt.Errorf("memstore: treatment %d: %w", id, clinic.ErrNotFound)
	}
	for apptID, byTreatment := range s.lines {
		if _, ok := byTreatment[id]; ok {
			return fmt.Errorf("memstore: treatment %d billed on appointment %d: %w", id, apptID, clinic.ErrInvalidState)
		}
	}
	delete(s.treatments, id)
	return nil
}

// --- medications ---

func (s *Store) CreateMedication(_ context.Context, m *clinic.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medications[m.ID]; ok {
		return fmt.Errorf("memstore: medication %d exists: %w", m.ID, clinic.ErrConflict)
	}
	for _, other := range s.medications {
		if other.Name == m.Name && other.Strength == m.Strength && other.Form == m.Form {
			return fmt.Errorf("memstore: medication %s %s %s exists: %w", m.Name, m.Strength, m.Form, clinic.ErrConflict)
		}
	}
	s.medications[m.ID] = *m
	return nil
}

func (s *Store) GetMedication(_ context.Context, id uint64) (*clinic.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.medications[id]
	if !ok {
		return nil, fmt.Errorf("memstore: medication %d: %w", id, clinic.ErrNotFound)
	}
	return &m, nil
}

func (s *Store) DeleteMedication(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medications[id]; !ok {
		return fmt.Errorf("memstore: medication %d: %w", id, clinic.ErrNotFound)
	}
	for prescID, byMed := range s.items {
		if _, ok := byMed[id]; ok {
			return fmt.Errorf("memstore: medication %d prescribed on %d: %w", id, prescID, clinic.ErrInvalidState)
		}
	}
	delete(s.medications, id)
	return nil
}

// --- appointments ---

func (s *Store) CreateAppointment(_ context.Context, a *clinic.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[a.ID]; ok {
		return fmt.Errorf("memstore: appointment %d exists: %w", a.ID, clinic.ErrConflict)
	}
	if _, ok := s.patients[a.PatientID]; !ok {
		return fmt.Errorf("memstore: patient %d: %w", a.PatientID, clinic.ErrNotFound)
	}
	if _, ok := s.doctors[a.DoctorID]; !ok {
		return fmt.Errorf("memstore: doctor %d: %w", a.DoctorID, clinic.ErrNotFound)
	}
	if a.RoomID != nil {
		if _, ok := s.rooms[*a.RoomID]; !ok {
			return fmt.Errorf("memstore: room %d: %w", *a.RoomID, clinic.ErrNotFound)
		}
	}
	s.appointments[a.ID] = *a
	return nil
}

func (s *Store) GetAppointment(_ context.Context, id uint64) (*clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("memstore: appointment %d: %w", id, clinic.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) UpdateAppointmentTimes(_ context.Context, id uint64, start time.Time, end *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("memstore: appointment %d: %w", id, clinic.ErrNotFound)
	}
	a.Start = start
	a.End = end
	s.appointments[id] = a
	return nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id uint64, status clinic.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("memstore: appointment %d: %w", id, clinic.ErrNotFound)
	}
	a.Status = status
	s.appointments[id] = a
	return nil
}

// DeleteAppointment cascades to treatment lines and nulls the invoice and
// prescription links, retaining both records.
func (s *Store) DeleteAppointment(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[id]; !ok {
		return fmt.Errorf("memstore: appointment %d: %w", id, clinic.ErrNotFound)
	}
	s.deleteAppointmentLocked(id)
	return nil
}

func (s *Store) deleteAppointmentLocked(id uint64) {
	delete(s.lines, id)
	for invID, inv := range s.invoices {
		if inv.AppointmentID != nil && *inv.AppointmentID == id {
			inv.AppointmentID = nil
			s.invoices[invID] = inv
		}
	}
	for prescID, presc := range s.prescriptions {
		if presc.AppointmentID != nil && *presc.AppointmentID == id {
			presc.AppointmentID = nil
			s.prescriptions[prescID] = presc
		}
	}
	delete(s.appointments, id)
}

func (s *Store) ListAppointmentsByPatient(_ context.Context, patientID uint64) ([]clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListOpenAppointments returns every non-terminal appointment, used to
// rebuild the availability index at startup.
func (s *Store) ListOpenAppointments(_ context.Context) ([]clinic.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.Appointment
	for _, a := range s.appointments {
		if !a.Status.Terminal() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- treatment lines ---

func (s *Store) PutTreatmentLine(_ context.Context, line *clinic.TreatmentLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[line.AppointmentID]; !ok {
		return fmt.Errorf("memstore: appointment %d: %w", line.AppointmentID, clinic.ErrNotFound)
	}
	if _, ok := s.treatments[line.TreatmentID]; !ok {
		return fmt.Errorf("memstore: treatment %d: %w", line.TreatmentID, clinic.ErrNotFound)
	}
	byTreatment := s.lines[line.AppointmentID]
	if byTreatment == nil {
		byTreatment = make(map[uint64]clinic.TreatmentLine)
		s.lines[line.AppointmentID] = byTreatment
	}
	byTreatment[line.TreatmentID] = *line
	return nil
}

func (s *Store) ListTreatmentLines(_ context.Context, appointmentID uint64) ([]clinic.TreatmentLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.TreatmentLine
	for _, line := range s.lines[appointmentID] {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TreatmentID < out[j].TreatmentID })
	return out, nil
}

// --- invoices ---

func (s *Store) CreateInvoice(_ context.Context, inv *clinic.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; ok {
		return fmt.Errorf("memstore: invoice %d exists: %w", inv.ID, clinic.ErrConflict)
	}
	if inv.AppointmentID != nil {
		if _, ok := s.appointments[*inv.AppointmentID]; !ok {
			return fmt.Errorf("memstore: appointment %d: %w", *inv.AppointmentID, clinic.ErrNotFound)
		}
		for _, other := range s.invoices {
			if other.AppointmentID != nil && *other.AppointmentID == *inv.AppointmentID {
				return fmt.Errorf("memstore: appointment %d already invoiced: %w", *inv.AppointmentID, clinic.ErrConflict)
			}
		}
	}
	s.invoices[inv.ID] = *inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id uint64) (*clinic.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("memstore: invoice %d: %w", id, clinic.ErrNotFound)
	}
	return &inv, nil
}

func (s *Store) GetInvoiceByAppointment(_ context.Context, appointmentID uint64) (*clinic.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.AppointmentID != nil && *inv.AppointmentID == appointmentID {
			out := inv
			return &out, nil
		}
	}
	return nil, fmt.Errorf("memstore: no invoice for appointment %d: %w", appointmentID, clinic.ErrNotFound)
}

func (s *Store) UpdateInvoice(_ context.Context, inv *clinic.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return fmt.Errorf("memstore: invoice %d: %w", inv.ID, clinic.ErrNotFound)
	}
	s.invoices[inv.ID] = *inv
	return nil
}

// DeleteInvoice cascades to its payments.
func (s *Store) DeleteInvoice(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[id]; !ok {
		return fmt.Errorf("memstore: invoice %d: %w", id, clinic.ErrNotFound)
	}
	delete(s.payments, id)
	delete(s.invoices, id)
	return nil
}

// --- payments ---

func (s *Store) CreatePayment(_ context.Context, p *clinic.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[p.InvoiceID]; !ok {
		return fmt.Errorf("memstore: invoice %d: %w", p.InvoiceID, clinic.ErrNotFound)
	}
	s.payments[p.InvoiceID] = append(s.payments[p.InvoiceID], *p)
	return nil
}

func (s *Store) ListPayments(_ context.Context, invoiceID uint64) ([]clinic.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]clinic.Payment, len(s.payments[invoiceID]))
	copy(out, s.payments[invoiceID])
	return out, nil
}

// --- prescriptions ---

func (s *Store) CreatePrescription(_ context.Context, p *clinic.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[p.ID]; ok {
		return fmt.Errorf("memstore: prescription %d exists: %w", p.ID, clinic.ErrConflict)
	}
	if _, ok := s.patients[p.PatientID]; !ok {
		return fmt.Errorf("memstore: patient %d: %w", p.PatientID, clinic.ErrNotFound)
	}
	s.prescriptions[p.ID] = *p
	return nil
}

func (s *Store) GetPrescription(_ context.Context, id uint64) (*clinic.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("memstore: prescription %d: %w", id, clinic.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) PutPrescriptionItem(_ context.Context, item *clinic.PrescriptionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[item.PrescriptionID]; !ok {
		return fmt.Errorf("memstore: prescription %d: %w", item.PrescriptionID, clinic.ErrNotFound)
	}
	if _, ok := s.medications[item.MedicationID]; !ok {
		return fmt.Errorf("memstore: medication %d: %w", item.MedicationID, clinic.ErrNotFound)
	}
	byMed := s.items[item.PrescriptionID]
	if byMed == nil {
		byMed = make(map[uint64]clinic.PrescriptionItem)
		s.items[item.PrescriptionID] = byMed
	}
	byMed[item.MedicationID] = *item
	return nil
}

func (s *Store) ListPrescriptionItems(_ context.Context, prescriptionID uint64) ([]clinic.PrescriptionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.PrescriptionItem
	for _, item := range s.items[prescriptionID] {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MedicationID < out[j].MedicationID })
	return out, nil
}

// DeletePrescription cascades to its items.
func (s *Store) DeletePrescription(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[id]; !ok {
		return fmt.Errorf("memstore: prescription %d: %w", id, clinic.ErrNotFound)
	}
	delete(s.items, id)
	delete(s.prescriptions, id)
	return nil
}

func (s *Store) ListPrescriptionsByPatient(_ context.Context, patientID uint64) ([]clinic.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clinic.Prescription
	for _, p := range s.prescriptions {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
