// Package availability tracks committed time intervals per subject (doctor
// or room) and answers overlap queries with exclusive-commit semantics.
package availability

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

// SubjectKind distinguishes the two bookable resource types.
type SubjectKind uint8

const (
	SubjectDoctor SubjectKind = iota + 1
	SubjectRoom
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectDoctor:
		return "doctor"
	case SubjectRoom:
		return "room"
	}
	return "unknown"
}

// Subject is the unit against which interval conflicts are checked.
type Subject struct {
	Kind SubjectKind
	ID   uint64
}

func (s Subject) String() string {
	return fmt.Sprintf("%s/%d", s.Kind, s.ID)
}

// Interval is a half-open time range [Start, End). The end instant is
// excluded so back-to-back appointments never conflict.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the interval has zero or negative length.
func (iv Interval) Empty() bool {
	return !iv.Start.Before(iv.End)
}

// Overlaps implements the half-open overlap test: s1 < e2 && s2 < e1.
// Empty intervals never overlap anything.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.Empty() || other.Empty() {
		return false
	}
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// EffectiveInterval resolves an appointment's occupied range. A nil end
// occupies defaultDuration past the start.
func EffectiveInterval(start time.Time, end *time.Time, defaultDuration time.Duration) Interval {
	if end != nil {
		return Interval{Start: start, End: *end}
	}
	return Interval{Start: start, End: start.Add(defaultDuration)}
}

// Reservation is one subject's claim on an interval, tagged with the owning
// appointment ID.
type Reservation struct {
	Subject  Subject
	Interval Interval
	Owner    uint64
}

// ReservationsFor builds the reservation set an appointment occupies: the
// doctor always, the room when assigned.
func ReservationsFor(appt *clinic.Appointment, defaultDuration time.Duration) []Reservation {
	iv := EffectiveInterval(appt.Start, appt.End, defaultDuration)
	rs := []Reservation{{
		Subject:  Subject{Kind: SubjectDoctor, ID: appt.DoctorID},
		Interval: iv,
		Owner:    appt.ID,
	}}
	if appt.RoomID != nil {
		rs = append(rs, Reservation{
			Subject:  Subject{Kind: SubjectRoom, ID: *appt.RoomID},
			Interval: iv,
			Owner:    appt.ID,
		})
	}
	return rs
}

// ConflictError reports the committed interval that blocked a reservation.
type ConflictError struct {
	Subject  Subject
	Existing Interval
	Owner    uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("availability: %s already reserved [%s, %s) by appointment %d",
		e.Subject, e.Existing.Start.Format(time.RFC3339), e.Existing.End.Format(time.RFC3339), e.Owner)
}

func (e *ConflictError) Unwrap() error { return clinic.ErrSchedulingConflict }

type slot struct {
	iv    Interval
	owner uint64
}

// subjectSchedule holds one subject's committed slots, sorted by start and
// pairwise non-overlapping.
type subjectSchedule struct {
	mu    sync.Mutex
	slots []slot
}

// searchLocked returns the index of the first slot starting at or after t.
func (sc *subjectSchedule) searchLocked(t time.Time) int {
	return sort.Search(len(sc.slots), func(i int) bool {
		return !sc.slots[i].iv.Start.Before(t)
	})
}

// conflictLocked finds a committed slot overlapping iv. Because slots are
// sorted and non-overlapping, only the neighbors of the insertion point can
// collide, so the lookup is O(log n).
func (sc *subjectSchedule) conflictLocked(iv Interval) *slot {
	if iv.Empty() {
		return nil
	}
	i := sc.searchLocked(iv.Start)
	if i > 0 && sc.slots[i-1].iv.Overlaps(iv) {
		return &sc.slots[i-1]
	}
	if i < len(sc.slots) && sc.slots[i].iv.Overlaps(iv) {
		return &sc.slots[i]
	}
	return nil
}

func (sc *subjectSchedule) insertLocked(iv Interval, owner uint64) {
	i := sc.searchLocked(iv.Start)
	sc.slots = slices.Insert(sc.slots, i, slot{iv: iv, owner: owner})
}

func (sc *subjectSchedule) removeLocked(iv Interval, owner uint64) bool {
	i := sc.searchLocked(iv.Start)
	for ; i < len(sc.slots) && sc.slots[i].iv.Start.Equal(iv.Start); i++ {
		if sc.slots[i].owner == owner && sc.slots[i].iv.End.Equal(iv.End) {
			sc.slots = slices.Delete(sc.slots, i, i+1)
			return true
		}
	}
	return false
}

// Index is the in-memory availability index. Locking is per subject so
// bookings for unrelated doctors and rooms proceed in parallel.
type Index struct {
	mu       sync.Mutex
	subjects map[Subject]*subjectSchedule
}

func NewIndex() *Index {
	return &Index{subjects: make(map[Subject]*subjectSchedule)}
}

func (x *Index) schedule(s Subject) *subjectSchedule {
	x.mu.Lock()
	defer x.mu.Unlock()
	sc := x.subjects[s]
	if sc == nil {
		sc = &subjectSchedule{}
		x.subjects[s] = sc
	}
	return sc
}

// lockAll acquires the schedules of every distinct subject in a canonical
// (kind, id) order so concurrent multi-subject commits cannot deadlock.
func (x *Index) lockAll(subjects []Subject) (map[Subject]*subjectSchedule, func()) {
	uniq := make([]Subject, 0, len(subjects))
	seen := make(map[Subject]struct{}, len(subjects))
	for _, s := range subjects {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	slices.SortFunc(uniq, func(a, b Subject) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	scheds := make(map[Subject]*subjectSchedule, len(uniq))
	for _, s := range uniq {
		sc := x.schedule(s)
		sc.mu.Lock()
		scheds[s] = sc
	}
	unlock := func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			scheds[uniq[i]].mu.Unlock()
		}
	}
	return scheds, unlock
}

// Reserve commits a single reservation, failing with *ConflictError when the
// interval overlaps a committed one. Empty intervals succeed without
// occupying anything.
func (x *Index) Reserve(r Reservation) error {
	sc := x.schedule(r.Subject)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if c := sc.conflictLocked(r.Interval); c != nil {
		return &ConflictError{Subject: r.Subject, Existing: c.iv, Owner: c.owner}
	}
	if !r.Interval.Empty() {
		sc.insertLocked(r.Interval, r.Owner)
	}
	return nil
}

// ReserveAll commits every reservation or none: all involved subjects are
// locked together, checked, and only then mutated, so a partial reservation
// is never observable.
func (x *Index) ReserveAll(rs []Reservation) error {
	scheds, unlock := x.lockAll(subjectsOf(rs))
	defer unlock()
	for _, r := range rs {
		if c := scheds[r.Subject].conflictLocked(r.Interval); c != nil {
			return &ConflictError{Subject: r.Subject, Existing: c.iv, Owner: c.owner}
		}
	}
	for _, r := range rs {
		if !r.Interval.Empty() {
			scheds[r.Subject].insertLocked(r.Interval, r.Owner)
		}
	}
	return nil
}

// Release removes a previously committed reservation. Unknown reservations
// are ignored.
func (x *Index) Release(r Reservation) bool {
	sc := x.schedule(r.Subject)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.removeLocked(r.Interval, r.Owner)
}

// ReleaseAll removes a reservation set under the subjects' locks.
func (x *Index) ReleaseAll(rs []Reservation) {
	scheds, unlock := x.lockAll(subjectsOf(rs))
	defer unlock()
	for _, r := range rs {
		scheds[r.Subject].removeLocked(r.Interval, r.Owner)
	}
}

// Exchange atomically swaps a reservation set for a new one. On conflict the
// old reservations remain committed, so a failed reschedule never leaves the
// appointment unscheduled.
func (x *Index) Exchange(old, next []Reservation) error {
	subjects := append(subjectsOf(old), subjectsOf(next)...)
	scheds, unlock := x.lockAll(subjects)
	defer unlock()

	var removed []Reservation
	for _, r := range old {
		if scheds[r.Subject].removeLocked(r.Interval, r.Owner) {
			removed = append(removed, r)
		}
	}
	for _, r := range next {
		if c := scheds[r.Subject].conflictLocked(r.Interval); c != nil {
			for _, prev := range removed {
				scheds[prev.Subject].insertLocked(prev.Interval, prev.Owner)
			}
			return &ConflictError{Subject: r.Subject, Existing: c.iv, Owner: c.owner}
		}
	}
	for _, r := range next {
		if !r.Interval.Empty() {
			scheds[r.Subject].insertLocked(r.Interval, r.Owner)
		}
	}
	return nil
}

// Occupied answers whether any committed interval for the subject overlaps iv.
func (x *Index) Occupied(s Subject, iv Interval) bool {
	sc := x.schedule(s)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conflictLocked(iv) != nil
}

func subjectsOf(rs []Reservation) []Subject {
	subjects := make([]Subject, len(rs))
	for i, r := range rs {
		subjects[i] = r.Subject
	}
	return subjects
}
