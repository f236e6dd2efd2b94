package availability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 9, hour, min, 0, 0, time.UTC)
}

func span(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestOverlapsHalfOpen(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", span(9, 0, 9, 20), span(9, 0, 9, 20), true},
		{"partial", span(9, 0, 9, 20), span(9, 10, 9, 30), true},
		{"contained", span(9, 0, 10, 0), span(9, 15, 9, 30), true},
		{"back to back", span(9, 0, 9, 20), span(9, 20, 9, 40), false},
		{"disjoint", span(9, 0, 9, 20), span(10, 0, 10, 20), false},
		{"zero length inside", span(9, 0, 9, 20), span(9, 10, 9, 10), false},
		{"zero length both", span(9, 0, 9, 0), span(9, 0, 9, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("overlap is not symmetric for %v, %v", tt.a, tt.b)
			}
		})
	}
}

func TestReserveConflictCarriesExistingInterval(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 1}

	if err := idx.Reserve(Reservation{Subject: doc, Interval: span(9, 0, 9, 20), Owner: 10}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err := idx.Reserve(Reservation{Subject: doc, Interval: span(9, 10, 9, 30), Owner: 11})
	if !errors.Is(err, clinic.ErrSchedulingConflict) {
		t.Fatalf("expected scheduling conflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if !conflict.Existing.Start.Equal(at(9, 0)) || conflict.Owner != 10 {
		t.Fatalf("conflict does not name the blocking reservation: %+v", conflict)
	}

	// half-open boundary: starting exactly at the previous end is fine
	if err := idx.Reserve(Reservation{Subject: doc, Interval: span(9, 20, 9, 40), Owner: 12}); err != nil {
		t.Fatalf("back-to-back reserve: %v", err)
	}
}

func TestReserveAllIsAllOrNothing(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 1}
	room := Subject{Kind: SubjectRoom, ID: 5}

	// occupy the room so the pair below must fail
	if err := idx.Reserve(Reservation{Subject: room, Interval: span(9, 0, 10, 0), Owner: 1}); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	err := idx.ReserveAll([]Reservation{
		{Subject: doc, Interval: span(9, 0, 9, 30), Owner: 2},
		{Subject: room, Interval: span(9, 0, 9, 30), Owner: 2},
	})
	if !errors.Is(err, clinic.ErrSchedulingConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if idx.Occupied(doc, span(9, 0, 9, 30)) {
		t.Fatal("doctor reservation leaked after failed pair commit")
	}
}

func TestExchangeKeepsOldOnConflict(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 1}

	old := []Reservation{{Subject: doc, Interval: span(9, 0, 9, 20), Owner: 1}}
	if err := idx.ReserveAll(old); err != nil {
		t.Fatalf("reserve old: %v", err)
	}
	if err := idx.Reserve(Reservation{Subject: doc, Interval: span(10, 0, 10, 20), Owner: 2}); err != nil {
		t.Fatalf("reserve blocker: %v", err)
	}

	next := []Reservation{{Subject: doc, Interval: span(10, 10, 10, 30), Owner: 1}}
	if err := idx.Exchange(old, next); !errors.Is(err, clinic.ErrSchedulingConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if !idx.Occupied(doc, span(9, 0, 9, 20)) {
		t.Fatal("original reservation was lost by a failed exchange")
	}
	if idx.Occupied(doc, span(10, 20, 10, 30)) {
		t.Fatal("new reservation leaked after failed exchange")
	}
}

func TestExchangeMovesReservation(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 1}

	old := []Reservation{{Subject: doc, Interval: span(9, 0, 9, 20), Owner: 1}}
	if err := idx.ReserveAll(old); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	next := []Reservation{{Subject: doc, Interval: span(11, 0, 11, 20), Owner: 1}}
	if err := idx.Exchange(old, next); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if idx.Occupied(doc, span(9, 0, 9, 20)) {
		t.Fatal("old interval still occupied")
	}
	if !idx.Occupied(doc, span(11, 0, 11, 20)) {
		t.Fatal("new interval not occupied")
	}

	// the old slot may be retaken immediately
	if err := idx.Reserve(Reservation{Subject: doc, Interval: span(9, 0, 9, 20), Owner: 3}); err != nil {
		t.Fatalf("rebooking the vacated slot: %v", err)
	}
}

func TestReleaseRequiresExactMatch(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 1}
	r := Reservation{Subject: doc, Interval: span(9, 0, 9, 20), Owner: 1}
	if err := idx.Reserve(r); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	wrongOwner := r
	wrongOwner.Owner = 99
	if idx.Release(wrongOwner) {
		t.Fatal("release with wrong owner should be a no-op")
	}
	if !idx.Release(r) {
		t.Fatal("exact release failed")
	}
	if idx.Occupied(doc, span(9, 0, 9, 20)) {
		t.Fatal("interval still occupied after release")
	}
}

func TestConcurrentReservesAdmitExactlyOne(t *testing.T) {
	idx := NewIndex()
	doc := Subject{Kind: SubjectDoctor, ID: 7}

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan uint64, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(owner uint64) {
			defer wg.Done()
			err := idx.ReserveAll([]Reservation{{Subject: doc, Interval: span(9, 0, 9, 20), Owner: owner}})
			if err == nil {
				wins <- owner
			}
		}(uint64(i + 1))
	}
	wg.Wait()
	close(wins)

	var winners []uint64
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one successful reservation, got %d", len(winners))
	}
}

func TestReservationsForIncludesRoom(t *testing.T) {
	roomID := uint64(4)
	end := at(9, 45)
	appt := &clinic.Appointment{ID: 3, DoctorID: 2, RoomID: &roomID, Start: at(9, 0), End: &end}

	rs := ReservationsFor(appt, 20*time.Minute)
	if len(rs) != 2 {
		t.Fatalf("expected doctor+room reservations, got %d", len(rs))
	}
	if rs[0].Subject.Kind != SubjectDoctor || rs[1].Subject.Kind != SubjectRoom {
		t.Fatalf("unexpected subjects: %+v", rs)
	}
	if !rs[0].Interval.End.Equal(end) {
		t.Fatalf("explicit end ignored: %v", rs[0].Interval)
	}

	appt.End = nil
	appt.RoomID = nil
	rs = ReservationsFor(appt, 20*time.Minute)
	if len(rs) != 1 {
		t.Fatalf("expected doctor-only reservation, got %d", len(rs))
	}
	if !rs[0].Interval.End.Equal(at(9, 20)) {
		t.Fatalf("default duration not applied: %v", rs[0].Interval)
	}
}
