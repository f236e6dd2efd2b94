package scheduling

import "github.com/oakmed/clinic-scheduler/internal/clinic"

// transitions is the appointment state machine. Terminal states have no
// entry, so nothing leaves them.
var transitions = map[clinic.Status][]clinic.Status{
	clinic.StatusScheduled:  {clinic.StatusCheckedIn, clinic.StatusCancelled, clinic.StatusNoShow},
	clinic.StatusCheckedIn:  {clinic.StatusInProgress, clinic.StatusCancelled, clinic.StatusNoShow},
	clinic.StatusInProgress: {clinic.StatusCompleted},
}

func canTransition(from, to clinic.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
