package entities

import (
	"strings"
	"time"
)

// PatientStatus represents where a patient is in the visit lifecycle
type PatientStatus string

const (
	PatientStatusWaiting   PatientStatus = "waiting"
	PatientStatusCheckedIn PatientStatus = "checked_in"
	PatientStatusAdmitted  PatientStatus = "admitted"
	PatientStatusCompleted PatientStatus = "completed"
)

// statusRank orders the lifecycle; transitions only ever move to the next rank.
var statusRank = map[PatientStatus]int{
	PatientStatusWaiting:   0,
	PatientStatusCheckedIn: 1,
	PatientStatusAdmitted:  2,
	PatientStatusCompleted: 3,
}

// CanTransitionTo reports whether next is the immediate forward step from s.
// The lifecycle never skips a state and never moves backward.
func (s PatientStatus) CanTransitionTo(next PatientStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Patient represents one walk-in visit tracked by the clinic queue
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	DOB       string `json:"dob"`
	Insurance string `json:"insurance"`
	Reason    string `json:"reason"`

	// Scheduling fields, fixed at join time.
	ScheduledTime           time.Time  `json:"scheduled_time"`
	ExpectedStartTime       time.Time  `json:"expected_start_time"`
	ExpectedEndTime         time.Time  `json:"expected_end_time"`
	ExpectedDurationMinutes int        `json:"expected_duration_minutes"`
	InitialWaitMinutes      int        `json:"initial_wait_minutes"`
	CheckinDeadline         *time.Time `json:"checkin_deadline"`

	Status    PatientStatus `json:"status"`
	CheckedIn bool          `json:"checked_in"`

	CheckedInAt *time.Time `json:"checked_in_at"`
	AdmittedAt  *time.Time `json:"admitted_at"`
	CompletedAt *time.Time `json:"completed_at"`

	ActualDurationMinutes *float64 `json:"actual_duration_minutes"`
}

// MatchesName reports whether the patient's name equals name, ignoring
// case and surrounding whitespace.
func (p *Patient) MatchesName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name))
}

// Overdue reports whether the patient missed their check-in deadline as of
// now. Checked-in patients and patients without a deadline (the first
// arrival, asked to check in ASAP) are never overdue.
func (p *Patient) Overdue(now time.Time) bool {
	if p.CheckedIn || p.CheckinDeadline == nil {
		return false
	}
	return !p.CheckinDeadline.After(now)
}
