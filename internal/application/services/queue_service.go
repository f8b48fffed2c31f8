package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/urgentcareq/backend/internal/domain/entities"
	"github.com/urgentcareq/backend/internal/domain/repositories"
	"github.com/urgentcareq/backend/internal/infrastructure/observability"
	apperrors "github.com/urgentcareq/backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// CheckInByASAP is returned instead of a timestamp for the first patient
// joining an empty queue: the clinic cannot demand a lead time from the very
// first arrival.
const CheckInByASAP = "ASAP"

// maxUpdateAttempts bounds the re-read/retry cycle when the store reports a
// version conflict.
const maxUpdateAttempts = 3

// SchedulingConfig holds the clinic's scheduling knobs
type SchedulingConfig struct {
	QueueID            string
	PrepMinutes        int
	CheckinLeadMinutes int
}

// DefaultSchedulingConfig returns the stock single-room clinic settings
func DefaultSchedulingConfig() SchedulingConfig {
	return SchedulingConfig{
		QueueID:            entities.DefaultQueueID,
		PrepMinutes:        10,
		CheckinLeadMinutes: 5,
	}
}

// QueueService owns the clinic queue: it schedules new arrivals against the
// single room-free cursor, walks patients through the visit lifecycle,
// reconciles actual against expected visit durations and prunes no-shows.
//
// Every operation is one read-modify-write cycle over the queue document,
// serialized by a process-wide mutex and guarded by the store's version
// compare-and-swap, and reads "now" exactly once.
type QueueService struct {
	store   repositories.QueueRepository
	cfg     SchedulingConfig
	clock   func() time.Time
	metrics *observability.Metrics

	mu sync.Mutex
}

// NewQueueService creates a new queue service. A nil clock defaults to
// time.Now; tests inject a fixed clock.
func NewQueueService(store repositories.QueueRepository, cfg SchedulingConfig, clock func() time.Time) *QueueService {
	if clock == nil {
		clock = time.Now
	}
	if cfg.QueueID == "" {
		cfg.QueueID = entities.DefaultQueueID
	}
	return &QueueService{
		store: store,
		cfg:   cfg,
		clock: clock,
	}
}

// SetMetrics attaches application metrics; without it the service simply
// does not record any.
func (s *QueueService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// ResetResult is the outcome of a staff queue reset
type ResetResult struct {
	QueueID            string     `json:"queue_id"`
	StartTime          time.Time  `json:"start_time"`
	RoomFreeAt         *time.Time `json:"room_free_at"`
	GlobalDelayMinutes int        `json:"global_delay_minutes"`
}

// JoinRequest carries the intake form fields for a new arrival
type JoinRequest struct {
	Name      string `json:"patient_name"`
	Phone     string `json:"phone"`
	DOB       string `json:"dob"`
	Insurance string `json:"insurance"`
	Reason    string `json:"reason"`
}

// JoinResult is the schedule computed for a new arrival
type JoinResult struct {
	Position                int       `json:"position"`
	ScheduledTime           time.Time `json:"scheduled_time"`
	ExpectedStartTime       time.Time `json:"expected_start_time"`
	ExpectedEndTime         time.Time `json:"expected_end_time"`
	ExpectedDurationMinutes int       `json:"expected_duration_minutes"`
	InitialWaitMinutes      int       `json:"initial_wait_minutes"`
	CheckInBy               string    `json:"check_in_by"`
}

// CheckInResult confirms a patient check-in
type CheckInResult struct {
	PatientName   string    `json:"patient_name"`
	CheckedIn     bool      `json:"checked_in"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// AdmitResult confirms a patient was admitted to the room
type AdmitResult struct {
	PatientName string                 `json:"patient_name"`
	Status      entities.PatientStatus `json:"status"`
}

// CheckoutResult reports the completed visit and the schedule shift it caused
type CheckoutResult struct {
	PatientName             string                 `json:"patient_name"`
	Status                  entities.PatientStatus `json:"status"`
	ActualDurationMinutes   float64                `json:"actual_duration_minutes"`
	ExpectedDurationMinutes int                    `json:"expected_duration_minutes"`
	DeltaMinutes            int                    `json:"delta_minutes"`
	AdmittedAt              *time.Time             `json:"admitted_at"`
	CompletedAt             time.Time              `json:"completed_at"`
	RoomFreeAt              time.Time              `json:"room_free_at"`
}

// PatientView is one queue entry with its 0-based position
type PatientView struct {
	Position int `json:"position"`
	entities.Patient
}

// QueueView is the read-only projection of the whole queue
type QueueView struct {
	QueueID            string        `json:"queue_id"`
	StartTime          *time.Time    `json:"start_time"`
	RoomFreeAt         *time.Time    `json:"room_free_at"`
	GlobalDelayMinutes int           `json:"global_delay_minutes"`
	Patients           []PatientView `json:"patients"`
	TotalPatients      int           `json:"total_patients"`
}

// Reset discards any tracked patients and replaces the queue with a fresh
// document: room free now, zero accumulated delay. Staff-triggered and
// irreversible.
func (s *QueueService) Reset(ctx context.Context) (*ResetResult, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.Reset")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	doc := entities.NewQueueDocument(s.cfg.QueueID, now)
	if err := s.store.Put(ctx, doc); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.recordQueueDepth(ctx, 0)
	return &ResetResult{
		QueueID:            doc.QueueID,
		StartTime:          doc.StartTime,
		RoomFreeAt:         nil,
		GlobalDelayMinutes: 0,
	}, nil
}

// JoinQueue appends a new patient and reserves a slot for them immediately:
// the room-free cursor advances by the expected visit duration at join time,
// whether or not earlier arrivals ever show up. Capacity is one linear
// timeline that every joiner pushes forward.
func (s *QueueService) JoinQueue(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.JoinQueue")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("patient name is required")
	}
	reason := strings.TrimSpace(req.Reason)

	now := s.clock()
	var result *JoinResult
	err := s.withQueue(ctx, func(doc *entities.QueueDocument) error {
		position := len(doc.Patients)
		effectiveFreeAt := doc.EffectiveFreeAt(now)

		expectedDuration := s.cfg.PrepMinutes + entities.EstimateMinutes(reason)
		expectedStart := effectiveFreeAt
		expectedEnd := expectedStart.Add(time.Duration(expectedDuration) * time.Minute)

		initialWait := 0
		if waitSeconds := effectiveFreeAt.Sub(now).Seconds(); waitSeconds > 0 {
			initialWait = int(math.Ceil(waitSeconds / 60.0))
		}

		// The first patient ever added to an empty queue is asked to
		// check in ASAP rather than given a hard deadline.
		var deadline *time.Time
		checkInBy := CheckInByASAP
		if position != 0 {
			at := expectedStart.Add(-time.Duration(s.cfg.CheckinLeadMinutes) * time.Minute)
			if at.Before(now) {
				at = now
			}
			deadline = &at
			checkInBy = at.Format(time.RFC3339)
		}

		doc.Patients = append(doc.Patients, entities.Patient{
			ID:                      uuid.New().String(),
			Name:                    name,
			Phone:                   req.Phone,
			DOB:                     strings.TrimSpace(req.DOB),
			Insurance:               req.Insurance,
			Reason:                  reason,
			ScheduledTime:           expectedStart,
			ExpectedStartTime:       expectedStart,
			ExpectedEndTime:         expectedEnd,
			ExpectedDurationMinutes: expectedDuration,
			InitialWaitMinutes:      initialWait,
			CheckinDeadline:         deadline,
			Status:                  entities.PatientStatusWaiting,
		})
		doc.RoomFreeAt = &expectedEnd

		result = &JoinResult{
			Position:                position,
			ScheduledTime:           expectedStart,
			ExpectedStartTime:       expectedStart,
			ExpectedEndTime:         expectedEnd,
			ExpectedDurationMinutes: expectedDuration,
			InitialWaitMinutes:      initialWait,
			CheckInBy:               checkInBy,
		}
		s.recordQueueDepth(ctx, len(doc.Patients))
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.SetSpanAttributes(span, attribute.Int("queue.position", result.Position))
	if s.metrics != nil {
		s.metrics.PatientsJoined.Add(ctx, 1)
	}
	return result, nil
}

// CheckIn marks a patient as arrived. Matching is case-insensitive on name
// across all patients regardless of status; when several share a name the
// caller must resupply with a date of birth. Checking in an already
// checked-in patient re-stamps the arrival time rather than failing.
func (s *QueueService) CheckIn(ctx context.Context, name, dob string) (*CheckInResult, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.CheckIn")
	defer span.End()

	name = strings.TrimSpace(name)
	dob = strings.TrimSpace(dob)
	if name == "" {
		return nil, apperrors.NewValidationError("patient name is required")
	}

	now := s.clock()
	var result *CheckInResult
	err := s.withQueue(ctx, func(doc *entities.QueueDocument) error {
		var matches []int
		for i := range doc.Patients {
			if doc.Patients[i].MatchesName(name) {
				matches = append(matches, i)
			}
		}
		if len(matches) == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("patient %q not found in queue", name))
		}
		if len(matches) > 1 {
			if dob == "" {
				return apperrors.NewAmbiguousMatchError(
					fmt.Sprintf("multiple patients named %q found, date of birth required", name),
				)
			}
			narrowed := matches[:0]
			for _, i := range matches {
				if doc.Patients[i].DOB == dob {
					narrowed = append(narrowed, i)
				}
			}
			if len(narrowed) == 0 {
				return apperrors.NewNotFoundError(
					fmt.Sprintf("no patient %q with date of birth %s found", name, dob),
				)
			}
			matches = narrowed
		}

		p := &doc.Patients[matches[0]]
		switch p.Status {
		case entities.PatientStatusWaiting:
			p.Status = entities.PatientStatusCheckedIn
			p.CheckedIn = true
			p.CheckedInAt = &now
		case entities.PatientStatusCheckedIn:
			// Repeated check-in re-stamps the arrival time.
			p.CheckedInAt = &now
		default:
			// Already admitted or beyond; check-in is a no-op.
		}

		result = &CheckInResult{
			PatientName:   p.Name,
			CheckedIn:     true,
			ScheduledTime: p.ScheduledTime,
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// Admit moves a checked-in patient into the treatment room. Matching is
// case-insensitive on name, first occurrence only; duplicate names are
// disambiguated at check-in time, not here.
func (s *QueueService) Admit(ctx context.Context, name string) (*AdmitResult, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.Admit")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("patient name is required")
	}

	now := s.clock()
	var result *AdmitResult
	err := s.withQueue(ctx, func(doc *entities.QueueDocument) error {
		i := firstMatch(doc, name)
		if i < 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("patient %q not found in queue", name))
		}

		p := &doc.Patients[i]
		if !p.CheckedIn {
			return apperrors.NewPreconditionFailedError("patient must be checked in before being admitted")
		}
		if !p.Status.CanTransitionTo(entities.PatientStatusAdmitted) {
			return apperrors.NewPreconditionFailedError(
				fmt.Sprintf("cannot admit patient in status %q", p.Status),
			)
		}

		p.Status = entities.PatientStatusAdmitted
		p.AdmittedAt = &now

		result = &AdmitResult{PatientName: p.Name, Status: p.Status}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// Checkout completes an admitted patient's visit, removes them from the
// live queue and absorbs any overrun into the room-free cursor. The
// adjustment is one-directional: the schedule is pushed later to cover
// overruns but never pulled earlier when a visit finishes ahead of its
// estimate.
func (s *QueueService) Checkout(ctx context.Context, name string) (*CheckoutResult, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.Checkout")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("patient name is required")
	}

	now := s.clock()
	var result *CheckoutResult
	err := s.withQueue(ctx, func(doc *entities.QueueDocument) error {
		i := firstMatch(doc, name)
		if i < 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("patient %q not found in queue", name))
		}

		p := doc.Patients[i]
		if p.Status != entities.PatientStatusAdmitted {
			return apperrors.NewPreconditionFailedError("patient must be admitted before checkout")
		}

		actual := 0.0
		if p.AdmittedAt != nil {
			actual = math.Round(now.Sub(*p.AdmittedAt).Minutes()*100) / 100
		}
		p.ActualDurationMinutes = &actual
		p.CompletedAt = &now
		p.Status = entities.PatientStatusCompleted

		// Completed patients leave the live queue.
		doc.Patients = append(doc.Patients[:i], doc.Patients[i+1:]...)

		delta := int(math.Round(actual - float64(p.ExpectedDurationMinutes)))
		if delta < 0 {
			delta = 0
		}

		base := now
		if doc.RoomFreeAt != nil {
			base = *doc.RoomFreeAt
		}
		freeAt := base.Add(time.Duration(delta) * time.Minute)
		doc.RoomFreeAt = &freeAt
		doc.GlobalDelayMinutes += delta

		result = &CheckoutResult{
			PatientName:             p.Name,
			Status:                  p.Status,
			ActualDurationMinutes:   actual,
			ExpectedDurationMinutes: p.ExpectedDurationMinutes,
			DeltaMinutes:            delta,
			AdmittedAt:              p.AdmittedAt,
			CompletedAt:             now,
			RoomFreeAt:              freeAt,
		}
		s.recordQueueDepth(ctx, len(doc.Patients))
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.SetSpanAttributes(span, attribute.Int("queue.delta_minutes", result.DeltaMinutes))
	if s.metrics != nil && result.DeltaMinutes > 0 {
		s.metrics.DelayMinutes.Add(ctx, int64(result.DeltaMinutes))
	}
	return result, nil
}

// PruneNoShows drops every patient who missed their check-in deadline and
// returns how many were removed. An uninitialized queue is a silent no-op;
// the background sweep that calls this runs on its own schedule and must
// never fail loudly.
func (s *QueueService) PruneNoShows(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.PruneNoShows")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := s.store.Get(ctx, s.cfg.QueueID)
		if err != nil {
			observability.RecordError(span, err)
			return 0, err
		}
		if doc == nil || len(doc.Patients) == 0 {
			return 0, nil
		}

		kept := make([]entities.Patient, 0, len(doc.Patients))
		for _, p := range doc.Patients {
			if !p.Overdue(now) {
				kept = append(kept, p)
			}
		}
		pruned := len(doc.Patients) - len(kept)
		if pruned == 0 {
			return 0, nil
		}
		doc.Patients = kept

		err = s.store.Update(ctx, doc)
		if err == nil {
			observability.SetSpanAttributes(span, attribute.Int("queue.pruned", pruned))
			if s.metrics != nil {
				s.metrics.PatientsPruned.Add(ctx, int64(pruned))
			}
			s.recordQueueDepth(ctx, len(doc.Patients))
			return pruned, nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordError(span, err)
			return 0, err
		}
	}

	err := apperrors.NewUnavailableError("queue update contention during prune", nil)
	observability.RecordError(span, err)
	return 0, err
}

// GetQueueView returns the ordered patient list with positions plus the
// queue-level metadata. It never mutates; an uninitialized queue yields an
// empty view.
func (s *QueueService) GetQueueView(ctx context.Context) (*QueueView, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.GetQueueView")
	defer span.End()

	doc, err := s.store.Get(ctx, s.cfg.QueueID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if doc == nil {
		return &QueueView{
			QueueID:  s.cfg.QueueID,
			Patients: []PatientView{},
		}, nil
	}

	patients := make([]PatientView, 0, len(doc.Patients))
	for i, p := range doc.Patients {
		patients = append(patients, PatientView{Position: i, Patient: p})
	}

	startTime := doc.StartTime
	return &QueueView{
		QueueID:            doc.QueueID,
		StartTime:          &startTime,
		RoomFreeAt:         doc.RoomFreeAt,
		GlobalDelayMinutes: doc.GlobalDelayMinutes,
		Patients:           patients,
		TotalPatients:      len(patients),
	}, nil
}

// withQueue runs one mutating read-modify-write cycle under the service
// mutex: load the document, apply fn, write it back with the version CAS,
// re-reading and retrying when a concurrent writer got there first. A fn
// error aborts the cycle with the queue state untouched.
func (s *QueueService) withQueue(ctx context.Context, fn func(doc *entities.QueueDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := s.store.Get(ctx, s.cfg.QueueID)
		if err != nil {
			return err
		}
		if doc == nil {
			return apperrors.NewNotInitializedError("queue not initialized")
		}

		if err := fn(doc); err != nil {
			return err
		}

		err = s.store.Update(ctx, doc)
		if err == nil {
			return nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return err
		}
	}
	return apperrors.NewUnavailableError("queue update contention", nil)
}

// firstMatch returns the index of the first patient whose name matches,
// or -1. Unlike check-in matching it never narrows by date of birth.
func firstMatch(doc *entities.QueueDocument, name string) int {
	for i := range doc.Patients {
		if doc.Patients[i].MatchesName(name) {
			return i
		}
	}
	return -1
}

func (s *QueueService) recordQueueDepth(ctx context.Context, depth int) {
	if s.metrics != nil {
		s.metrics.QueueDepth.Record(ctx, int64(depth))
	}
}
