package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urgentcareq/backend/internal/adapters/storage"
	"github.com/urgentcareq/backend/internal/application/services"
	"github.com/urgentcareq/backend/internal/domain/entities"
	apperrors "github.com/urgentcareq/backend/pkg/errors"
)

// t0 matches the clinic opening used throughout: 2025-01-01 09:00.
var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*services.QueueService, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	svc := services.NewQueueService(
		storage.NewMemoryQueueStore(),
		services.DefaultSchedulingConfig(),
		clock.Now,
	)
	return svc, clock
}

func join(t *testing.T, svc *services.QueueService, name, reason string) *services.JoinResult {
	t.Helper()
	result, err := svc.JoinQueue(context.Background(), services.JoinRequest{
		Name:   name,
		Reason: reason,
	})
	require.NoError(t, err)
	return result
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	result, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", result.QueueID)
	assert.True(t, result.StartTime.Equal(t0))
	assert.Nil(t, result.RoomFreeAt)
	assert.Equal(t, 0, result.GlobalDelayMinutes)
}

func TestReset_DiscardsTrackedPatients(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "Flu-like symptoms")
	join(t, svc, "Bob", "Sprain/strain")

	_, err = svc.Reset(ctx)
	require.NoError(t, err)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Patients)
	assert.Nil(t, view.RoomFreeAt)
	assert.Equal(t, 0, view.GlobalDelayMinutes)
}

func TestJoinQueue_NotInitialized(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.JoinQueue(context.Background(), services.JoinRequest{Name: "Alice"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotInitialized))
}

func TestJoinQueue_RequiresName(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	_, err = svc.JoinQueue(context.Background(), services.JoinRequest{Name: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestJoinQueue_FirstPatient(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	result := join(t, svc, "Alice", "Flu-like symptoms")

	assert.Equal(t, 0, result.Position)
	assert.Equal(t, 30, result.ExpectedDurationMinutes) // 10 prep + 20 estimate
	assert.True(t, result.ExpectedStartTime.Equal(t0))
	assert.True(t, result.ExpectedEndTime.Equal(t0.Add(30*time.Minute)))
	assert.Equal(t, 0, result.InitialWaitMinutes)
	assert.Equal(t, services.CheckInByASAP, result.CheckInBy)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.RoomFreeAt)
	assert.True(t, view.RoomFreeAt.Equal(t0.Add(30*time.Minute)))
}

func TestJoinQueue_SecondPatientQueuesBehindFirst(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	join(t, svc, "Alice", "Flu-like symptoms")
	clock.Advance(time.Minute)

	result := join(t, svc, "Bob", "Minor laceration")

	assert.Equal(t, 1, result.Position)
	assert.Equal(t, 35, result.ExpectedDurationMinutes) // 10 prep + 25 estimate
	assert.True(t, result.ExpectedStartTime.Equal(t0.Add(30*time.Minute)))
	assert.True(t, result.ExpectedEndTime.Equal(t0.Add(65*time.Minute)))
	assert.Equal(t, 29, result.InitialWaitMinutes)
	assert.Equal(t, t0.Add(25*time.Minute).Format(time.RFC3339), result.CheckInBy)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.RoomFreeAt)
	assert.True(t, view.RoomFreeAt.Equal(t0.Add(65*time.Minute)))
}

func TestJoinQueue_CursorAdvancesBySumOfDurations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	reasons := []string{
		"COVID-19 test",                   // 10 + 10 = 20
		"Sprain/strain",                   // 10 + 30 = 40
		"Sore throat / strep check",       // 10 + 15 = 25
		"Medication refill/quick consult", // 10 + 10 = 20
	}
	total := 0
	for i, reason := range reasons {
		result := join(t, svc, "Patient", reason)
		assert.Equal(t, i, result.Position)
		total += result.ExpectedDurationMinutes
	}

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.RoomFreeAt)
	assert.True(t, view.RoomFreeAt.Equal(t0.Add(time.Duration(total)*time.Minute)),
		"room-free cursor must equal start plus the sum of expected durations")
	assert.Equal(t, 105, total)
}

func TestJoinQueue_UnknownReasonUsesDefaultEstimate(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	result := join(t, svc, "Alice", "mystery ailment")
	assert.Equal(t, 10+entities.DefaultEstimateMinutes, result.ExpectedDurationMinutes)
}

func TestJoinQueue_DeadlineFlooredAtNow(t *testing.T) {
	svc, clock := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	join(t, svc, "Alice", "COVID-19 test") // busy until t0+20m
	clock.Advance(18 * time.Minute)

	result := join(t, svc, "Bob", "COVID-19 test")

	// Raw deadline t0+15m already passed, so it is floored at now.
	assert.True(t, result.ExpectedStartTime.Equal(t0.Add(20*time.Minute)))
	assert.Equal(t, clock.Now().Format(time.RFC3339), result.CheckInBy)
	assert.Equal(t, 2, result.InitialWaitMinutes)
}

func TestJoinQueue_DeadlineNeverLaterThanLeadBeforeStart(t *testing.T) {
	svc, clock := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	join(t, svc, "First", "Sprain/strain")
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		result := join(t, svc, "Later", "COVID-19 test")

		require.NotEqual(t, services.CheckInByASAP, result.CheckInBy)
		deadline, parseErr := time.Parse(time.RFC3339, result.CheckInBy)
		require.NoError(t, parseErr)
		assert.False(t, deadline.After(result.ExpectedStartTime.Add(-5*time.Minute)))
		assert.False(t, deadline.Before(clock.Now()))
		assert.GreaterOrEqual(t, result.InitialWaitMinutes, 0)
	}
}

func TestJoinQueue_OnlyFirstEverPatientGetsASAP(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	first := join(t, svc, "Alice", "COVID-19 test")
	second := join(t, svc, "Bob", "COVID-19 test")
	assert.Equal(t, services.CheckInByASAP, first.CheckInBy)
	assert.NotEqual(t, services.CheckInByASAP, second.CheckInBy)

	// After a reset the next arrival is "first" again.
	_, err = svc.Reset(ctx)
	require.NoError(t, err)
	again := join(t, svc, "Carol", "COVID-19 test")
	assert.Equal(t, services.CheckInByASAP, again.CheckInBy)
}

func TestCheckIn_Success(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	joined := join(t, svc, "Alice Smith", "Flu-like symptoms")

	result, err := svc.CheckIn(ctx, "alice smith", "")
	require.NoError(t, err)
	assert.True(t, result.CheckedIn)
	assert.Equal(t, "Alice Smith", result.PatientName)
	assert.True(t, result.ScheduledTime.Equal(joined.ScheduledTime))

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Patients, 1)
	assert.Equal(t, entities.PatientStatusCheckedIn, view.Patients[0].Status)
	require.NotNil(t, view.Patients[0].CheckedInAt)
	assert.True(t, view.Patients[0].CheckedInAt.Equal(t0))
}

func TestCheckIn_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	_, err = svc.CheckIn(context.Background(), "Nobody", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestCheckIn_DuplicateNamesNeedDOB(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	_, err = svc.JoinQueue(ctx, services.JoinRequest{Name: "Alice", DOB: "1990-02-01", Reason: "COVID-19 test"})
	require.NoError(t, err)
	_, err = svc.JoinQueue(ctx, services.JoinRequest{Name: "Alice", DOB: "1984-07-12", Reason: "COVID-19 test"})
	require.NoError(t, err)

	// Without a DOB the match is ambiguous.
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAmbiguousMatch))

	// With a DOB the right Alice is resolved.
	_, err = svc.CheckIn(ctx, "Alice", "1984-07-12")
	require.NoError(t, err)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Patients, 2)
	assert.Equal(t, entities.PatientStatusWaiting, view.Patients[0].Status)
	assert.Equal(t, entities.PatientStatusCheckedIn, view.Patients[1].Status)

	// A DOB matching neither duplicate is a lookup failure.
	_, err = svc.CheckIn(ctx, "Alice", "2001-01-01")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestCheckIn_RepeatedCallRestampsArrival(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")

	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Patients, 1)
	require.NotNil(t, view.Patients[0].CheckedInAt)
	assert.True(t, view.Patients[0].CheckedInAt.Equal(t0.Add(3*time.Minute)))
	assert.Equal(t, entities.PatientStatusCheckedIn, view.Patients[0].Status)
}

func TestAdmit_RequiresCheckIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")

	_, err = svc.Admit(ctx, "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreconditionFailed))
}

func TestAdmit_Success(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")

	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	result, err := svc.Admit(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, entities.PatientStatusAdmitted, result.Status)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.Patients[0].AdmittedAt)
	assert.True(t, view.Patients[0].AdmittedAt.Equal(t0.Add(5*time.Minute)))
}

func TestAdmit_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reset(context.Background())
	require.NoError(t, err)

	_, err = svc.Admit(context.Background(), "Nobody")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestAdmit_AlreadyAdmitted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)
	_, err = svc.Admit(ctx, "Alice")
	require.NoError(t, err)

	_, err = svc.Admit(ctx, "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreconditionFailed))
}

func TestCheckout_RequiresAdmitted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")

	// Still waiting.
	_, err = svc.Checkout(ctx, "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreconditionFailed))

	// Checked in but not admitted.
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePreconditionFailed))
}

func TestCheckout_OverrunShiftsSchedule(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	join(t, svc, "Alice", "Flu-like symptoms") // expected 30m, busy until t0+30m
	clock.Advance(time.Minute)
	join(t, svc, "Bob", "Minor laceration") // busy until t0+65m

	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)
	clock.Advance(4 * time.Minute) // admitted at t0+5m
	_, err = svc.Admit(ctx, "Alice")
	require.NoError(t, err)

	clock.Advance(45 * time.Minute) // checkout at t0+50m, actual 45m vs expected 30m
	result, err := svc.Checkout(ctx, "Alice")
	require.NoError(t, err)

	assert.Equal(t, entities.PatientStatusCompleted, result.Status)
	assert.InDelta(t, 45.0, result.ActualDurationMinutes, 0.001)
	assert.Equal(t, 30, result.ExpectedDurationMinutes)
	assert.Equal(t, 15, result.DeltaMinutes)
	assert.True(t, result.RoomFreeAt.Equal(t0.Add(80*time.Minute)),
		"overrun shifts Bob's slot from t0+65m to t0+80m")

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, view.GlobalDelayMinutes)
	require.Len(t, view.Patients, 1)
	assert.Equal(t, "Bob", view.Patients[0].Name)
	assert.Equal(t, 0, view.Patients[0].Position)
}

func TestCheckout_EarlyFinishNeverPullsScheduleEarlier(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	join(t, svc, "Alice", "Sprain/strain") // expected 40m, busy until t0+40m
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)
	_, err = svc.Admit(ctx, "Alice")
	require.NoError(t, err)

	clock.Advance(12 * time.Minute) // finished 28 minutes early
	result, err := svc.Checkout(ctx, "Alice")
	require.NoError(t, err)

	assert.InDelta(t, 12.0, result.ActualDurationMinutes, 0.001)
	assert.Equal(t, 0, result.DeltaMinutes, "delta is floored at zero on early finishes")
	assert.True(t, result.RoomFreeAt.Equal(t0.Add(40*time.Minute)),
		"the cursor stays put, it is never pulled earlier")

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, view.GlobalDelayMinutes)
	assert.Empty(t, view.Patients)
}

func TestCheckout_SubMinuteDurationRoundsToTwoDecimals(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	join(t, svc, "Alice", "COVID-19 test")
	_, err = svc.CheckIn(ctx, "Alice", "")
	require.NoError(t, err)
	_, err = svc.Admit(ctx, "Alice")
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	result, err := svc.Checkout(ctx, "Alice")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, result.ActualDurationMinutes, 0.001)
	assert.Equal(t, 0, result.DeltaMinutes)
}

func TestPruneNoShows(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	join(t, svc, "Alice", "Flu-like symptoms") // ASAP, no deadline
	clock.Advance(time.Minute)
	bob := join(t, svc, "Bob", "Minor laceration") // deadline t0+25m
	clock.Advance(time.Minute)
	join(t, svc, "Carol", "COVID-19 test") // deadline t0+60m
	_, err = svc.CheckIn(ctx, "Carol", "")
	require.NoError(t, err)

	bobDeadline, err := time.Parse(time.RFC3339, bob.CheckInBy)
	require.NoError(t, err)
	assert.True(t, bobDeadline.Equal(t0.Add(25*time.Minute)))

	// Before any deadline nothing is pruned.
	pruned, err := svc.PruneNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	// Jump past every computed deadline: Bob is a no-show; Alice has no
	// deadline and Carol is checked in, both stay.
	clock.Advance(2 * time.Hour)
	pruned, err = svc.PruneNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Patients, 2)
	assert.Equal(t, "Alice", view.Patients[0].Name)
	assert.Equal(t, "Carol", view.Patients[1].Name)
}

func TestPruneNoShows_UninitializedQueueIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)

	pruned, err := svc.PruneNoShows(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, pruned)
}

func TestGetQueueView_Uninitialized(t *testing.T) {
	svc, _ := newTestService(t)

	view, err := svc.GetQueueView(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", view.QueueID)
	assert.Empty(t, view.Patients)
	assert.Equal(t, 0, view.TotalPatients)
	assert.Nil(t, view.StartTime)
}

func TestGetQueueView_PositionsFollowArrivalOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)

	names := []string{"Alice", "Bob", "Carol"}
	for _, name := range names {
		join(t, svc, name, "COVID-19 test")
	}

	view, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	require.Len(t, view.Patients, 3)
	assert.Equal(t, 3, view.TotalPatients)
	for i, name := range names {
		assert.Equal(t, i, view.Patients[i].Position)
		assert.Equal(t, name, view.Patients[i].Name)
	}
}

func TestFailedOperationLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Reset(ctx)
	require.NoError(t, err)
	join(t, svc, "Alice", "COVID-19 test")

	before, err := svc.GetQueueView(ctx)
	require.NoError(t, err)

	_, err = svc.Admit(ctx, "Alice") // fails: not checked in
	require.Error(t, err)
	_, err = svc.Checkout(ctx, "Alice") // fails: not admitted
	require.Error(t, err)

	after, err := svc.GetQueueView(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
