package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_StoresPendingWithoutDebit(t *testing.T) {
	// GIVEN: An employee with 20 days
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	// WHEN: Submitting Monday to Sunday
	r, err := f.submit(u, "2026-01-05", "2026-01-11")

	// THEN: Pending, five days, balance untouched
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, r.Status)
	assert.Equal(t, 5, r.Days)
	assert.Equal(t, 0, f.used(t, "u1"))
	assert.Equal(t, []leave.EventType{leave.EventSubmitted}, f.events.types())
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	// GIVEN: 10 days remaining
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 10)

	// WHEN: Asking for 12 working days (2 Feb to 17 Feb)
	_, err := f.submit(u, "2026-02-02", "2026-02-17")

	// THEN: Conflict stating both numbers
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, "Insufficient leave balance. You have 10 days remaining, but requested 12 days.", generic.Message(err))
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	tests := []struct {
		name       string
		start, end string
		message    string
	}{
		{"end before start", "2026-03-10", "2026-03-09", "End date must be on or after start date"},
		{"start in the past", "2026-01-01", "2026-01-05", "Start date cannot be in the past"},
		{"crosses year end", "2026-12-28", "2027-01-04", "Leave cannot span calendar years; split the request at December 31"},
		{"weekend only", "2026-01-10", "2026-01-11", "Leave request must include at least one working day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.submit(u, tt.start, tt.end)
			assert.ErrorIs(t, err, generic.ErrValidation)
			assert.Equal(t, tt.message, generic.Message(err))
		})
	}

	_, err := f.svc.Submit(context.Background(), u, leave.SubmitInput{})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestSubmit_TodayIsAllowed(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	r, err := f.submit(u, "2026-01-02", "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Days)
}

func TestSubmit_TargetYear(t *testing.T) {
	rules := leave.DefaultRules()
	rules.TargetYear = 2026
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	_, err := f.submit(u, "2027-02-01", "2027-02-02")
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Leave can only be booked within 2026", generic.Message(err))
}

func TestSubmit_UnknownUserAndNoAllocation(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	_, err := f.submit(leave.Actor{UserID: "ghost"}, "2026-03-02", "2026-03-03")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = f.submit(u, "2027-03-01", "2027-03-02")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestSubmit_NoWorkingDaysCheckedBeforeAllocation(t *testing.T) {
	// GIVEN: A user with no 2027 allocation
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	// WHEN: They request a weekend in 2027
	_, err := f.submit(u, "2027-01-09", "2027-01-10")

	// THEN: The empty range is reported, not the missing allocation
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Leave request must include at least one working day", generic.Message(err))
}

func TestSubmit_OverlapBlocksEitherOrder(t *testing.T) {
	tests := []struct {
		name   string
		first  [2]string
		second [2]string
	}{
		{"later start", [2]string{"2026-03-10", "2026-03-12"}, [2]string{"2026-03-12", "2026-03-20"}},
		{"earlier start", [2]string{"2026-03-10", "2026-03-12"}, [2]string{"2026-03-02", "2026-03-10"}},
		{"contained", [2]string{"2026-03-02", "2026-03-20"}, [2]string{"2026-03-10", "2026-03-10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A pending request
			f := newFixture(t, leave.DefaultRules())
			u := f.employee(t, "u1", leave.PositionCaptain, 30)
			_, err := f.submit(u, tt.first[0], tt.first[1])
			require.NoError(t, err)

			// WHEN: The same user asks for an intersecting range
			_, err = f.submit(u, tt.second[0], tt.second[1])

			// THEN: Conflict
			assert.ErrorIs(t, err, generic.ErrConflict)
			assert.Equal(t, "You already have a leave request for overlapping dates", generic.Message(err))
		})
	}
}

func TestSubmit_OverlapIgnoresOtherUsersAndClosedRequests(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u1 := f.employee(t, "u1", leave.PositionCaptain, 30)
	u2 := f.employee(t, "u2", leave.PositionCaptain, 30)

	// Another user's request does not block
	_, err := f.submit(u1, "2026-03-10", "2026-03-12")
	require.NoError(t, err)
	_, err = f.submit(u2, "2026-03-10", "2026-03-12")
	require.NoError(t, err)

	// A denied request does not block its owner
	r, err := f.submit(u1, "2026-04-06", "2026-04-07")
	require.NoError(t, err)
	_, err = f.svc.Deny(context.Background(), admin, r.ID, "")
	require.NoError(t, err)
	_, err = f.submit(u1, "2026-04-06", "2026-04-07")
	assert.NoError(t, err)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLifecycle_ApproveThenDeleteConservesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	before := f.used(t, "u1")

	// WHEN: submit -> approve
	r, err := f.submit(u, "2026-03-02", "2026-03-06")
	require.NoError(t, err)
	approved, err := f.svc.Approve(ctx, admin, r.ID, "enjoy")
	require.NoError(t, err)

	// THEN: Exactly the stored days are debited
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, "admin", approved.ApproverID)
	assert.Equal(t, "enjoy", approved.AdminNotes)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, before+5, f.used(t, "u1"))

	// WHEN: delete
	res, err := f.svc.Delete(ctx, admin, r.ID)
	require.NoError(t, err)

	// THEN: Credited back to where it started and the row is gone
	assert.Equal(t, 5, res.DaysRestored)
	assert.Equal(t, before, f.used(t, "u1"))
	_, err = f.store.GetRequest(ctx, r.ID)
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	assert.Equal(t, []leave.EventType{leave.EventSubmitted, leave.EventApproved, leave.EventDeleted}, f.events.types())
}

func TestLifecycle_StoredDaysSurvivePolicyChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	r, err := f.submit(u, "2026-03-02", "2026-03-06")
	require.NoError(t, err)

	// WHEN: Friday becomes non-working after submission
	_, err = f.svc.UpdateExcludedWeekdays(ctx, admin, []int{5})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, r.ID, "")
	require.NoError(t, err)

	// THEN: The stored five days are debited, not a recomputed four
	assert.Equal(t, 5, f.used(t, "u1"))
}

func TestLifecycle_DeniedCannotBeApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	r, err := f.submit(u, "2026-03-02", "2026-03-03")
	require.NoError(t, err)

	_, err = f.svc.Deny(ctx, admin, r.ID, "staffing")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, admin, r.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidState)
	assert.Equal(t, "Only pending requests can be approved", generic.Message(err))
	assert.Equal(t, 0, f.used(t, "u1"))
}

func TestLifecycle_ApprovedCannotBeDeniedOrCancelled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	r, err := f.submit(u, "2026-03-02", "2026-03-03")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, r.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Deny(ctx, admin, r.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	_, err = f.svc.Cancel(ctx, u, r.ID)
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	_, err = f.svc.Approve(ctx, admin, r.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidState)
	assert.Equal(t, 2, f.used(t, "u1"), "no double debit")
}

func TestLifecycle_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u1 := f.employee(t, "u1", leave.PositionCaptain, 20)
	u2 := f.employee(t, "u2", leave.PositionCaptain, 20)
	r, err := f.submit(u1, "2026-03-02", "2026-03-03")
	require.NoError(t, err)

	// Someone else cannot cancel it
	_, err = f.svc.Cancel(ctx, u2, r.ID)
	assert.ErrorIs(t, err, generic.ErrForbidden)

	// The owner can, once
	cancelled, err := f.svc.Cancel(ctx, u1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, u1, r.ID)
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	// Unknown request
	_, err = f.svc.Cancel(ctx, u1, "nope")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestLifecycle_ApproveRechecksBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 10)

	// GIVEN: Two pending six-day requests against a ten-day balance
	a, err := f.submit(u, "2026-03-02", "2026-03-09")
	require.NoError(t, err)
	b, err := f.submit(u, "2026-04-06", "2026-04-13")
	require.NoError(t, err)
	require.Equal(t, 6, a.Days)
	require.Equal(t, 6, b.Days)

	_, err = f.svc.Approve(ctx, admin, a.ID, "")
	require.NoError(t, err)

	// WHEN: The second is approved
	_, err = f.svc.Approve(ctx, admin, b.ID, "")

	// THEN: Rejected and still pending
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, "Insufficient leave balance. User has 4 days remaining, but requested 6 days.", generic.Message(err))
	stored, err := f.store.GetRequest(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
}

func TestLifecycle_DeletePendingRestoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 10)
	r, err := f.submit(u, "2026-03-02", "2026-03-03")
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DaysRestored)
	assert.Equal(t, 0, f.used(t, "u1"))

	_, err = f.svc.Delete(ctx, admin, r.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestAdminOnlyOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 10)
	r, err := f.submit(u, "2026-03-02", "2026-03-03")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, u, r.ID, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)
	_, err = f.svc.Deny(ctx, u, r.ID, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)
	_, err = f.svc.Delete(ctx, u, r.ID)
	assert.ErrorIs(t, err, generic.ErrForbidden)
	_, err = f.svc.AddLeave(ctx, u, leave.AddInput{UserID: "u1", Start: d("2026-05-04"), End: d("2026-05-04")})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// ADD LEAVE
// =============================================================================

func TestAddLeave_ApprovedAndDebitedAtomically(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 10)

	// Admin may book in the past
	r, err := f.add("u1", "2025-12-29", "2025-12-31")
	assert.ErrorIs(t, err, generic.ErrNotFound, "no 2025 allocation")
	assert.Nil(t, r)

	r, err = f.add("u1", "2026-01-01", "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, r.Status)
	assert.Equal(t, "Added by admin", r.Reason)
	assert.Equal(t, 2, f.used(t, "u1"))

	// Over the balance
	_, err = f.add("u1", "2026-02-02", "2026-02-17")
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, "Insufficient leave balance. User has 8 days remaining, but requested 12 days.", generic.Message(err))
	assert.Equal(t, 2, f.used(t, "u1"))
}

// =============================================================================
// MINIMUM STAY
// =============================================================================

func TestMinimumStay_Unconditional(t *testing.T) {
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayUnconditional
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 30)

	// A short first booking is refused
	_, err := f.submit(u, "2026-03-02", "2026-03-06")
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Your first leave booking must cover at least 14 consecutive days", generic.Message(err))

	// Fourteen calendar days pass
	r, err := f.submit(u, "2026-03-02", "2026-03-15")
	require.NoError(t, err)

	// Still blocked while that request is only pending
	_, err = f.submit(u, "2026-05-04", "2026-05-05")
	assert.ErrorIs(t, err, generic.ErrValidation)

	// Once approved, short bookings are fine
	_, err = f.svc.Approve(context.Background(), admin, r.ID, "")
	require.NoError(t, err)
	_, err = f.submit(u, "2026-05-04", "2026-05-05")
	assert.NoError(t, err)
}

func TestMinimumStay_BalanceAware(t *testing.T) {
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayBalanceAware
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 10)

	// Fewer than 14 days left: the first booking must use all of them
	_, err := f.submit(u, "2026-03-02", "2026-03-06")
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Your first leave booking must use all 10 remaining days", generic.Message(err))

	r, err := f.submit(u, "2026-03-02", "2026-03-13")
	require.NoError(t, err)
	assert.Equal(t, 10, r.Days)
	assert.True(t, r.MeetsMinimumStay)
}

func TestMinimumStay_BalanceAwareWithFullBalance(t *testing.T) {
	// GIVEN: Balance-aware rule and at least 14 days remaining
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayBalanceAware
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 30)

	// WHEN: The first booking is shorter than 14 calendar days
	_, err := f.submit(u, "2026-03-02", "2026-03-13")

	// THEN: It is refused on span
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Your first leave booking must cover at least 14 consecutive days", generic.Message(err))

	// AND: Fourteen calendar days pass
	r, err := f.submit(u, "2026-03-02", "2026-03-15")
	require.NoError(t, err)
	assert.True(t, r.MeetsMinimumStay)
}

func TestMinimumStay_UsingWholeBalanceLiftsRule(t *testing.T) {
	// GIVEN: A user whose approved first booking used all 10 days
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayBalanceAware
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 10)
	ctx := context.Background()

	first, err := f.submit(u, "2026-03-02", "2026-03-13")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, admin, first.ID, "")
	require.NoError(t, err)
	_, err = f.svc.OpenBalance(ctx, admin, "u1", 2027, 30)
	require.NoError(t, err)

	// WHEN: They book three days the next year
	r, err := f.submit(u, "2027-03-01", "2027-03-03")

	// THEN: The rule no longer applies
	require.NoError(t, err)
	assert.Equal(t, 3, r.Days)
	assert.False(t, r.MeetsMinimumStay)
}

func TestMinimumStay_DeniedFirstBookingDoesNotLiftRule(t *testing.T) {
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayBalanceAware
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 10)

	first, err := f.submit(u, "2026-03-02", "2026-03-13")
	require.NoError(t, err)
	_, err = f.svc.Deny(context.Background(), admin, first.ID, "")
	require.NoError(t, err)

	_, err = f.submit(u, "2026-05-04", "2026-05-05")
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, "Your first leave booking must use all 10 remaining days", generic.Message(err))
}

func TestMinimumStay_AdminAddSkipsRuleAndLiftsIt(t *testing.T) {
	rules := leave.DefaultRules()
	rules.MinimumStay = leave.MinimumStayUnconditional
	f := newFixture(t, rules)
	u := f.employee(t, "u1", leave.PositionCaptain, 30)

	_, err := f.add("u1", "2026-03-02", "2026-03-15")
	require.NoError(t, err)

	_, err = f.submit(u, "2026-05-04", "2026-05-04")
	assert.NoError(t, err)
}

// =============================================================================
// TRANSACTIONS & EVENTS
// =============================================================================

func TestService_RetriesOnceOnSerializationFailure(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	flaky := &flakyStore{Store: f.store, failures: 1}
	svc := leave.NewService(flaky, leave.DefaultRules(),
		leave.WithClock(func() time.Time { return testNow }),
		leave.WithLogger(zaptest.NewLogger(t)))

	r, err := svc.Submit(context.Background(), u, leave.SubmitInput{Start: d("2026-03-02"), End: d("2026-03-03")})

	require.NoError(t, err)
	assert.Equal(t, 2, r.Days)
	assert.Equal(t, 2, flaky.calls)
}

func TestService_PersistentConflictBecomesIntegrityError(t *testing.T) {
	store := memory.New()
	flaky := &flakyStore{Store: store, failures: 2}
	svc := leave.NewService(flaky, leave.DefaultRules(),
		leave.WithClock(func() time.Time { return testNow }),
		leave.WithLogger(zaptest.NewLogger(t)))

	_, err := svc.Submit(context.Background(), leave.Actor{UserID: "u1"}, leave.SubmitInput{Start: d("2026-03-02"), End: d("2026-03-03")})

	assert.ErrorIs(t, err, generic.ErrIntegrity)
	assert.Equal(t, "Failed to submit leave request", generic.Message(err))
	assert.Equal(t, 2, flaky.calls)
}

func TestService_NotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)
	f.svc.Notifier = failingNotifier{}

	r, err := f.submit(u, "2026-03-02", "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, r.Status)
}
