package leave_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// fiveCaptainsOn10March approves one day of leave on 2026-03-10 for five
// captains.
func fiveCaptainsOn10March(t *testing.T, f *fixture) {
	t.Helper()
	for i := 1; i <= leave.PositionCapacity; i++ {
		id := fmt.Sprintf("captain-%d", i)
		f.employee(t, id, leave.PositionCaptain, 20)
		_, err := f.add(id, "2026-03-10", "2026-03-10")
		require.NoError(t, err)
	}
}

func TestCapacity_SixthCaptainRejected(t *testing.T) {
	// GIVEN: Five captains approved on 10 March
	f := newFixture(t, leave.DefaultRules())
	fiveCaptainsOn10March(t, f)
	sixth := f.employee(t, "captain-6", leave.PositionCaptain, 20)

	// WHEN: A sixth captain asks for 9-11 March
	_, err := f.submit(sixth, "2026-03-09", "2026-03-11")

	// THEN: Conflict naming the saturated day
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, "Maximum of 5 captains already on leave on 2026-03-10", generic.Message(err))
}

func TestCapacity_OtherPositionUnaffected(t *testing.T) {
	// GIVEN: Five captains approved on 10 March
	f := newFixture(t, leave.DefaultRules())
	fiveCaptainsOn10March(t, f)
	fo := f.employee(t, "fo-1", leave.PositionFirstOfficer, 20)

	// WHEN: A first officer asks for the same range
	r, err := f.submit(fo, "2026-03-09", "2026-03-11")

	// THEN: Accepted as pending
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, r.Status)
	assert.Equal(t, 3, r.Days)
}

func TestCapacity_ApprovalRechecksCap(t *testing.T) {
	// GIVEN: Four approved captains and two pending captains on 10 March
	f := newFixture(t, leave.DefaultRules())
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("captain-%d", i)
		f.employee(t, id, leave.PositionCaptain, 20)
		_, err := f.add(id, "2026-03-10", "2026-03-10")
		require.NoError(t, err)
	}
	a, err := f.submit(f.employee(t, "captain-5", leave.PositionCaptain, 20), "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	b, err := f.submit(f.employee(t, "captain-6", leave.PositionCaptain, 20), "2026-03-10", "2026-03-10")
	require.NoError(t, err)

	// WHEN: Both are approved
	_, err = f.svc.Approve(context.Background(), admin, a.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Approve(context.Background(), admin, b.ID, "")

	// THEN: The second approval would exceed the cap
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, 0, f.used(t, "captain-6"))
}

func TestCapacity_OwnLeaveIsNotCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	fiveCaptainsOn10March(t, f)
	counter := leave.NewCapacityCounter(f.store)
	day := generic.Period{Start: d("2026-03-10"), End: d("2026-03-10")}

	full, err := counter.Check(ctx, leave.PositionCaptain, day, "")
	require.NoError(t, err)
	assert.False(t, full.Allowed)
	require.NotNil(t, full.FirstConflict)
	assert.Equal(t, d("2026-03-10"), *full.FirstConflict)

	// Excluding one of the five leaves four on the day
	res, err := counter.Check(ctx, leave.PositionCaptain, day, "captain-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Nil(t, res.FirstConflict)
}

func TestAvailability_DisabledDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	fiveCaptainsOn10March(t, f)
	window := generic.Period{Start: d("2026-03-01"), End: d("2026-03-31")}

	dates, err := f.svc.Availability(ctx, leave.PositionCaptain, window, "")
	require.NoError(t, err)
	assert.Equal(t, []generic.Date{d("2026-03-10")}, dates)

	dates, err = f.svc.Availability(ctx, leave.PositionFirstOfficer, window, "")
	require.NoError(t, err)
	assert.Empty(t, dates)
	assert.NotNil(t, dates)

	_, err = f.svc.Availability(ctx, leave.PositionCaptain, generic.Period{Start: d("2026-01-01"), End: d("2027-06-01")}, "")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestDailyCounts(t *testing.T) {
	requests := []leave.Request{
		{ID: "a", Start: d("2026-03-08"), End: d("2026-03-11")},
		{ID: "b", Start: d("2026-03-10"), End: d("2026-03-20")},
	}
	window := generic.Period{Start: d("2026-03-10"), End: d("2026-03-12")}

	counts := leave.DailyCounts(requests, window)

	assert.Equal(t, 2, counts[d("2026-03-10")])
	assert.Equal(t, 2, counts[d("2026-03-11")])
	assert.Equal(t, 1, counts[d("2026-03-12")])
	assert.Zero(t, counts[d("2026-03-09")], "days outside the window are not counted")
}
