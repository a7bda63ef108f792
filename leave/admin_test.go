package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestRegisterEmployee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())

	// WHEN: An admin registers a first officer with 25 days
	emp, err := f.svc.RegisterEmployee(ctx, admin, leave.RegisterInput{
		Name:          "  Ada Lovelace ",
		Email:         "ADA@example.com",
		Position:      leave.PositionFirstOfficer,
		DaysAllocated: 25,
	})

	// THEN: Employee and current-year balance exist
	require.NoError(t, err)
	assert.NotEmpty(t, emp.ID)
	assert.Equal(t, "Ada Lovelace", emp.Name)
	assert.Equal(t, "ada@example.com", emp.Email)
	assert.Equal(t, leave.RoleEmployee, emp.Role)

	rem, err := f.svc.Balance(ctx, emp.ID, 2026)
	require.NoError(t, err)
	assert.Equal(t, 25, rem.Remaining)

	// Same email again
	_, err = f.svc.RegisterEmployee(ctx, admin, leave.RegisterInput{Name: "Ada", Email: "ada@example.com"})
	assert.ErrorIs(t, err, generic.ErrConflict)

	// Bad input
	_, err = f.svc.RegisterEmployee(ctx, admin, leave.RegisterInput{Name: "X", Email: "not-an-email"})
	assert.ErrorIs(t, err, generic.ErrValidation)
	_, err = f.svc.RegisterEmployee(ctx, admin, leave.RegisterInput{Name: "X", Email: "x@example.com", Role: "pilot"})
	assert.ErrorIs(t, err, generic.ErrValidation)

	// Not an admin
	_, err = f.svc.RegisterEmployee(ctx, leave.Actor{UserID: emp.ID, Role: leave.RoleEmployee}, leave.RegisterInput{Name: "Y", Email: "y@example.com"})
	assert.ErrorIs(t, err, generic.ErrForbidden)

	// Lookups
	got, err := f.svc.Employee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, emp.Email, got.Email)
	_, err = f.svc.Employee(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrNotFound)
	all, err := f.svc.Employees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOpenBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 20)

	b, err := f.svc.OpenBalance(ctx, admin, "u1", 2027, 22)
	require.NoError(t, err)
	assert.Equal(t, 22, b.Allocated)

	_, err = f.svc.OpenBalance(ctx, admin, "u1", 2027, 22)
	assert.ErrorIs(t, err, generic.ErrConflict)

	_, err = f.svc.OpenBalance(ctx, admin, "ghost", 2027, 22)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = f.svc.OpenBalance(ctx, admin, "u1", 2028, -1)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestUpdateExcludedWeekdays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.Rules{WeekMode: leave.SevenDayOperational, MinimumStay: leave.MinimumStayNone})
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	settings, err := f.svc.UpdateExcludedWeekdays(ctx, admin, []int{5, 5, 9, 0})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Friday}, settings.ExcludedWeekdays)

	stored, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ExcludedWeekdays, stored.ExcludedWeekdays)

	// Mon 2 Mar to Sun 8 Mar: Friday and Sunday excluded, Saturday charged
	r, err := f.submit(u, "2026-03-02", "2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, 5, r.Days)

	_, err = f.svc.UpdateExcludedWeekdays(ctx, u, []int{1})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestHolidays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u := f.employee(t, "u1", leave.PositionCaptain, 20)

	h, err := f.svc.AddHoliday(ctx, admin, d("2026-03-04"), "Founders day")
	require.NoError(t, err)

	_, err = f.svc.AddHoliday(ctx, admin, d("2026-03-04"), "Again")
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.Equal(t, "A holiday already exists on 2026-03-04", generic.Message(err))

	_, err = f.svc.AddHoliday(ctx, admin, d("2026-03-05"), "  ")
	assert.ErrorIs(t, err, generic.ErrValidation)

	// The holiday is not charged
	r, err := f.submit(u, "2026-03-02", "2026-03-06")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Days)

	// Import skips the taken date
	added, err := f.svc.ImportHolidays(ctx, admin, []leave.Holiday{
		{Date: d("2026-03-04"), Name: "Duplicate"},
		{Date: d("2026-12-25"), Name: "Christmas"},
		{Date: d("2026-12-26"), Name: "Boxing day"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	all, err := f.svc.ListHolidays(ctx, generic.YearPeriod(2026))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, f.svc.DeleteHoliday(ctx, admin, h.ID))
	assert.ErrorIs(t, f.svc.DeleteHoliday(ctx, admin, h.ID), generic.ErrNotFound)
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	u1 := f.employee(t, "u1", leave.PositionCaptain, 8)
	f.employee(t, "u2", leave.PositionFirstOfficer, 10)
	f.employee(t, "u3", leave.PositionFirstOfficer, 2)

	// u1 uses 3, u3 uses everything, one request stays pending
	_, err := f.add("u1", "2026-01-02", "2026-01-06")
	require.NoError(t, err)
	_, err = f.add("u3", "2026-02-02", "2026-02-03")
	require.NoError(t, err)
	_, err = f.submit(u1, "2026-04-06", "2026-04-06")
	require.NoError(t, err)

	t.Run("UsersWithRemaining", func(t *testing.T) {
		users, err := f.svc.UsersWithRemaining(ctx, 2026)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u2", users[0].Employee.ID)
		assert.Equal(t, "u1", users[1].Employee.ID)
		assert.Equal(t, 5, users[1].Remaining)
		assert.True(t, decimal.RequireFromString("37.5").Equal(users[1].Utilisation))
	})

	t.Run("Dashboard", func(t *testing.T) {
		dash, err := f.svc.Dashboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, dash.Employees)
		assert.Equal(t, 1, dash.Pending)
		assert.Equal(t, 2, dash.ApprovedThisYear)
		require.Len(t, dash.OnLeaveToday, 1)
		assert.Equal(t, "u1", dash.OnLeaveToday[0].UserID)
		// 5 used of 20 allocated
		assert.True(t, decimal.NewFromInt(25).Equal(dash.Utilisation))
	})

	t.Run("Queries", func(t *testing.T) {
		mine, err := f.svc.MyRequests(ctx, u1)
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		pending, err := f.svc.PendingRequests(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		upcoming, err := f.svc.Upcoming(ctx, 60)
		require.NoError(t, err)
		require.Len(t, upcoming, 2, "leave starting today counts as upcoming")
		assert.Equal(t, "u1", upcoming[0].UserID)
		assert.Equal(t, "u3", upcoming[1].UserID)

		feed, err := f.svc.CalendarFeed(ctx, generic.Period{Start: d("2026-04-01"), End: d("2026-04-30")})
		require.NoError(t, err)
		assert.Len(t, feed, 1)

		_, err = f.svc.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.Status{"archived"}})
		assert.ErrorIs(t, err, generic.ErrValidation)
	})

	t.Run("SendReminders", func(t *testing.T) {
		sent, err := f.svc.SendReminders(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, 2, sent)
	})
}

func TestUtilisation(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(leave.Utilisation(3, 0)))
	assert.Equal(t, "33.3", leave.Utilisation(1, 3).String())
	assert.Equal(t, "100", leave.Utilisation(4, 4).String())
}
