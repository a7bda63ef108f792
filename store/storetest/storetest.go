// Package storetest is the contract every leave.Store implementation passes.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) leave.Store

var created = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// Run executes the full contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Employees", func(t *testing.T) { testEmployees(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("Holidays", func(t *testing.T) { testHolidays(t, newStore(t)) })
	t.Run("Balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("ApprovedByPosition", func(t *testing.T) { testApprovedByPosition(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
}

// Employee saves a test employee and returns it.
func Employee(t *testing.T, s leave.Store, id string, position leave.Position) leave.Employee {
	t.Helper()
	e := leave.Employee{
		ID:        id,
		Name:      "Employee " + id,
		Email:     id + "@example.com",
		Role:      leave.RoleEmployee,
		Position:  position,
		CreatedAt: created,
	}
	require.NoError(t, s.SaveEmployee(context.Background(), e))
	return e
}

func request(id, userID, start, end string, days int, status leave.Status) leave.Request {
	return leave.Request{
		ID:        id,
		UserID:    userID,
		Start:     generic.MustParseDate(start),
		End:       generic.MustParseDate(end),
		Days:      days,
		Status:    status,
		Reason:    "trip",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testEmployees(t *testing.T, s leave.Store) {
	ctx := context.Background()

	// GIVEN: Two employees
	Employee(t, s, "u2", leave.PositionFirstOfficer)
	Employee(t, s, "u1", leave.PositionCaptain)

	// THEN: Lookup works and list is ordered by name
	got, err := s.GetEmployee(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, leave.PositionCaptain, got.Position)
	assert.Equal(t, "u1@example.com", got.Email)
	assert.True(t, got.CreatedAt.Equal(created))

	all, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u1", all[0].ID)

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	// Email is unique across employees
	dup := leave.Employee{ID: "u3", Name: "Dup", Email: "u1@example.com", Role: leave.RoleEmployee, CreatedAt: created}
	assert.ErrorIs(t, s.SaveEmployee(ctx, dup), generic.ErrDuplicateRecord)
}

func testSettings(t *testing.T, s leave.Store) {
	ctx := context.Background()

	// Empty store has no exclusions
	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings.ExcludedWeekdays)

	want := []time.Weekday{time.Sunday, time.Friday}
	require.NoError(t, s.SaveSettings(ctx, leave.Settings{ExcludedWeekdays: want, UpdatedAt: created}))
	require.NoError(t, s.SaveSettings(ctx, leave.Settings{ExcludedWeekdays: want, UpdatedAt: created}))

	settings, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, settings.ExcludedWeekdays)
	assert.True(t, settings.UpdatedAt.Equal(created))
}

func testHolidays(t *testing.T, s leave.Store) {
	ctx := context.Background()

	require.NoError(t, s.AddHoliday(ctx, leave.Holiday{ID: "h2", Date: generic.MustParseDate("2026-12-25"), Name: "Christmas"}))
	require.NoError(t, s.AddHoliday(ctx, leave.Holiday{ID: "h1", Date: generic.MustParseDate("2026-01-01"), Name: "New Year"}))

	// Same date twice is a duplicate
	err := s.AddHoliday(ctx, leave.Holiday{ID: "h3", Date: generic.MustParseDate("2026-12-25"), Name: "Again"})
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)

	all, err := s.ListHolidays(ctx, generic.YearPeriod(2026))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "h1", all[0].ID)
	assert.Equal(t, generic.MustParseDate("2026-12-25"), all[1].Date)

	dec, err := s.ListHolidays(ctx, generic.Period{Start: generic.MustParseDate("2026-12-01"), End: generic.MustParseDate("2026-12-31")})
	require.NoError(t, err)
	assert.Len(t, dec, 1)

	require.NoError(t, s.DeleteHoliday(ctx, "h1"))
	assert.ErrorIs(t, s.DeleteHoliday(ctx, "h1"), generic.ErrRecordNotFound)
}

func testBalances(t *testing.T, s leave.Store) {
	ctx := context.Background()
	Employee(t, s, "u1", leave.PositionCaptain)

	require.NoError(t, s.CreateBalance(ctx, leave.Balance{UserID: "u1", Year: 2026, Allocated: 20}))
	assert.ErrorIs(t, s.CreateBalance(ctx, leave.Balance{UserID: "u1", Year: 2026, Allocated: 5}), generic.ErrDuplicateRecord)
	assert.ErrorIs(t, s.CreateBalance(ctx, leave.Balance{UserID: "ghost", Year: 2026, Allocated: 5}), generic.ErrRecordNotFound)

	_, err := s.GetBalance(ctx, "u1", 2027)
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	// WHEN: A debit then a credit are appended
	debit := leave.BalanceEntry{ID: "e1", UserID: "u1", Year: 2026, RequestID: "r1", Kind: leave.EntryDebit, Days: 5, CreatedAt: created}
	require.NoError(t, s.AppendBalanceEntry(ctx, debit))

	b, err := s.GetBalance(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Used)
	assert.Equal(t, 15, b.Remaining())

	// Same (request, kind) is rejected and leaves the balance alone
	debit.ID = "e1b"
	assert.ErrorIs(t, s.AppendBalanceEntry(ctx, debit), generic.ErrDuplicateRecord)
	b, err = s.GetBalance(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Used)

	credit := leave.BalanceEntry{ID: "e2", UserID: "u1", Year: 2026, RequestID: "r1", Kind: leave.EntryCredit, Days: 5, CreatedAt: created.Add(time.Hour)}
	require.NoError(t, s.AppendBalanceEntry(ctx, credit))

	// THEN: Used is back to zero and both entries are listed in order
	b, err = s.GetBalance(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Used)

	entries, err := s.ListBalanceEntries(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, leave.EntryDebit, entries[0].Kind)
	assert.Equal(t, leave.EntryCredit, entries[1].Kind)

	// Entry for a year with no balance
	orphan := leave.BalanceEntry{ID: "e3", UserID: "u1", Year: 2030, RequestID: "r9", Kind: leave.EntryDebit, Days: 1, CreatedAt: created}
	assert.ErrorIs(t, s.AppendBalanceEntry(ctx, orphan), generic.ErrRecordNotFound)

	balances, err := s.ListBalances(ctx, 2026)
	require.NoError(t, err)
	assert.Len(t, balances, 1)
}

func testRequests(t *testing.T, s leave.Store) {
	ctx := context.Background()
	Employee(t, s, "u1", leave.PositionCaptain)
	Employee(t, s, "u2", leave.PositionCaptain)

	require.NoError(t, s.CreateRequest(ctx, request("r2", "u1", "2026-03-16", "2026-03-20", 5, leave.StatusPending)))
	first := request("r1", "u1", "2026-03-02", "2026-03-06", 5, leave.StatusApproved)
	first.MeetsMinimumStay = true
	require.NoError(t, s.CreateRequest(ctx, first))
	require.NoError(t, s.CreateRequest(ctx, request("r3", "u2", "2026-03-04", "2026-03-04", 1, leave.StatusDenied)))

	assert.ErrorIs(t, s.CreateRequest(ctx, request("r1", "u1", "2026-04-01", "2026-04-01", 1, leave.StatusPending)), generic.ErrDuplicateRecord)
	assert.ErrorIs(t, s.CreateRequest(ctx, request("r9", "ghost", "2026-04-01", "2026-04-01", 1, leave.StatusPending)), generic.ErrRecordNotFound)

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, generic.MustParseDate("2026-03-02"), got.Start)
	assert.Equal(t, generic.MustParseDate("2026-03-06"), got.End)
	assert.Equal(t, "trip", got.Reason)
	assert.Nil(t, got.DecidedAt)
	assert.True(t, got.MeetsMinimumStay)

	// Filters: user, statuses, overlap; ordered by start
	mine, err := s.ListRequests(ctx, leave.RequestFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "r1", mine[0].ID)

	live, err := s.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.Status{leave.StatusPending, leave.StatusApproved}})
	require.NoError(t, err)
	assert.Len(t, live, 2)

	window := generic.Period{Start: generic.MustParseDate("2026-03-06"), End: generic.MustParseDate("2026-03-16")}
	overlapping, err := s.ListRequests(ctx, leave.RequestFilter{Overlapping: &window})
	require.NoError(t, err)
	require.Len(t, overlapping, 2)
	assert.Equal(t, "r1", overlapping[0].ID)
	assert.Equal(t, "r2", overlapping[1].ID)

	// Update
	decided := created.Add(2 * time.Hour)
	got.Status = leave.StatusApproved
	got.ApproverID = "admin"
	got.DecidedAt = &decided
	got.AdminNotes = "ok"
	got.UpdatedAt = decided
	require.NoError(t, s.UpdateRequest(ctx, *got))

	got, err = s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.ApproverID)
	assert.Equal(t, "ok", got.AdminNotes)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decided))

	ghost := request("nope", "u1", "2026-03-02", "2026-03-02", 1, leave.StatusPending)
	assert.ErrorIs(t, s.UpdateRequest(ctx, ghost), generic.ErrRecordNotFound)

	// Delete
	require.NoError(t, s.DeleteRequest(ctx, "r3"))
	assert.ErrorIs(t, s.DeleteRequest(ctx, "r3"), generic.ErrRecordNotFound)
	_, err = s.GetRequest(ctx, "r3")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
}

func testApprovedByPosition(t *testing.T, s leave.Store) {
	ctx := context.Background()
	Employee(t, s, "c1", leave.PositionCaptain)
	Employee(t, s, "c2", leave.PositionCaptain)
	Employee(t, s, "f1", leave.PositionFirstOfficer)

	require.NoError(t, s.CreateRequest(ctx, request("a", "c1", "2026-03-09", "2026-03-13", 5, leave.StatusApproved)))
	require.NoError(t, s.CreateRequest(ctx, request("b", "c2", "2026-03-10", "2026-03-10", 1, leave.StatusApproved)))
	require.NoError(t, s.CreateRequest(ctx, request("c", "c2", "2026-03-11", "2026-03-11", 1, leave.StatusPending)))
	require.NoError(t, s.CreateRequest(ctx, request("d", "f1", "2026-03-10", "2026-03-10", 1, leave.StatusApproved)))
	require.NoError(t, s.CreateRequest(ctx, request("e", "c2", "2026-04-01", "2026-04-01", 1, leave.StatusApproved)))

	day := generic.Period{Start: generic.MustParseDate("2026-03-10"), End: generic.MustParseDate("2026-03-11")}

	// Pending, other positions and outside the window are ignored
	got, err := s.ListApprovedByPosition(ctx, leave.PositionCaptain, day, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	// Excluded user's rows are skipped
	got, err = s.ListApprovedByPosition(ctx, leave.PositionCaptain, day, "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func testRollback(t *testing.T, s leave.Store) {
	ctx := context.Background()
	Employee(t, s, "u1", leave.PositionCaptain)
	require.NoError(t, s.CreateBalance(ctx, leave.Balance{UserID: "u1", Year: 2026, Allocated: 10}))

	// WHEN: A transaction writes and then fails
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo leave.Repository) error {
		if err := repo.CreateRequest(ctx, request("r1", "u1", "2026-05-04", "2026-05-05", 2, leave.StatusApproved)); err != nil {
			return err
		}
		if err := repo.AppendBalanceEntry(ctx, leave.BalanceEntry{ID: "e1", UserID: "u1", Year: 2026, RequestID: "r1", Kind: leave.EntryDebit, Days: 2, CreatedAt: created}); err != nil {
			return err
		}
		return boom
	})

	// THEN: The error comes back and nothing was written
	assert.ErrorIs(t, err, boom)
	_, err = s.GetRequest(ctx, "r1")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
	b, err := s.GetBalance(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Used)

	// AND: A successful transaction commits both writes
	err = s.WithTx(ctx, func(repo leave.Repository) error {
		if err := repo.CreateRequest(ctx, request("r1", "u1", "2026-05-04", "2026-05-05", 2, leave.StatusApproved)); err != nil {
			return err
		}
		return repo.AppendBalanceEntry(ctx, leave.BalanceEntry{ID: "e1", UserID: "u1", Year: 2026, RequestID: "r1", Kind: leave.EntryDebit, Days: 2, CreatedAt: created})
	})
	require.NoError(t, err)
	b, err = s.GetBalance(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Used)
}
