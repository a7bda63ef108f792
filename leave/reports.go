package leave

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// QUERIES
// =============================================================================

// Employee returns one employee.
func (s *Service) Employee(ctx context.Context, id string) (*Employee, error) {
	e, err := getEmployee(ctx, s.Store, id)
	if err != nil && generic.KindOf(err) == nil {
		return nil, generic.Integrity(err, "Failed to load employee")
	}
	return e, err
}

// Employees lists every employee ordered by name.
func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load employees")
	}
	return employees, nil
}

// Balance returns the remaining balance for a user and year.
func (s *Service) Balance(ctx context.Context, userID string, year int) (Remaining, error) {
	remaining, err := NewLedger(s.Store, s.Now).Remaining(ctx, userID, year)
	if err != nil && generic.KindOf(err) == nil {
		return Remaining{}, generic.Integrity(err, "Failed to load balance")
	}
	return remaining, err
}

// ListRequests returns requests matching the filter ordered by start date.
func (s *Service) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, generic.Validation("Unknown status %q", st)
		}
	}
	requests, err := s.Store.ListRequests(ctx, f)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load leave requests")
	}
	return requests, nil
}

// MyRequests returns every request of the actor.
func (s *Service) MyRequests(ctx context.Context, actor Actor) ([]Request, error) {
	return s.ListRequests(ctx, RequestFilter{UserID: actor.UserID})
}

// PendingRequests returns requests awaiting a decision.
func (s *Service) PendingRequests(ctx context.Context) ([]Request, error) {
	return s.ListRequests(ctx, RequestFilter{Statuses: []Status{StatusPending}})
}

// Upcoming returns approved leave starting within the next `within` days.
func (s *Service) Upcoming(ctx context.Context, within int) ([]Request, error) {
	if within < 1 || within > MaxAvailabilityWindow {
		return nil, generic.Validation("Window must be between 1 and %d days", MaxAvailabilityWindow)
	}
	today := generic.Today(s.Now())
	window := generic.Period{Start: today, End: today.AddDays(within - 1)}
	requests, err := s.ListRequests(ctx, RequestFilter{Statuses: []Status{StatusApproved}, Overlapping: &window})
	if err != nil {
		return nil, err
	}
	upcoming := requests[:0]
	for _, r := range requests {
		if window.Contains(r.Start) {
			upcoming = append(upcoming, r)
		}
	}
	return upcoming, nil
}

// CalendarFeed returns pending and approved leave overlapping the period.
func (s *Service) CalendarFeed(ctx context.Context, period generic.Period) ([]Request, error) {
	if err := validateWindow(period); err != nil {
		return nil, err
	}
	return s.ListRequests(ctx, RequestFilter{
		Statuses:    []Status{StatusPending, StatusApproved},
		Overlapping: &period,
	})
}

// =============================================================================
// REPORTS
// =============================================================================

// EmployeeBalance pairs an employee with their balance for a year.
type EmployeeBalance struct {
	Employee    Employee
	Allocated   int
	Used        int
	Remaining   int
	Utilisation decimal.Decimal // used / allocated, percent, one decimal place
}

// UsersWithRemaining lists employees that still have days left in the year,
// most remaining first.
func (s *Service) UsersWithRemaining(ctx context.Context, year int) ([]EmployeeBalance, error) {
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load employees")
	}
	balances, err := s.Store.ListBalances(ctx, year)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load balances")
	}
	byUser := make(map[string]Balance, len(balances))
	for _, b := range balances {
		byUser[b.UserID] = b
	}

	var out []EmployeeBalance
	for _, e := range employees {
		b, ok := byUser[e.ID]
		if !ok || b.Remaining() <= 0 {
			continue
		}
		out = append(out, EmployeeBalance{
			Employee:    e,
			Allocated:   b.Allocated,
			Used:        b.Used,
			Remaining:   b.Remaining(),
			Utilisation: Utilisation(b.Used, b.Allocated),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Remaining != out[j].Remaining {
			return out[i].Remaining > out[j].Remaining
		}
		return out[i].Employee.Name < out[j].Employee.Name
	})
	return out, nil
}

// Utilisation is used/allocated as a percentage rounded to one decimal place.
func Utilisation(used, allocated int) decimal.Decimal {
	if allocated <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(used)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(allocated))).
		Round(1)
}

// Dashboard summarises the roster for the admin home page.
type Dashboard struct {
	Employees        int
	Pending          int
	ApprovedThisYear int
	OnLeaveToday     []Request
	Utilisation      decimal.Decimal
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := generic.Today(s.Now())
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load employees")
	}
	pending, err := s.PendingRequests(ctx)
	if err != nil {
		return nil, err
	}
	year := generic.YearPeriod(today.Year())
	approved, err := s.ListRequests(ctx, RequestFilter{Statuses: []Status{StatusApproved}, Overlapping: &year})
	if err != nil {
		return nil, err
	}
	balances, err := s.Store.ListBalances(ctx, today.Year())
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load balances")
	}

	d := &Dashboard{
		Employees:        len(employees),
		Pending:          len(pending),
		ApprovedThisYear: len(approved),
		OnLeaveToday:     []Request{},
	}
	for _, r := range approved {
		if r.Period().Contains(today) {
			d.OnLeaveToday = append(d.OnLeaveToday, r)
		}
	}
	var used, allocated int
	for _, b := range balances {
		used += b.Used
		allocated += b.Allocated
	}
	d.Utilisation = Utilisation(used, allocated)
	return d, nil
}

// =============================================================================
// REMINDERS
// =============================================================================

// SendReminders publishes a reminder for every employee with days left in the
// year and returns how many were sent.
func (s *Service) SendReminders(ctx context.Context, year int) (int, error) {
	users, err := s.UsersWithRemaining(ctx, year)
	if err != nil {
		return 0, err
	}
	now := s.Now().UTC()
	sent := 0
	for _, u := range users {
		err := s.Notifier.Notify(ctx, Event{
			Type:       EventReminder,
			UserID:     u.Employee.ID,
			Remaining:  u.Remaining,
			OccurredAt: now,
		})
		if err != nil {
			s.logger.Warn("failed to send reminder", zap.String("user_id", u.Employee.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
