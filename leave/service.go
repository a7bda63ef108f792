package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SERVICE - Request admission controller with transactional guarantees
// =============================================================================

// Service orchestrates the calendar, ledger, overlap and capacity components.
// It holds no mutable state of its own; every decision is taken inside one
// store transaction.
type Service struct {
	Store    Store
	Rules    Rules
	Notifier Notifier
	Now      func() time.Time

	logger *zap.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.Notifier = n } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.Now = now } }
func WithLogger(logger *zap.Logger) Option { return func(s *Service) { s.logger = logger } }

func NewService(store Store, rules Rules, opts ...Option) *Service {
	s := &Service{
		Store:    store,
		Rules:    rules,
		Notifier: nopNotifier{},
		Now:      time.Now,
		logger:   zap.L().Named("leave.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput is an employee's own leave request.
type SubmitInput struct {
	Start  generic.Date
	End    generic.Date
	Reason string
}

// AddInput is leave an admin books directly for a user.
type AddInput struct {
	UserID string
	Start  generic.Date
	End    generic.Date
	Reason string
	Notes  string
}

// DeleteResult reports what a deletion restored.
type DeleteResult struct {
	Request      Request
	DaysRestored int
}

// =============================================================================
// SUBMIT - Employee-initiated admission
// =============================================================================

// Submit validates a request and stores it as pending. Nothing is debited
// until approval.
func (s *Service) Submit(ctx context.Context, actor Actor, in SubmitInput) (*Request, error) {
	now := s.Now()
	period, err := s.validateDates(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if in.Start.Before(generic.Today(now)) {
		return nil, generic.Validation("Start date cannot be in the past")
	}

	var created Request
	err = s.inTx(ctx, "submit leave request", func(repo Repository) error {
		emp, err := getEmployee(ctx, repo, actor.UserID)
		if err != nil {
			return err
		}
		calendar, err := s.calendar(ctx, repo, period)
		if err != nil {
			return err
		}
		days := ChargeableDays(period.Start, period.End, calendar)
		if days == 0 {
			return generic.Validation("Leave request must include at least one working day")
		}

		ledger := NewLedger(repo, s.Now)
		firstBooking, err := s.checkMinimumStay(ctx, repo, ledger, emp.ID, period, days)
		if err != nil {
			return err
		}
		remaining, err := ledger.Remaining(ctx, emp.ID, period.Start.Year())
		if err != nil {
			return err
		}
		if days > remaining.Remaining {
			return generic.Conflict("Insufficient leave balance. You have %d days remaining, but requested %d days.",
				remaining.Remaining, days)
		}
		if err := checkOverlap(ctx, repo, emp.ID, period, "You already have a leave request for overlapping dates"); err != nil {
			return err
		}
		if err := checkCapacity(ctx, repo, positionOf(emp, actor), period, emp.ID); err != nil {
			return err
		}

		created = Request{
			ID:        uuid.NewString(),
			UserID:    emp.ID,
			Start:     period.Start,
			End:       period.End,
			Days:      days,
			Status:    StatusPending,
			Reason:    strings.TrimSpace(in.Reason),
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),

			MeetsMinimumStay: firstBooking,
		}
		return repo.CreateRequest(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request submitted",
		zap.String("request_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Int("days", created.Days))
	s.publish(ctx, requestEvent(EventSubmitted, created, actor.UserID, now))
	return &created, nil
}

// =============================================================================
// ADD LEAVE - Admin books approved leave directly
// =============================================================================

// AddLeave skips the minimum-stay rule and the past-date check, creates the
// request as approved and debits the balance in the same transaction.
func (s *Service) AddLeave(ctx context.Context, actor Actor, in AddInput) (*Request, error) {
	if err := requireAdmin(actor, "add leave for a user"); err != nil {
		return nil, err
	}
	now := s.Now()
	period, err := s.validateDates(in.Start, in.End)
	if err != nil {
		return nil, err
	}

	var created Request
	err = s.inTx(ctx, "add leave", func(repo Repository) error {
		emp, err := getEmployee(ctx, repo, in.UserID)
		if err != nil {
			return err
		}
		calendar, err := s.calendar(ctx, repo, period)
		if err != nil {
			return err
		}
		days := ChargeableDays(period.Start, period.End, calendar)
		if days == 0 {
			return generic.Validation("Leave request must include at least one working day")
		}

		ledger := NewLedger(repo, s.Now)
		remaining, err := ledger.Remaining(ctx, emp.ID, period.Start.Year())
		if err != nil {
			return err
		}
		if days > remaining.Remaining {
			return generic.Conflict("Insufficient leave balance. User has %d days remaining, but requested %d days.",
				remaining.Remaining, days)
		}
		if err := checkOverlap(ctx, repo, emp.ID, period, "User already has a leave request for overlapping dates"); err != nil {
			return err
		}
		if err := checkCapacity(ctx, repo, emp.Position, period, emp.ID); err != nil {
			return err
		}

		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			reason = "Added by admin"
		}
		decided := now.UTC()
		created = Request{
			ID:         uuid.NewString(),
			UserID:     emp.ID,
			Start:      period.Start,
			End:        period.End,
			Days:       days,
			Status:     StatusApproved,
			Reason:     reason,
			ApproverID: actor.UserID,
			DecidedAt:  &decided,
			AdminNotes: strings.TrimSpace(in.Notes),
			CreatedAt:  decided,
			UpdatedAt:  decided,
		}
		if err := repo.CreateRequest(ctx, created); err != nil {
			return err
		}
		return ledger.Debit(ctx, emp.ID, created.Year(), days, created.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave added by admin",
		zap.String("request_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.String("admin_id", actor.UserID),
		zap.Int("days", created.Days))
	s.publish(ctx, requestEvent(EventAdded, created, actor.UserID, now))
	return &created, nil
}

// =============================================================================
// DECISIONS - Approve / deny / cancel
// =============================================================================

// Approve transitions a pending request to approved and debits its stored
// days. Balance and capacity are checked again inside the transaction so two
// concurrent approvals cannot both pass.
func (s *Service) Approve(ctx context.Context, actor Actor, id, notes string) (*Request, error) {
	if err := requireAdmin(actor, "approve leave requests"); err != nil {
		return nil, err
	}
	now := s.Now()

	var approved Request
	err := s.inTx(ctx, "approve leave request", func(repo Repository) error {
		r, err := getRequest(ctx, repo, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return generic.State("Only pending requests can be approved")
		}
		emp, err := getEmployee(ctx, repo, r.UserID)
		if err != nil {
			return err
		}

		ledger := NewLedger(repo, s.Now)
		remaining, err := ledger.Remaining(ctx, r.UserID, r.Year())
		if err != nil {
			return err
		}
		if r.Days > remaining.Remaining {
			return generic.Conflict("Insufficient leave balance. User has %d days remaining, but requested %d days.",
				remaining.Remaining, r.Days)
		}
		if err := checkCapacity(ctx, repo, emp.Position, r.Period(), r.UserID); err != nil {
			return err
		}

		decided := now.UTC()
		r.Status = StatusApproved
		r.ApproverID = actor.UserID
		r.DecidedAt = &decided
		r.AdminNotes = strings.TrimSpace(notes)
		r.UpdatedAt = decided
		if err := repo.UpdateRequest(ctx, *r); err != nil {
			return err
		}
		if err := ledger.Debit(ctx, r.UserID, r.Year(), r.Days, r.ID); err != nil {
			return err
		}
		approved = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request approved",
		zap.String("request_id", approved.ID),
		zap.String("approver_id", actor.UserID),
		zap.Int("days", approved.Days))
	s.publish(ctx, requestEvent(EventApproved, approved, actor.UserID, now))
	return &approved, nil
}

// Deny transitions a pending request to denied. The balance is untouched.
func (s *Service) Deny(ctx context.Context, actor Actor, id, notes string) (*Request, error) {
	if err := requireAdmin(actor, "deny leave requests"); err != nil {
		return nil, err
	}
	now := s.Now()

	var denied Request
	err := s.inTx(ctx, "deny leave request", func(repo Repository) error {
		r, err := getRequest(ctx, repo, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return generic.State("Only pending requests can be denied")
		}
		decided := now.UTC()
		r.Status = StatusDenied
		r.ApproverID = actor.UserID
		r.DecidedAt = &decided
		r.AdminNotes = strings.TrimSpace(notes)
		r.UpdatedAt = decided
		denied = *r
		return repo.UpdateRequest(ctx, *r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request denied",
		zap.String("request_id", denied.ID),
		zap.String("approver_id", actor.UserID))
	s.publish(ctx, requestEvent(EventDenied, denied, actor.UserID, now))
	return &denied, nil
}

// Cancel withdraws a pending request. Only its owner or an admin may cancel.
func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (*Request, error) {
	now := s.Now()

	var cancelled Request
	err := s.inTx(ctx, "cancel leave request", func(repo Repository) error {
		r, err := getRequest(ctx, repo, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && r.UserID != actor.UserID {
			return generic.Forbidden("You can only cancel your own leave requests")
		}
		if r.Status != StatusPending {
			return generic.State("Only pending requests can be cancelled")
		}
		r.Status = StatusCancelled
		r.UpdatedAt = now.UTC()
		cancelled = *r
		return repo.UpdateRequest(ctx, *r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request cancelled",
		zap.String("request_id", cancelled.ID),
		zap.String("actor_id", actor.UserID))
	s.publish(ctx, requestEvent(EventCancelled, cancelled, actor.UserID, now))
	return &cancelled, nil
}

// =============================================================================
// DELETE - Administrative correction with balance reversal
// =============================================================================

// Delete removes a request in any status. An approved request has its days
// credited back before the row goes.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) (*DeleteResult, error) {
	if err := requireAdmin(actor, "delete leave requests"); err != nil {
		return nil, err
	}
	now := s.Now()

	var result DeleteResult
	err := s.inTx(ctx, "delete leave request", func(repo Repository) error {
		r, err := getRequest(ctx, repo, id)
		if err != nil {
			return err
		}
		result = DeleteResult{Request: *r}
		if r.Status == StatusApproved {
			if err := NewLedger(repo, s.Now).Credit(ctx, r.UserID, r.Year(), r.Days, r.ID); err != nil {
				return err
			}
			result.DaysRestored = r.Days
		}
		return repo.DeleteRequest(ctx, r.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request deleted",
		zap.String("request_id", id),
		zap.String("admin_id", actor.UserID),
		zap.Int("days_restored", result.DaysRestored))
	s.publish(ctx, requestEvent(EventDeleted, result.Request, actor.UserID, now))
	return &result, nil
}

// =============================================================================
// AVAILABILITY - Capacity query for date pickers
// =============================================================================

// MaxAvailabilityWindow bounds capacity and calendar queries.
const MaxAvailabilityWindow = 366

// Availability lists the dates in the period that are already at capacity for
// the position, ignoring excludeUserID's own approved leave.
func (s *Service) Availability(ctx context.Context, position Position, period generic.Period, excludeUserID string) ([]generic.Date, error) {
	if err := validateWindow(period); err != nil {
		return nil, err
	}
	if position == "" {
		return nil, generic.Validation("Position is required")
	}
	dates, err := NewCapacityCounter(s.Store).DisabledDates(ctx, position, period, excludeUserID)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load capacity")
	}
	return dates, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// inTx runs fn in a transaction, retrying once on a serialization failure.
// Anything that is not a classified error becomes an integrity failure.
func (s *Service) inTx(ctx context.Context, op string, fn func(Repository) error) error {
	err := s.Store.WithTx(ctx, fn)
	if err != nil && generic.IsRetryable(err) {
		s.logger.Warn("transaction conflict, retrying", zap.String("op", op), zap.Error(err))
		err = s.Store.WithTx(ctx, fn)
	}
	if err == nil {
		return nil
	}
	if kind := generic.KindOf(err); kind != nil {
		if kind == generic.ErrIntegrity {
			s.logger.Error("integrity failure", zap.String("op", op), zap.Error(err))
		} else {
			s.logger.Debug("rejected", zap.String("op", op), zap.String("reason", generic.Message(err)))
		}
		return err
	}
	s.logger.Error("transaction failed", zap.String("op", op), zap.Error(err))
	return generic.Integrity(err, "Failed to %s", op)
}

func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.Notifier.Notify(ctx, e); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.String("request_id", e.RequestID),
			zap.Error(err))
	}
}

func (s *Service) validateDates(start, end generic.Date) (generic.Period, error) {
	if start.IsZero() || end.IsZero() {
		return generic.Period{}, generic.Validation("Start date and end date are required")
	}
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return generic.Period{}, generic.Validation("End date must be on or after start date")
	}
	if start.Year() != end.Year() {
		return generic.Period{}, generic.Validation("Leave cannot span calendar years; split the request at December 31")
	}
	if s.Rules.TargetYear != 0 && start.Year() != s.Rules.TargetYear {
		return generic.Period{}, generic.Validation("Leave can only be booked within %d", s.Rules.TargetYear)
	}
	return period, nil
}

// calendar resolves the policy in effect for the period.
func (s *Service) calendar(ctx context.Context, repo Repository, period generic.Period) (*CalendarPolicy, error) {
	settings, err := repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	holidays, err := repo.ListHolidays(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return NewCalendarPolicy(s.Rules.WeekMode, settings.ExcludedWeekdays, holidays), nil
}

// checkMinimumStay applies the first-booking rule until the user has a
// qualifying approved request: one that met the rule when it was admitted, or
// one spanning at least the minimum. It reports whether the candidate is a
// first booking that meets the rule.
func (s *Service) checkMinimumStay(ctx context.Context, repo Repository, ledger *Ledger, userID string, period generic.Period, days int) (bool, error) {
	if s.Rules.MinimumStay == MinimumStayNone {
		return false, nil
	}
	n := s.Rules.MinimumStayDays
	approved, err := repo.ListRequests(ctx, RequestFilter{UserID: userID, Statuses: []Status{StatusApproved}})
	if err != nil {
		return false, fmt.Errorf("load approved requests: %w", err)
	}
	for _, r := range approved {
		if r.MeetsMinimumStay || r.Period().Span() >= n {
			return false, nil
		}
	}

	if s.Rules.MinimumStay == MinimumStayBalanceAware {
		remaining, err := ledger.Remaining(ctx, userID, period.Start.Year())
		if err != nil {
			return false, err
		}
		if remaining.Remaining < n {
			if days != remaining.Remaining {
				return false, generic.Validation("Your first leave booking must use all %d remaining days", remaining.Remaining)
			}
			return true, nil
		}
	}
	if period.Span() < n {
		return false, generic.Validation("Your first leave booking must cover at least %d consecutive days", n)
	}
	return true, nil
}

func checkOverlap(ctx context.Context, repo Repository, userID string, period generic.Period, message string) error {
	overlap, err := NewOverlapDetector(repo).HasOverlap(ctx, userID, period)
	if err != nil {
		return err
	}
	if overlap {
		return generic.Conflict("%s", message)
	}
	return nil
}

func checkCapacity(ctx context.Context, repo Repository, position Position, period generic.Period, userID string) error {
	if position == "" {
		return nil
	}
	result, err := NewCapacityCounter(repo).Check(ctx, position, period, userID)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return generic.Conflict("Maximum of %d %s already on leave on %s",
			PositionCapacity, positionLabel(position), result.FirstConflict.String())
	}
	return nil
}

func positionOf(emp *Employee, actor Actor) Position {
	if emp.Position != "" {
		return emp.Position
	}
	return actor.Position
}

func positionLabel(p Position) string {
	switch p {
	case PositionCaptain:
		return "captains"
	case PositionFirstOfficer:
		return "first officers"
	}
	return strings.ReplaceAll(string(p), "_", " ")
}

func requireAdmin(actor Actor, action string) error {
	if !actor.IsAdmin() {
		return generic.Forbidden("Only admins can %s", action)
	}
	return nil
}

func validateWindow(period generic.Period) error {
	if period.Start.IsZero() || period.End.IsZero() {
		return generic.Validation("Both from and to dates are required")
	}
	if period.End.Before(period.Start) {
		return generic.Validation("End date must be on or after start date")
	}
	if period.Span() > MaxAvailabilityWindow {
		return generic.Validation("Date window cannot exceed %d days", MaxAvailabilityWindow)
	}
	return nil
}

func getEmployee(ctx context.Context, repo Repository, id string) (*Employee, error) {
	e, err := repo.GetEmployee(ctx, id)
	if errors.Is(err, generic.ErrRecordNotFound) {
		return nil, generic.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	return e, nil
}

func getRequest(ctx context.Context, repo Repository, id string) (*Request, error) {
	r, err := repo.GetRequest(ctx, id)
	if errors.Is(err, generic.ErrRecordNotFound) {
		return nil, generic.NotFound("Leave request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	return r, nil
}
