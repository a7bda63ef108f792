package leave

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// EMPLOYEES & BALANCES
// =============================================================================

// RegisterInput completes an invite: the person, their position and the
// first year's allocation.
type RegisterInput struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	Position      Position
	Year          int
	DaysAllocated int
}

// RegisterEmployee creates the employee and opens their balance for the year
// in one transaction.
func (s *Service) RegisterEmployee(ctx context.Context, actor Actor, in RegisterInput) (*Employee, error) {
	if err := requireAdmin(actor, "register employees"); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return nil, generic.Validation("Name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, generic.Validation("A valid email address is required")
	}
	if in.Role == "" {
		in.Role = RoleEmployee
	}
	if in.Role != RoleAdmin && in.Role != RoleEmployee {
		return nil, generic.Validation("Role must be admin or employee")
	}
	if in.DaysAllocated < 0 {
		return nil, generic.Validation("Allocated days cannot be negative")
	}
	if in.Year == 0 {
		in.Year = generic.Today(s.Now()).Year()
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	emp := Employee{
		ID:        in.ID,
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		Position:  in.Position,
		CreatedAt: s.Now().UTC(),
	}
	err := s.inTx(ctx, "register employee", func(repo Repository) error {
		existing, err := repo.ListEmployees(ctx)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.ID == emp.ID || strings.EqualFold(e.Email, emp.Email) {
				return generic.Conflict("An employee with this email already exists")
			}
		}
		if err := repo.SaveEmployee(ctx, emp); err != nil {
			return err
		}
		return repo.CreateBalance(ctx, Balance{UserID: emp.ID, Year: in.Year, Allocated: in.DaysAllocated})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("employee registered",
		zap.String("user_id", emp.ID),
		zap.String("position", string(emp.Position)),
		zap.Int("year", in.Year),
		zap.Int("days_allocated", in.DaysAllocated))
	return &emp, nil
}

// OpenBalance allocates days for a further year.
func (s *Service) OpenBalance(ctx context.Context, actor Actor, userID string, year, allocated int) (*Balance, error) {
	if err := requireAdmin(actor, "allocate leave"); err != nil {
		return nil, err
	}
	if year < 1 {
		return nil, generic.Validation("Year is required")
	}
	if allocated < 0 {
		return nil, generic.Validation("Allocated days cannot be negative")
	}

	b := Balance{UserID: userID, Year: year, Allocated: allocated}
	err := s.inTx(ctx, "open balance", func(repo Repository) error {
		if _, err := getEmployee(ctx, repo, userID); err != nil {
			return err
		}
		err := repo.CreateBalance(ctx, b)
		if errors.Is(err, generic.ErrDuplicateRecord) {
			return generic.Conflict("User already has a leave allocation for %d", year)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// =============================================================================
// SETTINGS & HOLIDAYS
// =============================================================================

// Settings returns the current global policy row.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	settings, err := s.Store.GetSettings(ctx)
	if err != nil {
		return Settings{}, generic.Integrity(err, "Failed to load settings")
	}
	return settings, nil
}

// UpdateExcludedWeekdays replaces the excluded weekday set. Values outside
// 0..6 and duplicates are dropped. Past requests keep their stored days.
func (s *Service) UpdateExcludedWeekdays(ctx context.Context, actor Actor, weekdays []int) (Settings, error) {
	if err := requireAdmin(actor, "change leave settings"); err != nil {
		return Settings{}, err
	}
	settings := Settings{ExcludedWeekdays: SanitizeWeekdays(weekdays), UpdatedAt: s.Now().UTC()}
	if err := s.inTx(ctx, "update settings", func(repo Repository) error {
		return repo.SaveSettings(ctx, settings)
	}); err != nil {
		return Settings{}, err
	}
	s.logger.Info("excluded weekdays updated", zap.Ints("weekdays", weekdays))
	return settings, nil
}

// ListHolidays returns holidays in the period ordered by date.
func (s *Service) ListHolidays(ctx context.Context, period generic.Period) ([]Holiday, error) {
	holidays, err := s.Store.ListHolidays(ctx, period)
	if err != nil {
		return nil, generic.Integrity(err, "Failed to load holidays")
	}
	return holidays, nil
}

// AddHoliday adds one non-chargeable date. Dates are unique.
func (s *Service) AddHoliday(ctx context.Context, actor Actor, date generic.Date, name string) (*Holiday, error) {
	if err := requireAdmin(actor, "manage holidays"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if date.IsZero() || name == "" {
		return nil, generic.Validation("Holiday date and name are required")
	}

	h := Holiday{ID: uuid.NewString(), Date: date, Name: name}
	err := s.inTx(ctx, "add holiday", func(repo Repository) error {
		err := repo.AddHoliday(ctx, h)
		if errors.Is(err, generic.ErrDuplicateRecord) {
			return generic.Conflict("A holiday already exists on %s", date)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// DeleteHoliday removes a holiday by ID.
func (s *Service) DeleteHoliday(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor, "manage holidays"); err != nil {
		return err
	}
	return s.inTx(ctx, "delete holiday", func(repo Repository) error {
		err := repo.DeleteHoliday(ctx, id)
		if errors.Is(err, generic.ErrRecordNotFound) {
			return generic.NotFound("Holiday not found")
		}
		return err
	})
}

// ImportHolidays adds every holiday whose date is not taken yet and reports
// how many were added.
func (s *Service) ImportHolidays(ctx context.Context, actor Actor, holidays []Holiday) (int, error) {
	if err := requireAdmin(actor, "manage holidays"); err != nil {
		return 0, err
	}
	added := 0
	err := s.inTx(ctx, "import holidays", func(repo Repository) error {
		added = 0
		for _, h := range holidays {
			if h.ID == "" {
				h.ID = uuid.NewString()
			}
			err := repo.AddHoliday(ctx, h)
			if errors.Is(err, generic.ErrDuplicateRecord) {
				continue
			}
			if err != nil {
				return fmt.Errorf("add holiday %s: %w", h.Date, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("holidays imported", zap.Int("added", added), zap.Int("total", len(holidays)))
	return added, nil
}
