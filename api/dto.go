/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the leave
  domain types from the wire contract. Dates travel as YYYY-MM-DD strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  decodeAndValidate before any domain call. Business rules (balance,
  overlap, capacity) stay in the leave package.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: Domain types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitLeaveRequest is the body of POST /api/leave-requests.
type SubmitLeaveRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"max=500"`
}

// AddLeaveRequest is the body of POST /api/admin/requests.
type AddLeaveRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"max=500"`
	AdminNotes string `json:"admin_notes" validate:"max=1000"`
}

// DecisionRequest is the optional body of approve/deny.
type DecisionRequest struct {
	AdminNotes string `json:"admin_notes" validate:"max=1000"`
}

// RegisterEmployeeRequest is the body of POST /api/admin/employees.
type RegisterEmployeeRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email"`
	Role          string `json:"role" validate:"omitempty,oneof=admin employee"`
	Position      string `json:"position" validate:"required,max=50"`
	Year          int    `json:"year" validate:"omitempty,min=2000,max=2100"`
	DaysAllocated int    `json:"days_allocated" validate:"min=0,max=366"`
}

// OpenBalanceRequest is the body of POST /api/admin/employees/{id}/balances.
type OpenBalanceRequest struct {
	Year          int `json:"year" validate:"required,min=2000,max=2100"`
	DaysAllocated int `json:"days_allocated" validate:"min=0,max=366"`
}

// ExcludedWeekdaysRequest is the body of PUT /api/admin/settings/excluded-weekdays.
// Out-of-range values are dropped rather than rejected.
type ExcludedWeekdaysRequest struct {
	ExcludedWeekdays []int `json:"excluded_weekdays" validate:"max=7"`
}

// CreateHolidayRequest is the body of POST /api/admin/holidays.
type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required,max=200"`
}

// RemindersRequest is the optional body of POST /api/admin/reminders.
type RemindersRequest struct {
	Year int `json:"year" validate:"omitempty,min=2000,max=2100"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LeaveRequestDTO represents a leave request in API responses.
type LeaveRequestDTO struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	Days       int        `json:"days"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	AdminNotes string     `json:"admin_notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// BalanceDTO is the remaining balance for one year.
type BalanceDTO struct {
	Year          int `json:"year"`
	DaysAllocated int `json:"days_allocated"`
	DaysUsed      int `json:"days_used"`
	DaysRemaining int `json:"days_remaining"`
}

// MeDTO is the response of GET /api/me.
type MeDTO struct {
	Employee EmployeeDTO `json:"employee"`
	Balance  *BalanceDTO `json:"balance"`
}

// UserRemainingDTO is one row of the users-with-remaining report.
type UserRemainingDTO struct {
	BalanceDTO
	Employee    EmployeeDTO     `json:"employee"`
	Utilisation decimal.Decimal `json:"utilisation_percent"`
}

// DashboardDTO is the admin dashboard summary.
type DashboardDTO struct {
	TotalEmployees   int               `json:"total_employees"`
	PendingRequests  int               `json:"pending_requests"`
	ApprovedThisYear int               `json:"approved_this_year"`
	OnLeaveToday     []LeaveRequestDTO `json:"on_leave_today"`
	Utilisation      decimal.Decimal   `json:"utilisation_percent"`
}

// CapacityDTO is the response of GET /api/capacity.
type CapacityDTO struct {
	DisabledDates []string `json:"disabled_dates"`
	Position      string   `json:"position"`
}

// HolidayDTO represents a holiday.
type HolidayDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Name string `json:"name"`
}

// SettingsDTO represents the global leave settings.
type SettingsDTO struct {
	ExcludedWeekdays []int  `json:"excluded_weekdays"`
	WeekMode         string `json:"week_mode"`
}

// DeleteResultDTO is the response of DELETE /api/admin/requests/{id}.
type DeleteResultDTO struct {
	Success      bool `json:"success"`
	DaysRestored int  `json:"days_restored"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func toRequestDTO(r leave.Request) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:         r.ID,
		UserID:     r.UserID,
		StartDate:  r.Start.String(),
		EndDate:    r.End.String(),
		Days:       r.Days,
		Status:     string(r.Status),
		Reason:     r.Reason,
		ApprovedBy: r.ApproverID,
		ApprovedAt: r.DecidedAt,
		AdminNotes: r.AdminNotes,
		CreatedAt:  r.CreatedAt,
	}
}

func toRequestDTOs(rs []leave.Request) []LeaveRequestDTO {
	out := make([]LeaveRequestDTO, len(rs))
	for i, r := range rs {
		out[i] = toRequestDTO(r)
	}
	return out
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		Role:      string(e.Role),
		Position:  string(e.Position),
		CreatedAt: e.CreatedAt,
	}
}

func toBalanceDTO(year int, r leave.Remaining) *BalanceDTO {
	return &BalanceDTO{
		Year:          year,
		DaysAllocated: r.Allocated,
		DaysUsed:      r.Used,
		DaysRemaining: r.Remaining,
	}
}

func toHolidayDTOs(hs []leave.Holiday) []HolidayDTO {
	out := make([]HolidayDTO, len(hs))
	for i, h := range hs {
		out[i] = HolidayDTO{ID: h.ID, Date: h.Date.String(), Name: h.Name}
	}
	return out
}

func toSettingsDTO(s leave.Settings, mode leave.WeekMode) SettingsDTO {
	days := make([]int, len(s.ExcludedWeekdays))
	for i, d := range s.ExcludedWeekdays {
		days[i] = int(d)
	}
	return SettingsDTO{ExcludedWeekdays: days, WeekMode: string(mode)}
}

func dateStrings(ds []generic.Date) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// =============================================================================
// DECODING
// =============================================================================

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// An empty body is accepted when allowEmpty is set.
func decodeAndValidate(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			if !allowEmpty || !errors.Is(err, io.EOF) {
				return generic.Validation("Invalid request body")
			}
		}
	} else if !allowEmpty {
		return generic.Validation("Request body is required")
	}

	if err := validate.Struct(dst); err != nil {
		return generic.Validation("%s", validationMessage(err))
	}
	return nil
}

// validationMessage renders the first field error in plain words.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// parseDates converts validated YYYY-MM-DD strings.
func parseDates(start, end string) (generic.Date, generic.Date, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Date{}, generic.Date{}, generic.Validation("start_date must be a date in YYYY-MM-DD format")
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Date{}, generic.Date{}, generic.Validation("end_date must be a date in YYYY-MM-DD format")
	}
	return s, e, nil
}
