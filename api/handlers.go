/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave service via REST. Handles HTTP request/response, JSON
  serialization and identity, and delegates every decision to leave.Service.

ENDPOINTS:
  Employee (any authenticated user):
    GET    /api/me                          Profile and current-year balance
    GET    /api/me/balance?year=            Balance for a year
    GET    /api/me/requests                 Own leave requests
    POST   /api/leave-requests              Submit a request (rate limited)
    POST   /api/leave-requests/{id}/cancel  Cancel own pending request
    GET    /api/capacity?position=&start=&end=  Dates at capacity
    GET    /api/holidays?year=              Holidays
    GET    /api/calendar?start=&end=        Pending and approved leave
    GET    /api/settings                    Excluded weekdays and week mode

  Admin:
    GET    /api/admin/employees             List employees
    POST   /api/admin/employees             Register employee + balance
    POST   /api/admin/employees/{id}/balances  Open a balance year
    GET    /api/admin/requests?status=&user_id=  List requests
    GET    /api/admin/requests/pending      Awaiting decision
    GET    /api/admin/requests/upcoming?days=   Approved leave starting soon
    POST   /api/admin/requests              Add approved leave for a user
    POST   /api/admin/requests/{id}/approve
    POST   /api/admin/requests/{id}/deny
    DELETE /api/admin/requests/{id}         Delete, crediting approved days
    PUT    /api/admin/settings/excluded-weekdays
    POST   /api/admin/holidays
    DELETE /api/admin/holidays/{id}
    GET    /api/admin/users-with-remaining?year=
    GET    /api/admin/dashboard
    POST   /api/admin/reminders

ERROR HANDLING:
  Domain errors carry a kind (generic/errors.go) and map to a status:
  - 400: validation and business-rule conflicts
  - 401: missing or invalid token
  - 403: role or ownership
  - 404: not found
  - 409: request not in the required state
  - 429: rate limited
  - 500: integrity / infrastructure (generic message, details logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Identity and route permissions
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ratelimit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *leave.Service
	Limiter ratelimit.Limiter

	logger *zap.Logger
}

// NewHandler creates a handler. limiter may be nil to disable throttling.
func NewHandler(svc *leave.Service, limiter ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{
		Service: svc,
		Limiter: limiter,
		logger:  logger.Named("api"),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetMe returns the caller's profile and current-year balance.
// GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	emp, err := h.Service.Employee(ctx, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := MeDTO{Employee: toEmployeeDTO(*emp)}
	year := generic.Today(h.Service.Now()).Year()
	rem, err := h.Service.Balance(ctx, actor.UserID, year)
	switch {
	case err == nil:
		resp.Balance = toBalanceDTO(year, rem)
	case !generic.IsNotFound(err):
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMyBalance returns the caller's balance for ?year= (default current).
// GET /api/me/balance
func (h *Handler) GetMyBalance(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rem, err := h.Service.Balance(r.Context(), mustActor(r).UserID, year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(year, rem))
}

// ListMyRequests returns every request of the caller.
// GET /api/me/requests
func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.MyRequests(r.Context(), mustActor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// SubmitLeave creates a pending request for the caller.
// POST /api/leave-requests
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := mustActor(r)

	if h.Limiter != nil {
		ok, err := h.Limiter.Allow(ctx, "submit:"+actor.UserID)
		if err != nil {
			// fail open
			h.logger.Warn("rate limiter unavailable", zap.Error(err))
		} else if !ok {
			writeStatus(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", codeRateLimited)
			return
		}
	}

	var req SubmitLeaveRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	start, end, err := parseDates(req.StartDate, req.EndDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.Service.Submit(ctx, actor, leave.SubmitInput{Start: start, End: end, Reason: req.Reason})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*created))
}

// CancelLeave cancels a pending request owned by the caller.
// POST /api/leave-requests/{id}/cancel
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Service.Cancel(r.Context(), mustActor(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetCapacity lists dates already at capacity for a position. The caller's
// own approved leave is not counted.
// GET /api/capacity?position=captain&start=2026-03-01&end=2026-03-31
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	q := r.URL.Query()

	position := leave.Position(q.Get("position"))
	if position == "" {
		position = actor.Position
	}
	period, err := periodParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dates, err := h.Service.Availability(r.Context(), position, period, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityDTO{DisabledDates: dateStrings(dates), Position: string(position)})
}

// ListHolidays returns the holidays of ?year= (default current).
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	holidays, err := h.Service.ListHolidays(r.Context(), generic.YearPeriod(year))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidayDTOs(holidays))
}

// GetCalendar returns pending and approved leave overlapping the window.
// GET /api/calendar?start=&end=
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	requests, err := h.Service.CalendarFeed(r.Context(), period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetSettings returns the calendar settings.
// GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.Settings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings, h.Service.Rules.WeekMode))
}

// =============================================================================
// ADMIN: EMPLOYEES
// =============================================================================

// ListEmployees returns all employees.
// GET /api/admin/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Service.Employees(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterEmployee creates an employee and their balance for the year.
// POST /api/admin/employees
func (h *Handler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req RegisterEmployeeRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	emp, err := h.Service.RegisterEmployee(r.Context(), mustActor(r), leave.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Role:          leave.Role(req.Role),
		Position:      leave.Position(req.Position),
		Year:          req.Year,
		DaysAllocated: req.DaysAllocated,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// OpenBalance allocates days for another year.
// POST /api/admin/employees/{id}/balances
func (h *Handler) OpenBalance(w http.ResponseWriter, r *http.Request) {
	var req OpenBalanceRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	b, err := h.Service.OpenBalance(r.Context(), mustActor(r), chi.URLParam(r, "id"), req.Year, req.DaysAllocated)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(b.Year, leave.Remaining{
		Allocated: b.Allocated,
		Used:      b.Used,
		Remaining: b.Remaining(),
	}))
}

// UsersWithRemaining lists employees with days left, most first.
// GET /api/admin/users-with-remaining?year=
func (h *Handler) UsersWithRemaining(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	users, err := h.Service.UsersWithRemaining(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]UserRemainingDTO, len(users))
	for i, u := range users {
		dtos[i] = UserRemainingDTO{
			Employee: toEmployeeDTO(u.Employee),
			BalanceDTO: BalanceDTO{
				Year:          year,
				DaysAllocated: u.Allocated,
				DaysUsed:      u.Used,
				DaysRemaining: u.Remaining,
			},
			Utilisation: u.Utilisation,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN: REQUESTS
// =============================================================================

// ListRequests filters by ?status= (comma separated) and ?user_id=.
// GET /api/admin/requests
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.RequestFilter{UserID: q.Get("user_id")}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, leave.Status(strings.TrimSpace(s)))
		}
	}

	requests, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// ListPendingRequests returns requests awaiting a decision.
// GET /api/admin/requests/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.PendingRequests(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// ListUpcoming returns approved leave starting in the next ?days= (default 30).
// GET /api/admin/requests/upcoming
func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, generic.Validation("days must be a number"))
			return
		}
		days = n
	}

	requests, err := h.Service.Upcoming(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// AddLeave books approved leave for a user.
// POST /api/admin/requests
func (h *Handler) AddLeave(w http.ResponseWriter, r *http.Request) {
	var req AddLeaveRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	start, end, err := parseDates(req.StartDate, req.EndDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.Service.AddLeave(r.Context(), mustActor(r), leave.AddInput{
		UserID: req.UserID,
		Start:  start,
		End:    end,
		Reason: req.Reason,
		Notes:  req.AdminNotes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*created))
}

// ApproveRequest approves a pending request and debits the balance.
// POST /api/admin/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.Service.Approve(r.Context(), mustActor(r), chi.URLParam(r, "id"), req.AdminNotes); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DenyRequest denies a pending request.
// POST /api/admin/requests/{id}/deny
func (h *Handler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.Service.Deny(r.Context(), mustActor(r), chi.URLParam(r, "id"), req.AdminNotes); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteRequest removes a request of any status, crediting approved days.
// DELETE /api/admin/requests/{id}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Delete(r.Context(), mustActor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResultDTO{Success: true, DaysRestored: res.DaysRestored})
}

// =============================================================================
// ADMIN: CALENDAR POLICY
// =============================================================================

// UpdateExcludedWeekdays replaces the admin-excluded weekdays.
// PUT /api/admin/settings/excluded-weekdays
func (h *Handler) UpdateExcludedWeekdays(w http.ResponseWriter, r *http.Request) {
	var req ExcludedWeekdaysRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	settings, err := h.Service.UpdateExcludedWeekdays(r.Context(), mustActor(r), req.ExcludedWeekdays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings, h.Service.Rules.WeekMode))
}

// CreateHoliday adds a holiday.
// POST /api/admin/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, r, generic.Validation("date must be a date in YYYY-MM-DD format"))
		return
	}

	holiday, err := h.Service.AddHoliday(r.Context(), mustActor(r), date, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTOs([]leave.Holiday{*holiday})[0])
}

// DeleteHoliday removes a holiday.
// DELETE /api/admin/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteHoliday(r.Context(), mustActor(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// =============================================================================
// ADMIN: REPORTS
// =============================================================================

// GetDashboard returns the admin summary.
// GET /api/admin/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Service.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		TotalEmployees:   dash.Employees,
		PendingRequests:  dash.Pending,
		ApprovedThisYear: dash.ApprovedThisYear,
		OnLeaveToday:     toRequestDTOs(dash.OnLeaveToday),
		Utilisation:      dash.Utilisation,
	})
}

// SendReminders publishes reminders for ?year (default current).
// POST /api/admin/reminders
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	var req RemindersRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	year := req.Year
	if year == 0 {
		year = generic.Today(h.Service.Now()).Year()
	}

	sent, err := h.Service.SendReminders(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	codeValidation   = "VALIDATION_ERROR"
	codeConflict     = "CONFLICT"
	codeNotFound     = "NOT_FOUND"
	codeInvalidState = "INVALID_STATE"
	codeForbidden    = "FORBIDDEN"
	codeUnauthorized = "UNAUTHORIZED"
	codeRateLimited  = "RATE_LIMITED"
	codeInternal     = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeStatus(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps a domain error to its status. Integrity and unclassified
// errors are logged with their cause and answered with the generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeStatus(w, status, generic.Message(err), code)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, generic.ErrConflict):
		return http.StatusBadRequest, codeConflict
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, generic.ErrInvalidState):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// mustActor returns the actor set by Authenticate. Routes using it are always
// mounted behind that middleware.
func mustActor(r *http.Request) leave.Actor {
	a, ok := ActorFrom(r.Context())
	if !ok {
		panic("api: handler mounted without Authenticate")
	}
	return a
}

func (h *Handler) yearParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return generic.Today(h.Service.Now()).Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 {
		return 0, generic.Validation("year must be a positive number")
	}
	return year, nil
}

func periodParam(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		return generic.Period{}, generic.Validation("start and end are required")
	}
	start, err := generic.ParseDate(q.Get("start"))
	if err != nil {
		return generic.Period{}, generic.Validation("start must be a date in YYYY-MM-DD format")
	}
	end, err := generic.ParseDate(q.Get("end"))
	if err != nil {
		return generic.Period{}, generic.Validation("end must be a date in YYYY-MM-DD format")
	}
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return generic.Period{}, generic.Validation("end must be on or after start")
	}
	return period, nil
}
