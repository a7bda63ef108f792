/*
Package leave implements leave-request admission for a crew roster.

PURPOSE:
  Decides whether a leave request is valid, how many chargeable days it
  consumes and whether it would push any calendar day over the staffing
  capacity of the requester's position. On acceptance it drives the balance
  ledger; on reversal it credits the ledger back.

COMPONENTS (leaves first):
  CalendarPolicy   - is a date chargeable (policy.go)
  ChargeableDays   - chargeable days in an inclusive range (workdays.go)
  Ledger           - per user/year allocated and used days (ledger.go)
  CapacityCounter  - approved requests per position per day (capacity.go)
  OverlapDetector  - same-user double booking guard (overlap.go)
  Service          - admission controller and request lifecycle (service.go)

REQUEST LIFECYCLE:
  pending --approve--> approved
  pending --deny-----> denied
  pending --cancel---> cancelled
  approved --delete--> (row removed, balance credited)

  An admin "add leave" creates the request directly in approved.

SEE ALSO:
  - generic/: Date, Period and the error taxonomy
  - store/: Repository implementations
*/
package leave

import (
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REQUEST STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// PEOPLE
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Position partitions capacity. Any non-empty value is accepted; these are the
// two the roster uses today.
type Position string

const (
	PositionCaptain      Position = "captain"
	PositionFirstOfficer Position = "first_officer"
)

// Employee is a person who can hold a balance and book leave.
type Employee struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Position  Position
	CreatedAt time.Time
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID   string
	Role     Role
	Position Position
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// =============================================================================
// REQUESTS
// =============================================================================

// Request is a leave request. Days is computed once at creation and never
// re-derived, since the calendar policy may change afterwards.
type Request struct {
	ID         string
	UserID     string
	Start      generic.Date
	End        generic.Date
	Days       int
	Status     Status
	Reason     string
	ApproverID string
	DecidedAt  *time.Time
	AdminNotes string
	// MeetsMinimumStay is fixed at admission: the request was a first
	// booking that satisfied the minimum-stay rule. Once approved it lifts
	// the rule for the user.
	MeetsMinimumStay bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Period returns the inclusive date range of the request.
func (r Request) Period() generic.Period {
	return generic.Period{Start: r.Start, End: r.End}
}

// Year is the balance year the request is charged against.
func (r Request) Year() int { return r.Start.Year() }

// RequestFilter narrows ListRequests. Zero fields do not filter.
type RequestFilter struct {
	UserID      string
	Statuses    []Status
	Overlapping *generic.Period
}

// =============================================================================
// BALANCES
// =============================================================================

// Balance is the per user/year allocation row.
type Balance struct {
	UserID    string
	Year      int
	Allocated int
	Used      int
}

func (b Balance) Remaining() int { return b.Allocated - b.Used }

type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
)

// BalanceEntry records one movement of a balance. (RequestID, Kind) is unique.
type BalanceEntry struct {
	ID        string
	UserID    string
	Year      int
	RequestID string
	Kind      EntryKind
	Days      int
	CreatedAt time.Time
}

// Delta is the signed change to Used.
func (e BalanceEntry) Delta() int {
	if e.Kind == EntryCredit {
		return -e.Days
	}
	return e.Days
}

// =============================================================================
// POLICY DATA
// =============================================================================

// Holiday is a company-wide non-chargeable date. Dates are unique.
type Holiday struct {
	ID   string
	Date generic.Date
	Name string
}

// Settings is the global policy singleton editable by admins.
type Settings struct {
	ExcludedWeekdays []time.Weekday
	UpdatedAt        time.Time
}
