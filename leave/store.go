/*
store.go - Persistence interface for the leave engine

PURPOSE:
  Defines the boundary between the admission logic and the database.
  Implementations: store/memory (tests, dev), store/sqlite (single node),
  store/postgres (production).

KEY INTERFACES:
  Repository: reads and writes for employees, balances, requests, holidays,
              settings
  Store:      Repository plus WithTx for atomic multi-table writes

ERROR CONTRACT:
  - Missing rows:       generic.ErrRecordNotFound
  - Unique violations:  generic.ErrDuplicateRecord
  - Serialization/lock: generic.ErrConcurrentModification (retried once by
                        the service)

ISOLATION:
  WithTx must give serializable behavior for the balance check-then-debit and
  the capacity count-then-insert sequences. PostgreSQL runs SERIALIZABLE,
  SQLite takes the write lock at BEGIN, memory holds a global lock.

SEE ALSO:
  - service.go: Uses WithTx around every admission/approval/deletion
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// Repository is everything the engine reads and writes.
type Repository interface {
	// Employees
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	// Policy
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	AddHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	// ListHolidays returns holidays inside the period ordered by date.
	ListHolidays(ctx context.Context, period generic.Period) ([]Holiday, error)

	// Balances
	CreateBalance(ctx context.Context, b Balance) error
	GetBalance(ctx context.Context, userID string, year int) (*Balance, error)
	ListBalances(ctx context.Context, year int) ([]Balance, error)
	// AppendBalanceEntry records the entry and applies its delta to Used.
	AppendBalanceEntry(ctx context.Context, e BalanceEntry) error
	ListBalanceEntries(ctx context.Context, requestID string) ([]BalanceEntry, error)

	// Requests
	CreateRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequest(ctx context.Context, r Request) error
	DeleteRequest(ctx context.Context, id string) error
	// ListRequests returns matching requests ordered by start date.
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)
	// ListApprovedByPosition returns approved requests overlapping the period
	// whose owner holds the position, skipping excludeUserID.
	ListApprovedByPosition(ctx context.Context, position Position, period generic.Period, excludeUserID string) ([]Request, error)
}

// Store wraps Repository with transaction support.
type Store interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
