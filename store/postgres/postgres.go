/*
Package postgres provides the production leave.Store on PostgreSQL.

PURPOSE:
  Same contract as store/sqlite with real multi-writer concurrency. Every
  WithTx runs at SERIALIZABLE isolation, so the balance check-then-debit and
  the capacity count-then-approve sequences cannot interleave. A
  serialization failure surfaces as generic.ErrConcurrentModification and
  the service retries once.

SCHEMA:
  Versioned with golang-migrate; files live in migrations/ and are embedded
  into the binary. Run Migrate before New on a fresh database.

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/storetest: Contract suite (set LEAVE_TEST_PGSQL_URL to run it here)
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store on a pgx connection pool.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

// New connects and pings the database.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config from URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zap.L().Named("store.postgres").Info("connected to PostgreSQL",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database))
	return &Store{queries: &queries{q: pool}, pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTx runs fn in a SERIALIZABLE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

// AppendBalanceEntry writes the entry and moves the balance atomically even
// when called outside WithTx.
func (s *Store) AppendBalanceEntry(ctx context.Context, e leave.BalanceEntry) error {
	return s.WithTx(ctx, func(repo leave.Repository) error {
		return repo.AppendBalanceEntry(ctx, e)
	})
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q querier
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *queries) SaveEmployee(ctx context.Context, e leave.Employee) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO employees (id, name, email, role, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			position = EXCLUDED.position`,
		e.ID, e.Name, e.Email, string(e.Role), string(e.Position), e.CreatedAt.UTC())
	return mapError(err)
}

func (s *queries) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, name, email, role, position, created_at FROM employees WHERE id = $1`, id)
	e, err := scanEmployee(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *queries) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, name, email, role, position, created_at FROM employees ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, mapError(rows.Err())
}

// =============================================================================
// SETTINGS & HOLIDAYS
// =============================================================================

func (s *queries) GetSettings(ctx context.Context) (leave.Settings, error) {
	var days []int32
	var updatedAt *time.Time
	err := s.q.QueryRow(ctx,
		`SELECT excluded_weekdays, updated_at FROM settings WHERE id = 1`,
	).Scan(&days, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Settings{}, nil
	}
	if err != nil {
		return leave.Settings{}, mapError(err)
	}

	ints := make([]int, len(days))
	for i, d := range days {
		ints[i] = int(d)
	}
	settings := leave.Settings{ExcludedWeekdays: leave.SanitizeWeekdays(ints)}
	if updatedAt != nil {
		settings.UpdatedAt = updatedAt.UTC()
	}
	return settings, nil
}

func (s *queries) SaveSettings(ctx context.Context, settings leave.Settings) error {
	days := make([]int32, 0, len(settings.ExcludedWeekdays))
	for _, d := range settings.ExcludedWeekdays {
		days = append(days, int32(d))
	}
	var updatedAt *time.Time
	if !settings.UpdatedAt.IsZero() {
		t := settings.UpdatedAt.UTC()
		updatedAt = &t
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO settings (id, excluded_weekdays, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			excluded_weekdays = EXCLUDED.excluded_weekdays,
			updated_at = EXCLUDED.updated_at`,
		days, updatedAt)
	return mapError(err)
}

// AddHoliday uses ON CONFLICT DO NOTHING so a duplicate date does not abort
// the surrounding transaction.
func (s *queries) AddHoliday(ctx context.Context, h leave.Holiday) error {
	tag, err := s.q.Exec(ctx,
		`INSERT INTO holidays (id, date, name) VALUES ($1, $2, $3) ON CONFLICT (date) DO NOTHING`,
		h.ID, h.Date.Time(), h.Name)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrDuplicateRecord
	}
	return nil
}

func (s *queries) DeleteHoliday(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrRecordNotFound
	}
	return nil
}

func (s *queries) ListHolidays(ctx context.Context, period generic.Period) ([]leave.Holiday, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, name FROM holidays WHERE date BETWEEN $1 AND $2 ORDER BY date`,
		period.Start.Time(), period.End.Time())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date time.Time
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, mapError(err)
		}
		h.Date = generic.DateOf(date)
		holidays = append(holidays, h)
	}
	return holidays, mapError(rows.Err())
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *queries) CreateBalance(ctx context.Context, b leave.Balance) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO balances (user_id, year, allocated, used) VALUES ($1, $2, $3, $4)`,
		b.UserID, b.Year, b.Allocated, b.Used)
	return mapError(err)
}

func (s *queries) GetBalance(ctx context.Context, userID string, year int) (*leave.Balance, error) {
	var b leave.Balance
	err := s.q.QueryRow(ctx,
		`SELECT user_id, year, allocated, used FROM balances WHERE user_id = $1 AND year = $2`,
		userID, year,
	).Scan(&b.UserID, &b.Year, &b.Allocated, &b.Used)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *queries) ListBalances(ctx context.Context, year int) ([]leave.Balance, error) {
	rows, err := s.q.Query(ctx,
		`SELECT user_id, year, allocated, used FROM balances WHERE year = $1 ORDER BY user_id`, year)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var b leave.Balance
		if err := rows.Scan(&b.UserID, &b.Year, &b.Allocated, &b.Used); err != nil {
			return nil, mapError(err)
		}
		balances = append(balances, b)
	}
	return balances, mapError(rows.Err())
}

func (s *queries) AppendBalanceEntry(ctx context.Context, e leave.BalanceEntry) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE balances SET used = used + $1 WHERE user_id = $2 AND year = $3`,
		e.Delta(), e.UserID, e.Year)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrRecordNotFound
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO balance_entries (id, user_id, year, request_id, kind, days, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Year, e.RequestID, string(e.Kind), e.Days, e.CreatedAt.UTC())
	return mapError(err)
}

func (s *queries) ListBalanceEntries(ctx context.Context, requestID string) ([]leave.BalanceEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, year, request_id, kind, days, created_at
		FROM balance_entries WHERE request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []leave.BalanceEntry
	for rows.Next() {
		var e leave.BalanceEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Year, &e.RequestID, &kind, &e.Days, &e.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		e.Kind = leave.EntryKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, mapError(rows.Err())
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `
	r.id, r.user_id, r.start_date, r.end_date, r.days, r.status, r.reason,
	r.approver_id, r.decided_at, r.admin_notes, r.meets_minimum_stay,
	r.created_at, r.updated_at`

func (s *queries) CreateRequest(ctx context.Context, r leave.Request) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO requests (id, user_id, start_date, end_date, days, status, reason,
			approver_id, decided_at, admin_notes, meets_minimum_stay, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.UserID, r.Start.Time(), r.End.Time(), r.Days, string(r.Status), r.Reason,
		r.ApproverID, r.DecidedAt, r.AdminNotes, r.MeetsMinimumStay, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	return mapError(err)
}

func (s *queries) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	row := s.q.QueryRow(ctx, `SELECT`+requestColumns+` FROM requests r WHERE r.id = $1`, id)
	r, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *queries) UpdateRequest(ctx context.Context, r leave.Request) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE requests SET
			status = $1, reason = $2, approver_id = $3, decided_at = $4,
			admin_notes = $5, updated_at = $6
		WHERE id = $7`,
		string(r.Status), r.Reason, r.ApproverID, r.DecidedAt, r.AdminNotes, r.UpdatedAt.UTC(), r.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrRecordNotFound
	}
	return nil
}

func (s *queries) DeleteRequest(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrRecordNotFound
	}
	return nil
}

func (s *queries) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		where = append(where, "r.user_id = "+arg(f.UserID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "r.status = ANY("+arg(statuses)+")")
	}
	if f.Overlapping != nil {
		where = append(where, "r.start_date <= "+arg(f.Overlapping.End.Time()))
		where = append(where, "r.end_date >= "+arg(f.Overlapping.Start.Time()))
	}

	query := `SELECT` + requestColumns + ` FROM requests r`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.start_date, r.created_at"
	return s.queryRequests(ctx, query, args...)
}

// ListApprovedByPosition reads with FOR SHARE so a concurrent approval of the
// same rows conflicts at commit.
func (s *queries) ListApprovedByPosition(ctx context.Context, position leave.Position, period generic.Period, excludeUserID string) ([]leave.Request, error) {
	return s.queryRequests(ctx, `SELECT`+requestColumns+`
		FROM requests r
		JOIN employees e ON e.id = r.user_id
		WHERE r.status = 'approved'
		  AND e.position = $1
		  AND r.user_id <> $2
		  AND r.start_date <= $3 AND r.end_date >= $4
		ORDER BY r.start_date, r.created_at
		FOR SHARE OF r`,
		string(position), excludeUserID, period.End.Time(), period.Start.Time())
}

func (s *queries) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, mapError(rows.Err())
}

// =============================================================================
// SCANNING & ERRORS
// =============================================================================

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var e leave.Employee
	var role, position string
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &role, &position, &e.CreatedAt); err != nil {
		return e, mapError(err)
	}
	e.Role = leave.Role(role)
	e.Position = leave.Position(position)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func scanRequest(row pgx.Row) (leave.Request, error) {
	var r leave.Request
	var start, end time.Time
	var status string
	err := row.Scan(&r.ID, &r.UserID, &start, &end, &r.Days, &status, &r.Reason,
		&r.ApproverID, &r.DecidedAt, &r.AdminNotes, &r.MeetsMinimumStay, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, mapError(err)
	}
	r.Start = generic.DateOf(start)
	r.End = generic.DateOf(end)
	r.Status = leave.Status(status)
	if r.DecidedAt != nil {
		t := r.DecidedAt.UTC()
		r.DecidedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// mapError translates pgx errors into the generic store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.ErrRecordNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", generic.ErrDuplicateRecord, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", generic.ErrRecordNotFound, pgErr.ConstraintName)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
		}
	}
	return err
}
