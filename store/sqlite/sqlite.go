/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Single-file persistence for development and small deployments. The
  PostgreSQL store in store/postgres implements the same contract for
  production; the SQL differs only in dialect.

KEY TABLES:
  employees:        People who can hold a balance
  balances:         Allocated/used days per (user, year)
  balance_entries:  Debit/credit movements, unique per (request, kind)
  requests:         Leave requests in every status
  holidays:         Company-wide non-chargeable dates, unique per date
  settings:         Single row holding the excluded weekdays

CONCURRENCY:
  The pool is limited to one connection and transactions are opened with
  BEGIN IMMEDIATE, so writers are serialised by SQLite itself. A busy or
  locked database surfaces as generic.ErrConcurrentModification, which the
  service retries once.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, rules)

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
  - store/storetest: Contract suite both stores pass
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const timeLayout = time.RFC3339Nano

// Store implements leave.Store using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT NOT NULL REFERENCES employees(id),
		year INTEGER NOT NULL,
		allocated INTEGER NOT NULL CHECK (allocated >= 0),
		used INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0),
		PRIMARY KEY (user_id, year)
	);

	-- Entries outlive their request so a deletion stays auditable.
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		request_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		days INTEGER NOT NULL CHECK (days > 0),
		created_at TEXT NOT NULL,
		UNIQUE (request_id, kind),
		FOREIGN KEY (user_id, year) REFERENCES balances(user_id, year)
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES employees(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT,
		approver_id TEXT,
		decided_at TEXT,
		admin_notes TEXT,
		meets_minimum_stay INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user_dates
		ON requests(user_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status_dates
		ON requests(status, start_date, end_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		excluded_weekdays TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// Databases created before the column existed.
	return s.addColumnIfMissing("requests", "meets_minimum_stay", "INTEGER NOT NULL DEFAULT 0")
}

func (s *Store) addColumnIfMissing(table, column, definition string) error {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return mapError(sqlTx.Commit())
}

// AppendBalanceEntry writes the entry and moves the balance atomically even
// when called outside WithTx.
func (s *Store) AppendBalanceEntry(ctx context.Context, e leave.BalanceEntry) error {
	return s.WithTx(ctx, func(repo leave.Repository) error {
		return repo.AppendBalanceEntry(ctx, e)
	})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements leave.Repository over a *sql.DB or a *sql.Tx.
type queries struct {
	q querier
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *queries) SaveEmployee(ctx context.Context, e leave.Employee) error {
	query := `
		INSERT INTO employees (id, name, email, role, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			position = excluded.position
	`
	_, err := s.q.ExecContext(ctx, query,
		e.ID, e.Name, e.Email, string(e.Role), string(e.Position),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	return mapError(err)
}

func (s *queries) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT id, name, email, role, position, created_at FROM employees WHERE id = ?", id)
	e, err := scanEmployee(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *queries) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, name, email, role, position, created_at FROM employees ORDER BY name")
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
	return employees, rows.Err()
}

// =============================================================================
// SETTINGS & HOLIDAYS
// =============================================================================

func (s *queries) GetSettings(ctx context.Context) (leave.Settings, error) {
	var weekdaysJSON string
	var updatedAt sql.NullString
	err := s.q.QueryRowContext(ctx,
		"SELECT excluded_weekdays, updated_at FROM settings WHERE id = 1",
	).Scan(&weekdaysJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Settings{}, nil
	}
	if err != nil {
		return leave.Settings{}, mapError(err)
	}

	var days []int
	if err := json.Unmarshal([]byte(weekdaysJSON), &days); err != nil {
		return leave.Settings{}, fmt.Errorf("decode excluded weekdays: %w", err)
	}
	settings := leave.Settings{ExcludedWeekdays: leave.SanitizeWeekdays(days)}
	if updatedAt.Valid {
		settings.UpdatedAt, _ = time.Parse(timeLayout, updatedAt.String)
	}
	return settings, nil
}

func (s *queries) SaveSettings(ctx context.Context, settings leave.Settings) error {
	days := make([]int, 0, len(settings.ExcludedWeekdays))
	for _, d := range settings.ExcludedWeekdays {
		days = append(days, int(d))
	}
	weekdaysJSON, _ := json.Marshal(days)

	query := `
		INSERT INTO settings (id, excluded_weekdays, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			excluded_weekdays = excluded.excluded_weekdays,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query, string(weekdaysJSON), nullTime(settings.UpdatedAt))
	return mapError(err)
}

func (s *queries) AddHoliday(ctx context.Context, h leave.Holiday) error {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO holidays (id, date, name) VALUES (?, ?, ?) ON CONFLICT(date) DO NOTHING",
		h.ID, h.Date.String(), h.Name,
	)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res, generic.ErrDuplicateRecord)
}

func (s *queries) DeleteHoliday(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res, generic.ErrRecordNotFound)
}

func (s *queries) ListHolidays(ctx context.Context, period generic.Period) ([]leave.Holiday, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, date, name FROM holidays WHERE date >= ? AND date <= ? ORDER BY date ASC",
		period.Start.String(), period.End.String(),
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDate(date); err != nil {
			return nil, fmt.Errorf("holiday %s: %w", h.ID, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *queries) CreateBalance(ctx context.Context, b leave.Balance) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO balances (user_id, year, allocated, used) VALUES (?, ?, ?, ?)",
		b.UserID, b.Year, b.Allocated, b.Used,
	)
	return mapError(err)
}

func (s *queries) GetBalance(ctx context.Context, userID string, year int) (*leave.Balance, error) {
	var b leave.Balance
	err := s.q.QueryRowContext(ctx,
		"SELECT user_id, year, allocated, used FROM balances WHERE user_id = ? AND year = ?",
		userID, year,
	).Scan(&b.UserID, &b.Year, &b.Allocated, &b.Used)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *queries) ListBalances(ctx context.Context, year int) ([]leave.Balance, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT user_id, year, allocated, used FROM balances WHERE year = ? ORDER BY user_id", year)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var b leave.Balance
		if err := rows.Scan(&b.UserID, &b.Year, &b.Allocated, &b.Used); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (s *queries) AppendBalanceEntry(ctx context.Context, e leave.BalanceEntry) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE balances SET used = used + ? WHERE user_id = ? AND year = ?",
		e.Delta(), e.UserID, e.Year,
	)
	if err != nil {
		return mapError(err)
	}
	if err := expectRow(res, generic.ErrRecordNotFound); err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO balance_entries (id, user_id, year, request_id, kind, days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Year, e.RequestID, string(e.Kind), e.Days,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	return mapError(err)
}

func (s *queries) ListBalanceEntries(ctx context.Context, requestID string) ([]leave.BalanceEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, year, request_id, kind, days, created_at
		FROM balance_entries
		WHERE request_id = ?
		ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []leave.BalanceEntry
	for rows.Next() {
		var e leave.BalanceEntry
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Year, &e.RequestID, &kind, &e.Days, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = leave.EntryKind(kind)
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `
	r.id, r.user_id, r.start_date, r.end_date, r.days, r.status, r.reason,
	r.approver_id, r.decided_at, r.admin_notes, r.meets_minimum_stay,
	r.created_at, r.updated_at`

func (s *queries) CreateRequest(ctx context.Context, r leave.Request) error {
	query := `
		INSERT INTO requests (id, user_id, start_date, end_date, days, status, reason,
			approver_id, decided_at, admin_notes, meets_minimum_stay, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		r.ID, r.UserID, r.Start.String(), r.End.String(), r.Days, string(r.Status),
		nullString(r.Reason), nullString(r.ApproverID), nullTimePtr(r.DecidedAt),
		nullString(r.AdminNotes), r.MeetsMinimumStay,
		r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout),
	)
	return mapError(err)
}

func (s *queries) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	row := s.q.QueryRowContext(ctx, "SELECT"+requestColumns+" FROM requests r WHERE r.id = ?", id)
	r, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *queries) UpdateRequest(ctx context.Context, r leave.Request) error {
	query := `
		UPDATE requests SET
			status = ?, reason = ?, approver_id = ?, decided_at = ?,
			admin_notes = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		string(r.Status), nullString(r.Reason), nullString(r.ApproverID),
		nullTimePtr(r.DecidedAt), nullString(r.AdminNotes),
		r.UpdatedAt.UTC().Format(timeLayout), r.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res, generic.ErrRecordNotFound)
}

func (s *queries) DeleteRequest(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM requests WHERE id = ?", id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(res, generic.ErrRecordNotFound)
}

func (s *queries) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		where = append(where, "r.user_id = ?")
		args = append(args, f.UserID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "r.status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Overlapping != nil {
		where = append(where, "r.start_date <= ? AND r.end_date >= ?")
		args = append(args, f.Overlapping.End.String(), f.Overlapping.Start.String())
	}

	query := "SELECT" + requestColumns + " FROM requests r"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.start_date ASC, r.created_at ASC"
	return s.queryRequests(ctx, query, args...)
}

func (s *queries) ListApprovedByPosition(ctx context.Context, position leave.Position, period generic.Period, excludeUserID string) ([]leave.Request, error) {
	query := `SELECT` + requestColumns + `
		FROM requests r
		JOIN employees e ON e.id = r.user_id
		WHERE r.status = 'approved'
		  AND e.position = ?
		  AND r.user_id <> ?
		  AND r.start_date <= ? AND r.end_date >= ?
		ORDER BY r.start_date ASC, r.created_at ASC
	`
	return s.queryRequests(ctx, query,
		string(position), excludeUserID, period.End.String(), period.Start.String())
}

func (s *queries) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
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
	return requests, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var e leave.Employee
	var role, position, createdAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &role, &position, &createdAt); err != nil {
		return e, mapError(err)
	}
	e.Role = leave.Role(role)
	e.Position = leave.Position(position)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return e, nil
}

func scanRequest(row scanner) (leave.Request, error) {
	var (
		r                    leave.Request
		start, end, status   string
		reason, approver     sql.NullString
		decidedAt, notes     sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.UserID, &start, &end, &r.Days, &status, &reason,
		&approver, &decidedAt, &notes, &r.MeetsMinimumStay, &createdAt, &updatedAt)
	if err != nil {
		return r, mapError(err)
	}

	if r.Start, err = generic.ParseDate(start); err != nil {
		return r, fmt.Errorf("request %s: %w", r.ID, err)
	}
	if r.End, err = generic.ParseDate(end); err != nil {
		return r, fmt.Errorf("request %s: %w", r.ID, err)
	}
	r.Status = leave.Status(status)
	r.Reason = reason.String
	r.ApproverID = approver.String
	r.AdminNotes = notes.String
	if decidedAt.Valid {
		t, _ := time.Parse(timeLayout, decidedAt.String)
		r.DecidedAt = &t
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return r, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullTime(*t)
}

func expectRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

// mapError translates driver errors into the generic store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ErrRecordNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique,
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", generic.ErrDuplicateRecord, err)
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", generic.ErrRecordNotFound, err)
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
		}
	}
	return err
}
