// Package memory provides an in-memory leave.Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps everything in maps behind one RWMutex. WithTx holds the write
// lock for the whole transaction, which makes transactions serial.
type Store struct {
	mu sync.RWMutex
	st *state
}

type balanceKey struct {
	userID string
	year   int
}

type entryKey struct {
	requestID string
	kind      leave.EntryKind
}

type state struct {
	employees map[string]leave.Employee
	settings  leave.Settings
	holidays  map[string]leave.Holiday
	balances  map[balanceKey]leave.Balance
	entries   map[entryKey]leave.BalanceEntry
	requests  map[string]leave.Request
}

func New() *Store {
	return &Store{st: &state{
		employees: make(map[string]leave.Employee),
		holidays:  make(map[string]leave.Holiday),
		balances:  make(map[balanceKey]leave.Balance),
		entries:   make(map[entryKey]leave.BalanceEntry),
		requests:  make(map[string]leave.Request),
	}}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&view{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		employees: make(map[string]leave.Employee, len(st.employees)),
		settings:  leave.Settings{ExcludedWeekdays: append(st.settings.ExcludedWeekdays[:0:0], st.settings.ExcludedWeekdays...), UpdatedAt: st.settings.UpdatedAt},
		holidays:  make(map[string]leave.Holiday, len(st.holidays)),
		balances:  make(map[balanceKey]leave.Balance, len(st.balances)),
		entries:   make(map[entryKey]leave.BalanceEntry, len(st.entries)),
		requests:  make(map[string]leave.Request, len(st.requests)),
	}
	for k, v := range st.employees {
		c.employees[k] = v
	}
	for k, v := range st.holidays {
		c.holidays[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.requests {
		c.requests[k] = v
	}
	return c
}

func (s *Store) read() *view {
	return &view{st: s.st}
}

// =============================================================================
// LOCKED ACCESSORS (leave.Repository outside a transaction)
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveEmployee(ctx, e)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListEmployees(ctx)
}

func (s *Store) GetSettings(ctx context.Context) (leave.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetSettings(ctx)
}

func (s *Store) SaveSettings(ctx context.Context, settings leave.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveSettings(ctx, settings)
}

func (s *Store) AddHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AddHoliday(ctx, h)
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteHoliday(ctx, id)
}

func (s *Store) ListHolidays(ctx context.Context, period generic.Period) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListHolidays(ctx, period)
}

func (s *Store) CreateBalance(ctx context.Context, b leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateBalance(ctx, b)
}

func (s *Store) GetBalance(ctx context.Context, userID string, year int) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBalance(ctx, userID, year)
}

func (s *Store) ListBalances(ctx context.Context, year int) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBalances(ctx, year)
}

func (s *Store) AppendBalanceEntry(ctx context.Context, e leave.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppendBalanceEntry(ctx, e)
}

func (s *Store) ListBalanceEntries(ctx context.Context, requestID string) ([]leave.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBalanceEntries(ctx, requestID)
}

func (s *Store) CreateRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetRequest(ctx, id)
}

func (s *Store) UpdateRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateRequest(ctx, r)
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRequests(ctx, f)
}

func (s *Store) ListApprovedByPosition(ctx context.Context, position leave.Position, period generic.Period, excludeUserID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListApprovedByPosition(ctx, position, period, excludeUserID)
}

// =============================================================================
// VIEW - Unlocked operations on the current state
// =============================================================================

type view struct {
	st *state
}

func (v *view) SaveEmployee(_ context.Context, e leave.Employee) error {
	for id, existing := range v.st.employees {
		if id != e.ID && existing.Email == e.Email {
			return generic.ErrDuplicateRecord
		}
	}
	v.st.employees[e.ID] = e
	return nil
}

func (v *view) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	e, ok := v.st.employees[id]
	if !ok {
		return nil, generic.ErrRecordNotFound
	}
	return &e, nil
}

func (v *view) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	out := make([]leave.Employee, 0, len(v.st.employees))
	for _, e := range v.st.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) GetSettings(_ context.Context) (leave.Settings, error) {
	s := v.st.settings
	s.ExcludedWeekdays = append(s.ExcludedWeekdays[:0:0], s.ExcludedWeekdays...)
	return s, nil
}

func (v *view) SaveSettings(_ context.Context, s leave.Settings) error {
	s.ExcludedWeekdays = append(s.ExcludedWeekdays[:0:0], s.ExcludedWeekdays...)
	v.st.settings = s
	return nil
}

func (v *view) AddHoliday(_ context.Context, h leave.Holiday) error {
	for _, existing := range v.st.holidays {
		if existing.Date.Equal(h.Date) {
			return generic.ErrDuplicateRecord
		}
	}
	v.st.holidays[h.ID] = h
	return nil
}

func (v *view) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := v.st.holidays[id]; !ok {
		return generic.ErrRecordNotFound
	}
	delete(v.st.holidays, id)
	return nil
}

func (v *view) ListHolidays(_ context.Context, period generic.Period) ([]leave.Holiday, error) {
	var out []leave.Holiday
	for _, h := range v.st.holidays {
		if period.Contains(h.Date) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (v *view) CreateBalance(_ context.Context, b leave.Balance) error {
	k := balanceKey{userID: b.UserID, year: b.Year}
	if _, ok := v.st.employees[b.UserID]; !ok {
		return generic.ErrRecordNotFound
	}
	if _, ok := v.st.balances[k]; ok {
		return generic.ErrDuplicateRecord
	}
	v.st.balances[k] = b
	return nil
}

func (v *view) GetBalance(_ context.Context, userID string, year int) (*leave.Balance, error) {
	b, ok := v.st.balances[balanceKey{userID: userID, year: year}]
	if !ok {
		return nil, generic.ErrRecordNotFound
	}
	return &b, nil
}

func (v *view) ListBalances(_ context.Context, year int) ([]leave.Balance, error) {
	var out []leave.Balance
	for k, b := range v.st.balances {
		if k.year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (v *view) AppendBalanceEntry(_ context.Context, e leave.BalanceEntry) error {
	bk := balanceKey{userID: e.UserID, year: e.Year}
	b, ok := v.st.balances[bk]
	if !ok {
		return generic.ErrRecordNotFound
	}
	ek := entryKey{requestID: e.RequestID, kind: e.Kind}
	if _, dup := v.st.entries[ek]; dup {
		return generic.ErrDuplicateRecord
	}
	v.st.entries[ek] = e
	b.Used += e.Delta()
	v.st.balances[bk] = b
	return nil
}

func (v *view) ListBalanceEntries(_ context.Context, requestID string) ([]leave.BalanceEntry, error) {
	var out []leave.BalanceEntry
	for k, e := range v.st.entries {
		if k.requestID == requestID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *view) CreateRequest(_ context.Context, r leave.Request) error {
	if _, ok := v.st.requests[r.ID]; ok {
		return generic.ErrDuplicateRecord
	}
	if _, ok := v.st.employees[r.UserID]; !ok {
		return generic.ErrRecordNotFound
	}
	v.st.requests[r.ID] = r
	return nil
}

func (v *view) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	r, ok := v.st.requests[id]
	if !ok {
		return nil, generic.ErrRecordNotFound
	}
	return &r, nil
}

func (v *view) UpdateRequest(_ context.Context, r leave.Request) error {
	if _, ok := v.st.requests[r.ID]; !ok {
		return generic.ErrRecordNotFound
	}
	v.st.requests[r.ID] = r
	return nil
}

func (v *view) DeleteRequest(_ context.Context, id string) error {
	if _, ok := v.st.requests[id]; !ok {
		return generic.ErrRecordNotFound
	}
	delete(v.st.requests, id)
	return nil
}

func (v *view) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var out []leave.Request
	for _, r := range v.st.requests {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (v *view) ListApprovedByPosition(_ context.Context, position leave.Position, period generic.Period, excludeUserID string) ([]leave.Request, error) {
	var out []leave.Request
	for _, r := range v.st.requests {
		if r.Status != leave.StatusApproved || r.UserID == excludeUserID || !r.Period().Overlaps(period) {
			continue
		}
		if e, ok := v.st.employees[r.UserID]; ok && e.Position == position {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func matches(r leave.Request, f leave.RequestFilter) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Overlapping != nil && !r.Period().Overlaps(*f.Overlapping) {
		return false
	}
	return true
}

func sortRequests(rs []leave.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Start.Equal(rs[j].Start) {
			return rs[i].Start.Before(rs[j].Start)
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
