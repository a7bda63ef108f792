package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// Friday 2 January 2026, mid-morning UTC.
var testNow = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

var admin = leave.Actor{UserID: "admin", Role: leave.RoleAdmin}

type fixture struct {
	store  *memory.Store
	svc    *leave.Service
	events *recorder
}

func newFixture(t *testing.T, rules leave.Rules) *fixture {
	t.Helper()
	store := memory.New()
	events := &recorder{}
	svc := leave.NewService(store, rules,
		leave.WithClock(func() time.Time { return testNow }),
		leave.WithNotifier(events),
		leave.WithLogger(zaptest.NewLogger(t)),
	)
	return &fixture{store: store, svc: svc, events: events}
}

// employee stores an employee with a 2026 allocation and returns their actor.
func (f *fixture) employee(t *testing.T, id string, position leave.Position, allocated int) leave.Actor {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveEmployee(ctx, leave.Employee{
		ID:        id,
		Name:      "Employee " + id,
		Email:     id + "@example.com",
		Role:      leave.RoleEmployee,
		Position:  position,
		CreatedAt: testNow,
	}))
	require.NoError(t, f.store.CreateBalance(ctx, leave.Balance{UserID: id, Year: 2026, Allocated: allocated}))
	return leave.Actor{UserID: id, Role: leave.RoleEmployee, Position: position}
}

func (f *fixture) used(t *testing.T, userID string) int {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), userID, 2026)
	require.NoError(t, err)
	return b.Used
}

func (f *fixture) submit(actor leave.Actor, start, end string) (*leave.Request, error) {
	return f.svc.Submit(context.Background(), actor, leave.SubmitInput{
		Start: generic.MustParseDate(start),
		End:   generic.MustParseDate(end),
	})
}

func (f *fixture) add(userID, start, end string) (*leave.Request, error) {
	return f.svc.AddLeave(context.Background(), admin, leave.AddInput{
		UserID: userID,
		Start:  generic.MustParseDate(start),
		End:    generic.MustParseDate(end),
	})
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []leave.Event
}

func (r *recorder) Notify(_ context.Context, e leave.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []leave.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leave.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, leave.Event) error {
	return errors.New("broker unavailable")
}

// flakyStore fails the first `failures` transactions with a serialization
// conflict before delegating.
type flakyStore struct {
	*memory.Store
	failures int
	calls    int
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	s.calls++
	if s.calls <= s.failures {
		return generic.ErrConcurrentModification
	}
	return s.Store.WithTx(ctx, fn)
}

// staticCalendar charges every day except the listed ones.
type staticCalendar map[generic.Date]bool

func (c staticCalendar) IsChargeable(d generic.Date) bool { return !c[d] }
