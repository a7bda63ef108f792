package leave_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestLedger_DebitThenCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 20)
	ledger := leave.NewLedger(f.store, nil)

	// WHEN: 5 days are debited
	require.NoError(t, ledger.Debit(ctx, "u1", 2026, 5, "r1"))

	// THEN: Remaining drops by 5
	rem, err := ledger.Remaining(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, leave.Remaining{Allocated: 20, Used: 5, Remaining: 15}, rem)

	// WHEN: The same request is credited back
	require.NoError(t, ledger.Credit(ctx, "u1", 2026, 5, "r1"))

	// THEN: The balance is where it started
	rem, err = ledger.Remaining(ctx, "u1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, rem.Used)
}

func TestLedger_DoubleDebitIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 20)
	ledger := leave.NewLedger(f.store, nil)

	require.NoError(t, ledger.Debit(ctx, "u1", 2026, 2, "r1"))
	err := ledger.Debit(ctx, "u1", 2026, 2, "r1")

	assert.ErrorIs(t, err, generic.ErrIntegrity)
	assert.Equal(t, 2, f.used(t, "u1"))
}

func TestLedger_CreditWithoutMatchingDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 20)
	ledger := leave.NewLedger(f.store, nil)

	// Nothing was ever debited
	err := ledger.Credit(ctx, "u1", 2026, 3, "r1")
	assert.ErrorIs(t, err, generic.ErrIntegrity)

	// Amount differs from the debit
	require.NoError(t, ledger.Debit(ctx, "u1", 2026, 3, "r2"))
	err = ledger.Credit(ctx, "u1", 2026, 4, "r2")
	assert.ErrorIs(t, err, generic.ErrIntegrity)

	// Second credit for the same request
	require.NoError(t, ledger.Credit(ctx, "u1", 2026, 3, "r2"))
	err = ledger.Credit(ctx, "u1", 2026, 3, "r2")
	assert.ErrorIs(t, err, generic.ErrIntegrity)

	assert.Equal(t, 0, f.used(t, "u1"))
}

func TestLedger_NoAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, leave.DefaultRules())
	f.employee(t, "u1", leave.PositionCaptain, 20)
	ledger := leave.NewLedger(f.store, nil)

	_, err := ledger.Remaining(ctx, "u1", 2027)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Equal(t, "User has no leave allocation for 2027", generic.Message(err))

	assert.ErrorIs(t, ledger.Debit(ctx, "u1", 2026, 0, "r1"), generic.ErrValidation)
}
