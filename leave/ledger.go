package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// BALANCE LEDGER - Allocated/used days per user and year
// =============================================================================

// Remaining is a balance snapshot.
type Remaining struct {
	Allocated int
	Used      int
	Remaining int
}

// Ledger reads and moves balances through a Repository. Build it on the
// transactional repository so movements commit with the status change.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Remaining fails with a NotFound error when the user has no allocation for
// the year. That is not the same thing as zero remaining.
func (l *Ledger) Remaining(ctx context.Context, userID string, year int) (Remaining, error) {
	b, err := l.balance(ctx, userID, year)
	if err != nil {
		return Remaining{}, err
	}
	return Remaining{Allocated: b.Allocated, Used: b.Used, Remaining: b.Remaining()}, nil
}

// Debit charges days against the balance for requestID.
func (l *Ledger) Debit(ctx context.Context, userID string, year, days int, requestID string) error {
	if days < 1 {
		return generic.Validation("Cannot debit %d days", days)
	}
	if _, err := l.balance(ctx, userID, year); err != nil {
		return err
	}
	err := l.repo.AppendBalanceEntry(ctx, BalanceEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Year:      year,
		RequestID: requestID,
		Kind:      EntryDebit,
		Days:      days,
		CreatedAt: l.now().UTC(),
	})
	if errors.Is(err, generic.ErrDuplicateRecord) {
		return generic.Integrity(err, "Leave request %s has already been charged", requestID)
	}
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	return nil
}

// Credit reverses the debit recorded for requestID. It refuses to credit
// without a matching debit, to credit twice, or to take used below zero.
func (l *Ledger) Credit(ctx context.Context, userID string, year, days int, requestID string) error {
	b, err := l.balance(ctx, userID, year)
	if err != nil {
		return err
	}

	entries, err := l.repo.ListBalanceEntries(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load balance entries: %w", err)
	}
	var debited, credited bool
	for _, e := range entries {
		switch e.Kind {
		case EntryDebit:
			debited = e.Days == days && e.UserID == userID && e.Year == year
		case EntryCredit:
			credited = true
		}
	}
	if !debited || credited {
		return generic.Integrity(nil, "No matching charge to restore for leave request %s", requestID)
	}
	if b.Used-days < 0 {
		return generic.Integrity(nil, "Restoring %d days would make used days negative", days)
	}

	err = l.repo.AppendBalanceEntry(ctx, BalanceEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Year:      year,
		RequestID: requestID,
		Kind:      EntryCredit,
		Days:      days,
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (l *Ledger) balance(ctx context.Context, userID string, year int) (*Balance, error) {
	b, err := l.repo.GetBalance(ctx, userID, year)
	if errors.Is(err, generic.ErrRecordNotFound) {
		return nil, generic.NotFound("User has no leave allocation for %d", year)
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return b, nil
}
