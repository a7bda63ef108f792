package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// PositionCapacity is the maximum number of approved requests per position on
// any single calendar day.
const PositionCapacity = 5

// =============================================================================
// CAPACITY COUNTER - Approved requests per position per day
// =============================================================================

// CapacityResult is the outcome of a capacity check.
type CapacityResult struct {
	Allowed       bool
	FirstConflict *generic.Date
}

type CapacityCounter struct {
	repo Repository
	cap  int
}

func NewCapacityCounter(repo Repository) *CapacityCounter {
	return &CapacityCounter{repo: repo, cap: PositionCapacity}
}

// Check walks the candidate period in date order and stops at the first day
// already holding cap approved requests for the position.
func (c *CapacityCounter) Check(ctx context.Context, position Position, period generic.Period, excludeUserID string) (CapacityResult, error) {
	counts, err := c.counts(ctx, position, period, excludeUserID)
	if err != nil {
		return CapacityResult{}, err
	}
	for d := period.Start; d.BeforeOrEqual(period.End); d = d.AddDays(1) {
		if counts[d] >= c.cap {
			day := d
			return CapacityResult{Allowed: false, FirstConflict: &day}, nil
		}
	}
	return CapacityResult{Allowed: true}, nil
}

// DisabledDates lists every day of the period at or over the cap.
func (c *CapacityCounter) DisabledDates(ctx context.Context, position Position, period generic.Period, excludeUserID string) ([]generic.Date, error) {
	counts, err := c.counts(ctx, position, period, excludeUserID)
	if err != nil {
		return nil, err
	}
	disabled := []generic.Date{}
	for d := period.Start; d.BeforeOrEqual(period.End); d = d.AddDays(1) {
		if counts[d] >= c.cap {
			disabled = append(disabled, d)
		}
	}
	return disabled, nil
}

func (c *CapacityCounter) counts(ctx context.Context, position Position, period generic.Period, excludeUserID string) (map[generic.Date]int, error) {
	approved, err := c.repo.ListApprovedByPosition(ctx, position, period, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("load approved requests for %s: %w", position, err)
	}
	return DailyCounts(approved, period), nil
}

// DailyCounts counts, for each day of window, how many of the requests cover it.
// Days outside window are not counted.
func DailyCounts(requests []Request, window generic.Period) map[generic.Date]int {
	counts := make(map[generic.Date]int)
	for _, r := range requests {
		shared, ok := r.Period().Intersect(window)
		if !ok {
			continue
		}
		for d := shared.Start; d.BeforeOrEqual(shared.End); d = d.AddDays(1) {
			counts[d]++
		}
	}
	return counts
}
