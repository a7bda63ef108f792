package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// OverlapDetector guards a user against double-booking. Other users are
// never considered.
type OverlapDetector struct {
	repo Repository
}

func NewOverlapDetector(repo Repository) *OverlapDetector {
	return &OverlapDetector{repo: repo}
}

// HasOverlap reports whether any of the user's requests in the given statuses
// (pending and approved when none are given) intersects the period.
func (d *OverlapDetector) HasOverlap(ctx context.Context, userID string, period generic.Period, statuses ...Status) (bool, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusPending, StatusApproved}
	}
	existing, err := d.repo.ListRequests(ctx, RequestFilter{
		UserID:      userID,
		Statuses:    statuses,
		Overlapping: &period,
	})
	if err != nil {
		return false, fmt.Errorf("load requests for overlap check: %w", err)
	}
	for _, r := range existing {
		if r.Period().Overlaps(period) {
			return true, nil
		}
	}
	return false, nil
}
