package leave

import "github.com/warp/leave-engine/generic"

// ChargeableDays counts the chargeable dates in [start, end], walking the range
// one calendar day at a time. A reversed range counts nothing.
func ChargeableDays(start, end generic.Date, calendar Calendar) int {
	days := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if calendar.IsChargeable(d) {
			days++
		}
	}
	return days
}
