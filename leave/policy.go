package leave

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// RULES - Global policy variants, resolved once from configuration
// =============================================================================

// WeekMode selects which weekdays are chargeable by default.
type WeekMode string

const (
	// FiveDayWeek always excludes Saturday and Sunday.
	FiveDayWeek WeekMode = "five_day_week"
	// SevenDayOperational charges every weekday unless the admin excludes it.
	SevenDayOperational WeekMode = "seven_day_operational"
)

// MinimumStayRule selects the first-booking rule.
type MinimumStayRule string

const (
	MinimumStayNone MinimumStayRule = "none"
	// MinimumStayUnconditional: the first booking spans at least N calendar days.
	MinimumStayUnconditional MinimumStayRule = "unconditional"
	// MinimumStayBalanceAware: at least N calendar days while remaining >= N,
	// otherwise the first booking must use up the whole remaining balance.
	MinimumStayBalanceAware MinimumStayRule = "balance_aware"
)

const DefaultMinimumStayDays = 14

// Rules are the global policy variants passed into the Service.
type Rules struct {
	WeekMode        WeekMode
	MinimumStay     MinimumStayRule
	MinimumStayDays int
	// TargetYear restricts bookings to one calendar year. Zero allows any year.
	TargetYear int
}

// DefaultRules is a five-day week with no minimum stay.
func DefaultRules() Rules {
	return Rules{
		WeekMode:        FiveDayWeek,
		MinimumStay:     MinimumStayNone,
		MinimumStayDays: DefaultMinimumStayDays,
	}
}

// Validate checks the variant names and bounds.
func (r Rules) Validate() error {
	switch r.WeekMode {
	case FiveDayWeek, SevenDayOperational:
	default:
		return fmt.Errorf("unknown week mode %q", r.WeekMode)
	}
	switch r.MinimumStay {
	case MinimumStayNone, MinimumStayUnconditional, MinimumStayBalanceAware:
	default:
		return fmt.Errorf("unknown minimum stay rule %q", r.MinimumStay)
	}
	if r.MinimumStay != MinimumStayNone && r.MinimumStayDays < 1 {
		return fmt.Errorf("minimum stay days must be positive, got %d", r.MinimumStayDays)
	}
	if r.TargetYear < 0 {
		return fmt.Errorf("target year must not be negative, got %d", r.TargetYear)
	}
	return nil
}

// =============================================================================
// CALENDAR POLICY - Is a date chargeable?
// =============================================================================

// Calendar answers whether a single date counts against a balance.
type Calendar interface {
	IsChargeable(d generic.Date) bool
}

// CalendarPolicy combines the week mode, the admin's excluded weekdays and the
// holiday list.
type CalendarPolicy struct {
	excluded [7]bool
	holidays map[generic.Date]string
}

// NewCalendarPolicy builds the effective policy for a week mode.
func NewCalendarPolicy(mode WeekMode, excludedWeekdays []time.Weekday, holidays []Holiday) *CalendarPolicy {
	p := &CalendarPolicy{holidays: make(map[generic.Date]string, len(holidays))}
	if mode != SevenDayOperational {
		p.excluded[time.Saturday] = true
		p.excluded[time.Sunday] = true
	}
	for _, wd := range excludedWeekdays {
		if wd >= time.Sunday && wd <= time.Saturday {
			p.excluded[wd] = true
		}
	}
	for _, h := range holidays {
		p.holidays[h.Date] = h.Name
	}
	return p
}

// IsChargeable is false for excluded weekdays and holidays.
func (p *CalendarPolicy) IsChargeable(d generic.Date) bool {
	if p.excluded[d.Weekday()] {
		return false
	}
	_, holiday := p.holidays[d]
	return !holiday
}

// HolidayName returns the holiday on d, if any.
func (p *CalendarPolicy) HolidayName(d generic.Date) (string, bool) {
	name, ok := p.holidays[d]
	return name, ok
}

// ExcludedWeekdays lists the effective excluded weekdays in order.
func (p *CalendarPolicy) ExcludedWeekdays() []time.Weekday {
	var out []time.Weekday
	for wd, excluded := range p.excluded {
		if excluded {
			out = append(out, time.Weekday(wd))
		}
	}
	return out
}

// SanitizeWeekdays keeps unique values in 0..6, sorted.
func SanitizeWeekdays(values []int) []time.Weekday {
	seen := make(map[int]bool, len(values))
	out := make([]time.Weekday, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 6 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, time.Weekday(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
