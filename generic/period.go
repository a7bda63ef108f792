package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - A leave request: 2026-01-05 .. 2026-01-11
//   - Calendar year 2026: Jan 1 - Dec 31
type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates start <= end.
func NewPeriod(start, end Date) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// YearPeriod returns Jan 1 - Dec 31 of the year.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps is the inclusive intersection test:
// p.Start <= other.End AND p.End >= other.Start.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// Intersect returns the shared part of two periods.
func (p Period) Intersect(other Period) (Period, bool) {
	if !p.Overlaps(other) {
		return Period{}, false
	}
	start, end := p.Start, p.End
	if other.Start.After(start) {
		start = other.Start
	}
	if other.End.Before(end) {
		end = other.End
	}
	return Period{Start: start, End: end}, true
}

// Span is the number of calendar days in the period, both ends included.
func (p Period) Span() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns every day in the period.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Span())
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
