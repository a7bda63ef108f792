package factory

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================
//
//   holidays:
//     - name: Founders day
//       date: "2026-03-04"
//     - name: Christmas Day
//       rrule: "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25"
//     - name: Early May bank holiday
//       rrule: "FREQ=YEARLY;BYMONTH=5;BYDAY=+1MO"
//
// A fixed date only applies to its own year. A recurrence is expanded for
// whichever year is asked for.

// HolidayCalendar is the YAML representation of a holiday file.
type HolidayCalendar struct {
	Holidays []HolidayRule `yaml:"holidays" validate:"required,min=1,dive"`
}

// HolidayRule is either a fixed date or an RFC 5545 recurrence rule.
type HolidayRule struct {
	Name  string `yaml:"name" validate:"required,max=200"`
	Date  string `yaml:"date,omitempty" validate:"required_without=RRule,excluded_with=RRule,omitempty,datetime=2006-01-02"`
	RRule string `yaml:"rrule,omitempty" validate:"required_without=Date"`
}

var validate = validator.New()

// =============================================================================
// LOADING
// =============================================================================

// LoadHolidayFile reads and validates a YAML holiday calendar from disk.
func LoadHolidayFile(path string) (*HolidayCalendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open holiday file: %w", err)
	}
	defer f.Close()

	return ParseHolidays(f)
}

// ParseHolidays decodes and validates a YAML holiday calendar.
func ParseHolidays(r io.Reader) (*HolidayCalendar, error) {
	var cal HolidayCalendar
	if err := yaml.NewDecoder(r).Decode(&cal); err != nil {
		return nil, fmt.Errorf("failed to parse holiday YAML: %w", err)
	}
	if err := validate.Struct(cal); err != nil {
		return nil, fmt.Errorf("invalid holiday calendar: %w", err)
	}
	for i, h := range cal.Holidays {
		if h.RRule == "" {
			continue
		}
		if _, err := rrule.StrToRRule(h.RRule); err != nil {
			return nil, fmt.Errorf("holiday %d (%s): invalid rrule: %w", i, h.Name, err)
		}
	}
	return &cal, nil
}

// =============================================================================
// EXPANSION
// =============================================================================

// Expand returns the holidays falling in year, ordered by date. When two
// entries land on the same date the first one in the file wins.
func (c *HolidayCalendar) Expand(year int) ([]leave.Holiday, error) {
	span := generic.YearPeriod(year)
	seen := make(map[generic.Date]bool)
	var out []leave.Holiday

	add := func(d generic.Date, name string) {
		if seen[d] || !span.Contains(d) {
			return
		}
		seen[d] = true
		out = append(out, leave.Holiday{Date: d, Name: name})
	}

	for _, h := range c.Holidays {
		if h.Date != "" {
			d, err := generic.ParseDate(h.Date)
			if err != nil {
				return nil, fmt.Errorf("holiday %s: %w", h.Name, err)
			}
			add(d, h.Name)
			continue
		}

		occurrences, err := occurrencesIn(h.RRule, year)
		if err != nil {
			return nil, fmt.Errorf("holiday %s: %w", h.Name, err)
		}
		for _, t := range occurrences {
			add(generic.DateOf(t), h.Name)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// occurrencesIn expands a recurrence anchored at January 1 of year.
func occurrencesIn(rule string, year int) ([]time.Time, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	return r.Between(opt.Dtstart, end, true), nil
}
