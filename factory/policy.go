/*
Package factory converts external policy and holiday definitions into leave
domain values.

PURPOSE:
  Leave rules (week mode, first-booking rule, target year) and the holiday
  calendar are configuration, not code. Operators describe them in JSON or
  YAML and the factory produces validated leave.Rules and leave.Holiday
  values the service consumes.

JSON SCHEMA (rules):
  {
    "week_mode": "five_day_week",          // or "seven_day_operational"
    "minimum_stay": {
      "rule": "balance_aware",             // none | unconditional | balance_aware
      "days": 14
    },
    "target_year": 2026                    // optional, 0 = any year
  }

USAGE:
  f := NewPolicyFactory()
  rules, err := f.ParsePolicy(jsonString)

  // From flat configuration keys (env / viper)
  rules, err := f.FromSettings("seven_day_operational", "unconditional", 14, 0)

  svc := leave.NewService(store, rules)

SEE ALSO:
  - leave/policy.go: Rules and CalendarPolicy
  - factory/holidays.go: YAML holiday calendars with RRULE recurrences
  - config/config.go: where the flat keys come from
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of the leave rules.
type PolicyJSON struct {
	WeekMode    string           `json:"week_mode"`
	MinimumStay *MinimumStayJSON `json:"minimum_stay,omitempty"`
	TargetYear  int              `json:"target_year,omitempty"`
}

// MinimumStayJSON configures the first-booking rule.
type MinimumStayJSON struct {
	Rule string `json:"rule"`
	Days int    `json:"days,omitempty"` // defaults to leave.DefaultMinimumStayDays
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to leave.Rules.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into validated rules.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (leave.Rules, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return leave.Rules{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}

	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to leave.Rules. Missing fields fall back to
// leave.DefaultRules.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (leave.Rules, error) {
	rules := leave.DefaultRules()
	rules.TargetYear = pj.TargetYear

	if pj.WeekMode != "" {
		rules.WeekMode = parseWeekMode(pj.WeekMode)
	}
	if pj.MinimumStay != nil {
		rules.MinimumStay = parseMinimumStay(pj.MinimumStay.Rule)
		if pj.MinimumStay.Days != 0 {
			rules.MinimumStayDays = pj.MinimumStay.Days
		}
	}

	if err := rules.Validate(); err != nil {
		return leave.Rules{}, fmt.Errorf("invalid leave policy: %w", err)
	}
	return rules, nil
}

// FromSettings builds rules from flat configuration values. Empty strings
// and zero days keep the defaults.
func (f *PolicyFactory) FromSettings(weekMode, minimumStay string, minimumStayDays, targetYear int) (leave.Rules, error) {
	pj := PolicyJSON{WeekMode: weekMode, TargetYear: targetYear}
	if minimumStay != "" {
		pj.MinimumStay = &MinimumStayJSON{Rule: minimumStay, Days: minimumStayDays}
	}
	return f.FromJSON(pj)
}

// ToJSON converts rules back to their JSON form.
func (f *PolicyFactory) ToJSON(rules leave.Rules) ([]byte, error) {
	pj := PolicyJSON{
		WeekMode:   string(rules.WeekMode),
		TargetYear: rules.TargetYear,
	}
	if rules.MinimumStay != "" && rules.MinimumStay != leave.MinimumStayNone {
		pj.MinimumStay = &MinimumStayJSON{
			Rule: string(rules.MinimumStay),
			Days: rules.MinimumStayDays,
		}
	}
	return json.MarshalIndent(pj, "", "  ")
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

// parseWeekMode accepts a few spellings operators tend to use. Anything else
// is passed through so Validate can reject it with the original value.
func parseWeekMode(s string) leave.WeekMode {
	switch normalize(s) {
	case "five_day_week", "five_day", "5":
		return leave.FiveDayWeek
	case "seven_day_operational", "seven_day", "7":
		return leave.SevenDayOperational
	default:
		return leave.WeekMode(s)
	}
}

func parseMinimumStay(s string) leave.MinimumStayRule {
	switch normalize(s) {
	case "", "none", "off":
		return leave.MinimumStayNone
	case "unconditional", "always":
		return leave.MinimumStayUnconditional
	case "balance_aware":
		return leave.MinimumStayBalanceAware
	default:
		return leave.MinimumStayRule(s)
	}
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// =============================================================================
// PRESET POLICIES
// =============================================================================

// CrewRosterJSON is the seven-day operational roster where the first booking
// of the year must be a block of at least days calendar days, or the whole
// remaining balance when less is left.
func CrewRosterJSON(targetYear, days int) string {
	return fmt.Sprintf(`{
  "week_mode": "seven_day_operational",
  "minimum_stay": {"rule": "balance_aware", "days": %d},
  "target_year": %d
}`, days, targetYear)
}

// OfficeJSON is a plain Monday to Friday calendar without a first-booking rule.
func OfficeJSON() string {
	return `{"week_mode": "five_day_week"}`
}
