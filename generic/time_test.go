package generic_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
)

func TestDate_ParseAndFormat(t *testing.T) {
	d, err := generic.ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", d.String())
	assert.Equal(t, "2026-03-01", d.AddDays(1).String())
	assert.Equal(t, time.Saturday, d.Weekday())

	_, err = generic.ParseDate("28/02/2026")
	assert.Error(t, err)
	_, err = generic.ParseDate("2026-02-30")
	assert.Error(t, err)
}

func TestDate_DateOfKeepsCallerCalendarDay(t *testing.T) {
	// GIVEN: Late evening of Dec 31 in a far-east zone, which is still Dec 31 in UTC
	tokyo := time.FixedZone("JST", 9*3600)
	late := time.Date(2025, 12, 31, 23, 0, 0, 0, tokyo)

	// THEN: DateOf uses the caller's day; Today uses UTC
	assert.Equal(t, "2025-12-31", generic.DateOf(late).String())
	assert.Equal(t, "2025-12-31", generic.Today(late).String())

	// GIVEN: Just after midnight Jan 1 in the same zone (Dec 31 15:00 UTC)
	early := time.Date(2026, 1, 1, 0, 30, 0, 0, tokyo)
	assert.Equal(t, "2026-01-01", generic.DateOf(early).String())
	assert.Equal(t, "2025-12-31", generic.Today(early).String())
}

func TestDate_SameDayEqualsAcrossConstructors(t *testing.T) {
	a := generic.NewDate(2026, time.March, 10)
	b := generic.MustParseDate("2026-03-10")
	c := generic.DateOf(time.Date(2026, 3, 10, 18, 45, 0, 0, time.FixedZone("X", -5*3600)))

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)

	// Usable as a map key
	m := map[generic.Date]int{a: 1}
	assert.Equal(t, 1, m[b])
	assert.Equal(t, 1, m[c])
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Start generic.Date `json:"start"`
	}
	out, err := json.Marshal(payload{Start: generic.NewDate(2026, 1, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2026-01-05"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2026-12-31"}`), &in))
	assert.Equal(t, generic.NewDate(2026, 12, 31), in.Start)

	assert.Error(t, json.Unmarshal([]byte(`{"start":"tomorrow"}`), &in))
}

func TestPeriod(t *testing.T) {
	d := generic.MustParseDate

	_, err := generic.NewPeriod(d("2026-03-10"), d("2026-03-09"))
	assert.True(t, errors.Is(err, generic.ErrInvalidPeriod))

	p := generic.Period{Start: d("2026-03-10"), End: d("2026-03-12")}
	assert.Equal(t, 3, p.Span())
	assert.Len(t, p.Days(), 3)
	assert.True(t, p.Contains(d("2026-03-10")))
	assert.True(t, p.Contains(d("2026-03-12")))
	assert.False(t, p.Contains(d("2026-03-13")))

	// Touching at one day counts as overlap
	assert.True(t, p.Overlaps(generic.Period{Start: d("2026-03-12"), End: d("2026-03-20")}))
	assert.True(t, p.Overlaps(generic.Period{Start: d("2026-03-01"), End: d("2026-03-10")}))
	assert.False(t, p.Overlaps(generic.Period{Start: d("2026-03-13"), End: d("2026-03-20")}))

	shared, ok := p.Intersect(generic.Period{Start: d("2026-03-11"), End: d("2026-04-01")})
	require.True(t, ok)
	assert.Equal(t, generic.Period{Start: d("2026-03-11"), End: d("2026-03-12")}, shared)

	year := generic.YearPeriod(2028)
	assert.Equal(t, 366, year.Span())
	assert.Equal(t, "[2028-01-01, 2028-12-31]", year.String())
}
