// Package billing holds the billing-cycle arithmetic shared by subscriptions and invoices.
//
// Month-based cycles clamp to the last day of the target month when the start day
// does not exist there: Jan 31 + 1 month = Feb 28 (Feb 29 in leap years).
// Clamping is computed from the period origin, so periods never drift shorter
// after passing through a short month when PeriodAfter is used.
package billing

import (
	"strings"
	"time"

	"github.com/msgdeck/msgdeck/internal/apperr"
)

type Cycle string

const (
	Daily        Cycle = "daily"
	Weekly       Cycle = "weekly"
	Monthly      Cycle = "monthly"
	Quarterly    Cycle = "quarterly"
	Semiannually Cycle = "semiannually"
	Annually     Cycle = "annually"
)

var cycles = []Cycle{Daily, Weekly, Monthly, Quarterly, Semiannually, Annually}

// Cycles returns all supported billing cycles.
func Cycles() []Cycle {
	out := make([]Cycle, len(cycles))
	copy(out, cycles)

	return out
}

// ParseCycle resolves raw input into a canonical Cycle.
// "yearly" is accepted as an alias of Annually; anything else outside the enum is rejected.
func ParseCycle(raw string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(raw)))
	if c == "yearly" {
		return Annually, nil
	}

	if !c.Valid() {
		return "", apperr.BadRequest("unknown billing cycle %q", raw)
	}

	return c, nil
}

func (c Cycle) Valid() bool {
	for _, known := range cycles {
		if c == known {
			return true
		}
	}

	return false
}

func (c Cycle) String() string {
	return string(c)
}

// step returns (days, months) added by a single cycle.
func (c Cycle) step() (days, months int, ok bool) {
	switch c {
	case Daily:
		return 1, 0, true
	case Weekly:
		return 7, 0, true
	case Monthly:
		return 0, 1, true
	case Quarterly:
		return 0, 3, true
	case Semiannually:
		return 0, 6, true
	case Annually:
		return 0, 12, true
	}

	return 0, 0, false
}

// PeriodEnd returns the end of a single billing period beginning at start.
// The result is always strictly after start.
func PeriodEnd(start time.Time, cycle Cycle) (time.Time, error) {
	return PeriodAfter(start, cycle, 1)
}

// PeriodAfter returns the instant n cycles after origin.
func PeriodAfter(origin time.Time, cycle Cycle, n int) (time.Time, error) {
	if n < 1 {
		return time.Time{}, apperr.BadRequest("period count must be positive, got %d", n)
	}

	days, months, ok := cycle.step()
	if !ok {
		return time.Time{}, apperr.BadRequest("unknown billing cycle %q", string(cycle))
	}

	if months == 0 {
		return origin.AddDate(0, 0, days*n), nil
	}

	return addMonthsClamped(origin, months*n), nil
}

// maxBoundarySearch bounds NextPeriodEnd; ~27 years of daily periods.
const maxBoundarySearch = 10_000

// NextPeriodEnd returns the first cycle boundary counted from anchor that lies strictly after from.
// Renewals use it with the subscription's billing anchor so month-end clamping in one period
// does not shorten every following one.
func NextPeriodEnd(anchor, from time.Time, cycle Cycle) (time.Time, error) {
	if from.Before(anchor) {
		return PeriodEnd(from, cycle)
	}

	for n := 1; n <= maxBoundarySearch; n++ {
		end, err := PeriodAfter(anchor, cycle, n)
		if err != nil {
			return time.Time{}, err
		}

		if end.After(from) {
			return end, nil
		}
	}

	return time.Time{}, apperr.BadRequest("billing anchor %s is too far behind %s", anchor, from)
}

// AddDays shifts t by whole calendar days in t's location.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// first day of the target month, normalized by time.Date
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}

	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
