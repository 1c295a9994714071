package billing

import (
	"testing"
	"time"

	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	for _, tc := range []struct {
		cycle  Cycle
		expect time.Time
	}{
		{Daily, time.Date(2024, time.March, 16, 10, 30, 0, 0, time.UTC)},
		{Weekly, time.Date(2024, time.March, 22, 10, 30, 0, 0, time.UTC)},
		{Monthly, time.Date(2024, time.April, 15, 10, 30, 0, 0, time.UTC)},
		{Quarterly, time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)},
		{Semiannually, time.Date(2024, time.September, 15, 10, 30, 0, 0, time.UTC)},
		{Annually, time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)},
	} {
		t.Run(string(tc.cycle), func(t *testing.T) {
			end, err := PeriodEnd(start, tc.cycle)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, end)
			assert.True(t, end.After(start))
		})
	}
}

func TestPeriodEnd_AlwaysAfterStart(t *testing.T) {
	starts := []time.Time{
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2023, time.December, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, time.August, 31, 0, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)),
	}

	for _, start := range starts {
		for _, cycle := range Cycles() {
			end, err := PeriodEnd(start, cycle)
			require.NoError(t, err)
			assert.True(t, end.After(start), "%s + %s", start, cycle)
		}
	}
}

func TestPeriodEnd_MonthEndClamp(t *testing.T) {
	for _, tc := range []struct {
		name   string
		start  time.Time
		cycle  Cycle
		expect time.Time
	}{
		{
			name:   "jan 31 to feb leap year",
			start:  time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			cycle:  Monthly,
			expect: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "jan 31 to feb regular year",
			start:  time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC),
			cycle:  Monthly,
			expect: time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "nov 30 quarterly",
			start:  time.Date(2023, time.November, 30, 0, 0, 0, 0, time.UTC),
			cycle:  Quarterly,
			expect: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "aug 31 semiannually",
			start:  time.Date(2023, time.August, 31, 0, 0, 0, 0, time.UTC),
			cycle:  Semiannually,
			expect: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "feb 29 annually",
			start:  time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			cycle:  Annually,
			expect: time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			end, err := PeriodEnd(tc.start, tc.cycle)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, end)
		})
	}
}

func TestPeriodEnd_UnknownCycle(t *testing.T) {
	_, err := PeriodEnd(time.Now(), Cycle("fortnightly"))
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestNextPeriodEnd_NoDrift(t *testing.T) {
	origin := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)

	for _, cycle := range Cycles() {
		t.Run(string(cycle), func(t *testing.T) {
			const renewals = 14

			start, err := PeriodEnd(origin, cycle)
			require.NoError(t, err)

			end := start
			for i := 0; i < renewals; i++ {
				end, err = NextPeriodEnd(origin, start, cycle)
				require.NoError(t, err)
				require.True(t, end.After(start))
				start = end
			}

			expected, err := PeriodAfter(origin, cycle, renewals+1)
			require.NoError(t, err)
			assert.Equal(t, expected, end)
		})
	}
}

func TestParseCycle(t *testing.T) {
	c, err := ParseCycle("Yearly")
	require.NoError(t, err)
	assert.Equal(t, Annually, c)

	c, err = ParseCycle(" quarterly ")
	require.NoError(t, err)
	assert.Equal(t, Quarterly, c)

	_, err = ParseCycle("biweekly")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}
