package utils

import (
	"testing"
	"time"

	"microstructure-cache/src/logger"

	"github.com/stretchr/testify/assert"
)

func TestResolveCalendarCode(t *testing.T) {
	testCases := []struct {
		symbol   string
		override string
		want     string
	}{
		{symbol: "EURUSD", want: CalendarFX},
		{symbol: "BTCUSD", override: "24x7", want: CalendarAlwaysOpen},
		{symbol: "VOD.L", want: "xlon"},
		{symbol: "7203.t", want: "xtks"},
		{symbol: "BRK.B", want: "xnys"},
		{symbol: "SPY", override: "XNYS", want: "xnys"},
	}

	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveCalendarCode(tc.symbol, tc.override))
		})
	}
}

func TestFXCalendar(t *testing.T) {
	cal := GetCalendar(CalendarFX)

	wed := time.Date(2025, 3, 12, 3, 0, 0, 0, time.UTC)
	friLate := time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC)
	sat := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	sunEarly := time.Date(2025, 3, 16, 21, 0, 0, 0, time.UTC)
	sunLate := time.Date(2025, 3, 16, 22, 5, 0, 0, time.UTC)

	assert.True(t, cal.IsOpen(wed))
	assert.False(t, cal.IsOpen(friLate))
	assert.False(t, cal.IsOpen(sat))
	assert.False(t, cal.IsOpen(sunEarly))
	assert.True(t, cal.IsOpen(sunLate))
}

func TestAlwaysOpenCalendar(t *testing.T) {
	cal := GetCalendar(CalendarAlwaysOpen)
	sat := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsOpen(sat))
}

func TestExchangeCalendar(t *testing.T) {
	cal := GetCalendar("xnys")
	assert.Equal(t, "xnys", cal.Code)

	// Wednesday 11:00 New York
	assert.True(t, cal.IsOpen(time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)))
	// Saturday
	assert.False(t, cal.IsOpen(time.Date(2025, 3, 15, 15, 0, 0, 0, time.UTC)))
}

func TestMarketScheduler(t *testing.T) {
	ms := NewMarketScheduler([]string{"EURUSD", "BTCUSD"}, map[string]string{"BTCUSD": "24x7"}, logger.NewNopLogger())
	sat := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.False(t, ms.IsOpen("EURUSD", sat))
	assert.True(t, ms.IsOpen("BTCUSD", sat))
	assert.True(t, ms.IsOpen("UNKNOWN", sat))
	assert.True(t, ms.AnyMarketOpen(sat))

	ms.MapSymbolsToCalendars([]string{"EURUSD"}, nil)
	assert.False(t, ms.AnyMarketOpen(sat))
}
