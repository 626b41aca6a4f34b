package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// Pseudo calendars for instruments that do not trade on an exchange.
const (
	CalendarAlwaysOpen = "24x7"
	CalendarFX         = "fx"
)

// suffixMIC maps exchange suffixes to ISO 10383 MIC codes known to scmhub/calendar.
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".MC": "xmad",
	".SW": "xswx",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
}

// TradingCalendar answers whether a market is open at a given instant.
type TradingCalendar struct {
	Code     string
	Calendar *calendar.Calendar
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// ResolveCalendarCode picks the calendar for a symbol: an explicit override
// first, then the exchange suffix, then the FX week for bare symbols.
func ResolveCalendarCode(symbol, override string) string {
	if override != "" {
		return strings.ToLower(override)
	}
	if idx := strings.LastIndex(symbol, "."); idx > 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[idx:])]; ok {
			return mic
		}
		return "xnys"
	}
	return CalendarFX
}

// -----------------------------------------------------------------------------

// GetCalendar loads the calendar for code. Unknown MIC codes fall back to
// the NYSE calendar.
func GetCalendar(code string) *TradingCalendar {
	switch code {
	case CalendarAlwaysOpen, CalendarFX:
		return &TradingCalendar{Code: code, Timezone: time.UTC}
	}

	cal := calendar.GetCalendar(code)
	if cal == nil {
		code = "xnys"
		cal = calendar.GetCalendar(code)
	}
	if cal == nil {
		return &TradingCalendar{Code: CalendarAlwaysOpen, Timezone: time.UTC}
	}

	return &TradingCalendar{Code: code, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the market trades at t.
func (tc *TradingCalendar) IsOpen(t time.Time) bool {
	switch {
	case tc.Code == CalendarAlwaysOpen:
		return true
	case tc.Code == CalendarFX || tc.Calendar == nil:
		return isFXOpen(t.UTC())
	}

	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}
	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// isFXOpen approximates the spot FX week: Sunday 22:00 to Friday 22:00 UTC.
func isFXOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 22
	case time.Friday:
		return t.Hour() < 22
	default:
		return true
	}
}
