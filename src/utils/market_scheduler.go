package utils

import (
	"sync"
	"time"

	"microstructure-cache/src/logger"
)

type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

// NewMarketScheduler maps each symbol to its calendar. overrides maps a
// symbol to a MIC code or one of the pseudo calendars.
func NewMarketScheduler(symbols []string, overrides map[string]string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapSymbolsToCalendars(symbols, overrides)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars replaces the symbol to calendar mapping.
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string, overrides map[string]string) {
	byCode := make(map[string]*TradingCalendar)
	mapped := make(map[string]*TradingCalendar, len(symbols))

	for _, symbol := range symbols {
		code := ResolveCalendarCode(symbol, overrides[symbol])
		cal, ok := byCode[code]
		if !ok {
			cal = GetCalendar(code)
			byCode[code] = cal
		}
		mapped[symbol] = cal
	}

	ms.mu.Lock()
	ms.Calendars = mapped
	ms.mu.Unlock()

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d unique calendars.", len(symbols), len(byCode))
}

// -----------------------------------------------------------------------------

// IsOpen reports whether symbol trades at t. Unknown symbols count as open.
func (ms *MarketScheduler) IsOpen(symbol string, t time.Time) bool {
	ms.mu.RLock()
	cal, ok := ms.Calendars[symbol]
	ms.mu.RUnlock()

	if !ok {
		return true
	}
	return cal.IsOpen(t)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any tracked market is open at t.
func (ms *MarketScheduler) AnyMarketOpen(t time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, cal := range ms.Calendars {
		if cal.IsOpen(t) {
			return true
		}
	}
	return false
}
