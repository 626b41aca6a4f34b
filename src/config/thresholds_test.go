package config

import (
	"testing"

	"microstructure-cache/src/models"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64 { return &v }

func TestThresholdResolver_Precedence(t *testing.T) {
	cfg := models.MThresholdsConfig{
		Default: models.DefaultThresholds(),
		Overrides: []models.MThresholdOverride{
			// listed most specific first to show order in config does not matter
			{Symbol: "BTCUSD", Window: "5m", Session: "asia", VoidSpreadMultiplier: f64(7)},
			{Symbol: "BTCUSD", Window: "5m", VoidSpreadMultiplier: f64(6)},
			{Symbol: "BTCUSD", VoidSpreadMultiplier: f64(4), AbsorptionBinSeconds: i64(30)},
			{Window: "5m", Session: "asia", VoidSpreadMultiplier: f64(3.5)},
			{Window: "5m", VoidSpreadMultiplier: f64(3), CVDSlopeThreshold: f64(8)},
			{Session: "asia", VoidSpreadMultiplier: f64(2.8)},
		},
	}
	r := NewThresholdResolver(cfg)

	testCases := []struct {
		name          string
		symbol        string
		window        string
		session       string
		wantVoid      float64
		wantBin       int64
		wantCVDThresh float64
	}{
		{name: "defaults", symbol: "EURUSD", window: "1h", wantVoid: 2.5, wantBin: 60, wantCVDThresh: 5},
		{name: "session only", symbol: "EURUSD", window: "1h", session: "asia", wantVoid: 2.8, wantBin: 60, wantCVDThresh: 5},
		{name: "window", symbol: "EURUSD", window: "5m", wantVoid: 3, wantBin: 60, wantCVDThresh: 8},
		{name: "window and session", symbol: "EURUSD", window: "5m", session: "asia", wantVoid: 3.5, wantBin: 60, wantCVDThresh: 8},
		{name: "symbol beats window and session", symbol: "BTCUSD", window: "1h", session: "asia", wantVoid: 4, wantBin: 30, wantCVDThresh: 5},
		{name: "symbol and window", symbol: "BTCUSD", window: "5m", wantVoid: 6, wantBin: 30, wantCVDThresh: 8},
		{name: "all three", symbol: "BTCUSD", window: "5m", session: "asia", wantVoid: 7, wantBin: 30, wantCVDThresh: 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Resolve(tc.symbol, tc.window, tc.session)
			assert.Equal(t, tc.wantVoid, got.VoidSpreadMultiplier)
			assert.Equal(t, tc.wantBin, got.AbsorptionBinSeconds)
			assert.Equal(t, tc.wantCVDThresh, got.CVDSlopeThreshold)
			assert.Equal(t, cfg.Default.AbsorptionTopN, got.AbsorptionTopN)
		})
	}
}

func TestThresholdResolver_LaterEntryWinsOnTie(t *testing.T) {
	r := NewThresholdResolver(models.MThresholdsConfig{
		Default: models.DefaultThresholds(),
		Overrides: []models.MThresholdOverride{
			{Symbol: "EURUSD", CVDSlopeThreshold: f64(1)},
			{Symbol: "EURUSD", CVDSlopeThreshold: f64(2)},
		},
	})
	assert.Equal(t, 2.0, r.Resolve("EURUSD", "", "").CVDSlopeThreshold)
}
