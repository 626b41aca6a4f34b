package models

// CVD slope directions.
const (
	SlopeUp   = "up"
	SlopeDown = "down"
	SlopeFlat = "flat"
)

// Aggressor sides.
const (
	SideBuy     = "buy"
	SideSell    = "sell"
	SideNeutral = "neutral"
)

// MSpreadStats summarises bid/ask spreads over a window.
type MSpreadStats struct {
	Mean               float64 `json:"mean"`
	Std                float64 `json:"std"`
	Max                float64 `json:"max"`
	WideningEventCount int     `json:"widening_event_count"`
}

// MAbsorption describes the strongest absorption zones of a window.
type MAbsorption struct {
	ZoneCount   int       `json:"zone_count"`
	ZonePrices  []float64 `json:"zone_prices"`
	AvgStrength float64   `json:"avg_strength"`
}

// MLiquidityVoids counts abnormally wide spreads.
type MLiquidityVoids struct {
	Count   int     `json:"count"`
	AvgSize float64 `json:"avg_size"`
}

// MMetricsBundle is the calculator output for one tick window.
type MMetricsBundle struct {
	RealizedVolatility float64         `json:"realized_volatility"`
	VolatilityRatio    float64         `json:"volatility_ratio"`
	DeltaVolume        float64         `json:"delta_volume"`
	CumulativeDelta    float64         `json:"cumulative_delta"`
	CVDSlope           string          `json:"cvd_slope"`
	DominantSide       string          `json:"dominant_side"`
	SpreadStats        MSpreadStats    `json:"spread_stats"`
	Absorption         MAbsorption     `json:"absorption"`
	LiquidityVoids     MLiquidityVoids `json:"liquidity_voids"`
	TickRate           float64         `json:"tick_rate"`
	TickCount          int             `json:"tick_count"`
	MaxGapMs           int64           `json:"max_gap_ms"`
	TradeTickRatio     float64         `json:"trade_tick_ratio"`
	WindowStart        int64           `json:"window_start,omitempty"`
	WindowEnd          int64           `json:"window_end,omitempty"`
}

// NeutralBundle returns the bundle reported when a window is too small to measure.
func NeutralBundle(tickCount int) MMetricsBundle {
	return MMetricsBundle{
		VolatilityRatio: 1.0,
		CVDSlope:        SlopeFlat,
		DominantSide:    SideNeutral,
		TickCount:       tickCount,
		Absorption:      MAbsorption{ZonePrices: []float64{}},
	}
}

// MCalculatorThresholds tunes the metrics calculator.
type MCalculatorThresholds struct {
	AbsorptionVolumeMultiplier float64 `yaml:"absorption_volume_multiplier" json:"absorption_volume_multiplier"`
	AbsorptionPriceTolerance   float64 `yaml:"absorption_price_tolerance_pct" json:"absorption_price_tolerance_pct"`
	AbsorptionBinSeconds       int64   `yaml:"absorption_bin_seconds" json:"absorption_bin_seconds"`
	AbsorptionTopN             int     `yaml:"absorption_top_n" json:"absorption_top_n"`
	VoidSpreadMultiplier       float64 `yaml:"void_spread_multiplier" json:"void_spread_multiplier"`
	CVDSlopeThreshold          float64 `yaml:"cvd_slope_threshold" json:"cvd_slope_threshold"`
	CVDSamplePoints            int     `yaml:"cvd_sample_points" json:"cvd_sample_points"`
}

// DefaultThresholds are used for anything the configuration leaves unset.
func DefaultThresholds() MCalculatorThresholds {
	return MCalculatorThresholds{
		AbsorptionVolumeMultiplier: 2.0,
		AbsorptionPriceTolerance:   0.05,
		AbsorptionBinSeconds:       60,
		AbsorptionTopN:             3,
		VoidSpreadMultiplier:       2.5,
		CVDSlopeThreshold:          5.0,
		CVDSamplePoints:            20,
	}
}
