package config

import (
	"sort"

	"microstructure-cache/src/models"
)

// Specificity weights. A symbol match outranks any window+session combination.
const (
	weightSymbol  = 4
	weightWindow  = 2
	weightSession = 1
)

// ThresholdResolver looks up calculator thresholds for a (symbol, window,
// session) triple. Matching overrides are applied from least to most
// specific, field by field, on top of the defaults.
type ThresholdResolver struct {
	defaults  models.MCalculatorThresholds
	overrides []models.MThresholdOverride
}

// -----------------------------------------------------------------------------

func NewThresholdResolver(cfg models.MThresholdsConfig) *ThresholdResolver {
	ordered := make([]models.MThresholdOverride, len(cfg.Overrides))
	copy(ordered, cfg.Overrides)

	// stable, so for equal specificity the later entry wins
	sort.SliceStable(ordered, func(i, j int) bool {
		return specificity(ordered[i]) < specificity(ordered[j])
	})

	return &ThresholdResolver{defaults: cfg.Default, overrides: ordered}
}

// -----------------------------------------------------------------------------

func specificity(o models.MThresholdOverride) int {
	w := 0
	if o.Symbol != "" {
		w += weightSymbol
	}
	if o.Window != "" {
		w += weightWindow
	}
	if o.Session != "" {
		w += weightSession
	}
	return w
}

// -----------------------------------------------------------------------------

func matches(o models.MThresholdOverride, symbol, window, session string) bool {
	return (o.Symbol == "" || o.Symbol == symbol) &&
		(o.Window == "" || o.Window == window) &&
		(o.Session == "" || o.Session == session)
}

// -----------------------------------------------------------------------------

// Resolve returns the effective thresholds. An empty session only matches
// overrides without a session key.
func (r *ThresholdResolver) Resolve(symbol, window, session string) models.MCalculatorThresholds {
	out := r.defaults
	for _, o := range r.overrides {
		if matches(o, symbol, window, session) {
			apply(&out, o)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func apply(t *models.MCalculatorThresholds, o models.MThresholdOverride) {
	if o.AbsorptionVolumeMultiplier != nil {
		t.AbsorptionVolumeMultiplier = *o.AbsorptionVolumeMultiplier
	}
	if o.AbsorptionPriceTolerance != nil {
		t.AbsorptionPriceTolerance = *o.AbsorptionPriceTolerance
	}
	if o.AbsorptionBinSeconds != nil {
		t.AbsorptionBinSeconds = *o.AbsorptionBinSeconds
	}
	if o.AbsorptionTopN != nil {
		t.AbsorptionTopN = *o.AbsorptionTopN
	}
	if o.VoidSpreadMultiplier != nil {
		t.VoidSpreadMultiplier = *o.VoidSpreadMultiplier
	}
	if o.CVDSlopeThreshold != nil {
		t.CVDSlopeThreshold = *o.CVDSlopeThreshold
	}
	if o.CVDSamplePoints != nil {
		t.CVDSamplePoints = *o.CVDSamplePoints
	}
}
