package models

import "time"

// MSnapshotMetadata makes the state of a snapshot visible to consumers.
type MSnapshotMetadata struct {
	Symbol            string     `json:"symbol"`
	LastUpdated       time.Time  `json:"last_updated"`
	DataAvailable     bool       `json:"data_available"`
	UnavailableReason string     `json:"unavailable_reason,omitempty"`
	BaselineLoading   bool       `json:"baseline_loading"`
	BaselineUpdated   *time.Time `json:"baseline_updated,omitempty"`
	CycleID           string     `json:"cycle_id,omitempty"`
}

// MSymbolSnapshot is everything the cache knows about one symbol.
// Snapshots are treated as immutable once handed to the cache.
type MSymbolSnapshot struct {
	Windows        map[string]MMetricsBundle `json:"windows"`
	PreviousPeriod MMetricsBundle            `json:"previous_period"`
	Baseline       *MMetricsBundle           `json:"baseline"`
	Metadata       MSnapshotMetadata         `json:"metadata"`
}

// UnavailableSnapshot builds the explicit "no data" snapshot for a symbol.
func UnavailableSnapshot(symbol, reason string, baseline *MMetricsBundle, baselineLoading bool, now time.Time) MSymbolSnapshot {
	return MSymbolSnapshot{
		Windows:        map[string]MMetricsBundle{},
		PreviousPeriod: NeutralBundle(0),
		Baseline:       baseline,
		Metadata: MSnapshotMetadata{
			Symbol:            symbol,
			LastUpdated:       now,
			DataAvailable:     false,
			UnavailableReason: reason,
			BaselineLoading:   baselineLoading,
		},
	}
}

// WithBaseline returns a copy carrying the given baseline. Window bundles are
// shared. A nil baseline marks the baseline as unavailable.
func (s MSymbolSnapshot) WithBaseline(baseline *MMetricsBundle, now time.Time) MSymbolSnapshot {
	out := s
	out.Baseline = baseline
	out.Metadata.BaselineLoading = false
	out.Metadata.BaselineUpdated = nil
	if baseline != nil {
		out.Metadata.BaselineUpdated = &now
	}
	return out
}
