package synthetic

import (
	"context"
	"testing"

	"microstructure-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(tph float64, limit int) *SyntheticSource {
	return NewSyntheticSource(&models.MConfig{Provider: models.MProviderConfig{
		TicksPerHour:    tph,
		MaxTicksPerCall: limit,
		SyntheticSeed:   42,
	}})
}

func TestFetchTicksInRange_Deterministic(t *testing.T) {
	src := newSource(3600, 0)
	ctx := context.Background()

	a, err := src.FetchTicksInRange(ctx, "EURUSD", 1_700_000_000, 1_700_000_600)
	require.NoError(t, err)
	b, err := src.FetchTicksInRange(ctx, "EURUSD", 1_700_000_000, 1_700_000_600)
	require.NoError(t, err)

	assert.Len(t, a, 601, "end second is inclusive")
	assert.Equal(t, a, b)

	// a sub-range yields the same ticks as the overlapping part of the full range
	part, err := src.FetchTicksInRange(ctx, "EURUSD", 1_700_000_300, 1_700_000_600)
	require.NoError(t, err)
	assert.Equal(t, a[300:], part)
}

func TestFetchTicksInRange_ValidQuotes(t *testing.T) {
	ticks, err := newSource(7200, 0).FetchTicksInRange(context.Background(), "XAUUSD", 1_700_000_000, 1_700_000_300)
	require.NoError(t, err)
	require.NotEmpty(t, ticks)

	for _, tk := range ticks {
		assert.Greater(t, tk.Bid, 0.0)
		assert.Greater(t, tk.Ask, tk.Bid)
		require.NotNil(t, tk.TimeMsc)
		assert.GreaterOrEqual(t, *tk.TimeMsc, int64(1_700_000_000_000))
		assert.Less(t, *tk.TimeMsc, int64(1_700_000_301_000))
		assert.False(t, tk.Flags&models.FlagBuy != 0 && tk.Flags&models.FlagSell != 0)
	}
}

func TestFetchTicksInRange_RespectsCap(t *testing.T) {
	ticks, err := newSource(3600, 100).FetchTicksInRange(context.Background(), "EURUSD", 0, 3600)
	require.NoError(t, err)
	assert.Len(t, ticks, 100)
}

func TestFetchTicksInRange_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSource(3600, 0).FetchTicksInRange(ctx, "EURUSD", 0, 60)
	assert.Error(t, err)
	assert.Error(t, newSource(3600, 0).EnsureConnected(ctx))
}
