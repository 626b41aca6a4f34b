package models

// Tick flag bits as reported by the market-data provider.
const (
	FlagBid    uint32 = 2
	FlagAsk    uint32 = 4
	FlagLast   uint32 = 8
	FlagVolume uint32 = 16
	FlagBuy    uint32 = 32
	FlagSell   uint32 = 64
)

// MTick is one validated best-bid/best-ask/last-trade update.
type MTick struct {
	Time       int64   `json:"time"`     // unix seconds
	TimeMsc    int64   `json:"time_msc"` // unix milliseconds
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	Volume     uint64  `json:"volume"`
	VolumeReal float64 `json:"volume_real"`
	Flags      uint32  `json:"flags"`
}

// IsBuy reports a buy-initiated trade.
func (t MTick) IsBuy() bool { return t.Flags&FlagBuy != 0 }

// IsSell reports a sell-initiated trade.
func (t MTick) IsSell() bool { return t.Flags&FlagSell != 0 }

// CarriesTrade reports whether the tick carries an aggressor-side trade.
func (t MTick) CarriesTrade() bool { return t.IsBuy() || t.IsSell() }

// TradeVolume prefers the fractional volume and falls back to the coarse one.
func (t MTick) TradeVolume() float64 {
	if t.VolumeReal > 0 {
		return t.VolumeReal
	}
	return float64(t.Volume)
}

// Spread is ask minus bid.
func (t MTick) Spread() float64 {
	return t.Ask - t.Bid
}

// -----------------------------------------------------------------------------

// MRawTick is the provider's wire record before validation.
// Optional fields are nil when the provider omits them.
type MRawTick struct {
	Time       int64    `json:"time"`
	TimeMsc    *int64   `json:"time_msc,omitempty"`
	Bid        float64  `json:"bid"`
	Ask        float64  `json:"ask"`
	Last       float64  `json:"last"`
	Volume     uint64   `json:"volume"`
	VolumeReal *float64 `json:"volume_real,omitempty"`
	Flags      uint32   `json:"flags"`
}
