package models

import (
	"time"
)

// TickerSnapshot is one row of the daily grouped-bars universe feed.
type TickerSnapshot struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	LastPrice     float64 `json:"last_price"`
	SessionVolume int64   `json:"session_volume"`
	PrevClose     float64 `json:"prev_close"`
	SessionHigh   float64 `json:"session_high"`
	SessionLow    float64 `json:"session_low"`
	Open          float64 `json:"open"`
	VWAP          Metric  `json:"vwap"` // absent pre-market
}

// DollarVolume is the session notional used by the liquidity guard.
func (s TickerSnapshot) DollarVolume() float64 {
	return float64(s.SessionVolume) * s.LastPrice
}

// CoarseRelVol estimates relative volume from snapshot data alone, before
// the 20-day average is available. Used only to rank the enrichment set.
func (s TickerSnapshot) CoarseRelVol() float64 {
	if s.PrevClose <= 0 || s.SessionVolume == 0 {
		return 0
	}
	// Without an average-volume baseline the session range and gap are the
	// only activity proxies in the snapshot.
	gap := (s.LastPrice - s.PrevClose) / s.PrevClose
	if gap < 0 {
		gap = -gap
	}
	return float64(s.SessionVolume) * (1 + gap)
}

// Bar is one OHLCV bar of the trailing daily window.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume int64     `json:"v"`
}

// EnrichedSymbol is a snapshot plus the per-symbol detail fetched for
// scoring. Every detail field is three-valued; scoring down-weights on
// unknown instead of substituting a midpoint.
type EnrichedSymbol struct {
	TickerSnapshot

	AvgVolume20d     Metric `json:"avg_volume_20d"`
	FloatShares      Metric `json:"float_shares"`
	ShortInterestPct Metric `json:"short_interest_pct"`
	BorrowFeePct     Metric `json:"borrow_fee_pct"`
	UtilizationPct   Metric `json:"utilization_pct"`
	CallPutRatio     Metric `json:"call_put_ratio"`
	IVPercentile     Metric `json:"iv_percentile"`

	CatalystStrength       Metric `json:"catalyst_strength"` // raw 0-100 from source
	CatalystAgeHours       Metric `json:"catalyst_age_hours"`
	CatalystSource         string `json:"catalyst_source,omitempty"`
	CatalystSourceVerified bool   `json:"catalyst_source_verified"`

	SentimentZScore Metric `json:"sentiment_z_score"` // 7d mention-volume z

	// Trailing daily bars, oldest first. Feature calculation derives
	// EMA9/EMA20/RSI14/ATR% from these.
	DailyBars []Bar `json:"-"`

	// Minute closes for the last 15 minutes of the session, oldest first.
	// Drives VWAP-reclaim hysteresis; may be empty.
	RecentCloses []float64 `json:"-"`

	// Derived features, filled by the feature calculator.
	EMA9           Metric `json:"ema9"`
	EMA20          Metric `json:"ema20"`
	RSI14          Metric `json:"rsi14"`
	ATRPct         Metric `json:"atr_pct"`
	ATRPct10dMean  Metric `json:"atr_pct_10d_mean"`
	IntradayRelVol Metric `json:"intraday_relvol"`
	FloatRotation  Metric `json:"float_rotation_pct"`
	FrictionIndex  Metric `json:"friction_index"`
	UpDayStreak    int    `json:"up_day_streak"`
	VWAPReclaimed  bool   `json:"vwap_reclaimed"`

	// Reasons accumulated during enrichment (partial failures etc.).
	Marks []string `json:"-"`
}

// MarketVol carries the inputs for regime classification.
type MarketVol struct {
	SPYATRPct float64   `json:"spy_atr_pct"`
	VIX       float64   `json:"vix"`
	AsOf      time.Time `json:"as_of"`
}
