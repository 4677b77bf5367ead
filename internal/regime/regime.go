// Package regime classifies broad-market volatility so the technical
// bucket can adapt its RSI sweet spot.
package regime

import (
	"github.com/amc-trader/discovery/internal/models"
)

// Regime is the market volatility classification.
type Regime int

const (
	Normal Regime = iota
	LowVol
	HighVol
)

func (r Regime) String() string {
	switch r {
	case LowVol:
		return "low_vol"
	case HighVol:
		return "high_vol"
	default:
		return "normal"
	}
}

// Classification thresholds on SPY ATR% and the VIX proxy.
const (
	highVolATRPct = 3.0
	highVolVIX    = 25.0
	lowVolATRPct  = 1.5
	lowVolVIX     = 15.0
)

// Classify maps market volatility inputs onto a regime. High-vol wins on
// either signal; low-vol requires both.
func Classify(mv models.MarketVol) Regime {
	if mv.SPYATRPct > highVolATRPct || mv.VIX > highVolVIX {
		return HighVol
	}
	if mv.SPYATRPct < lowVolATRPct && mv.VIX < lowVolVIX {
		return LowVol
	}
	return Normal
}

// RSIBand returns the regime's RSI sweet spot. Inside the band the
// technical RSI component scores 100, falling off linearly over 15
// points on each side.
func (r Regime) RSIBand() (lo, hi float64) {
	switch r {
	case HighVol:
		return 65, 75
	case LowVol:
		return 55, 65
	default:
		return 60, 70
	}
}
