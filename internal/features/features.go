// Package features derives the per-symbol indicators consumed by the
// scoring engine. All functions are pure over the enriched row; nothing
// here touches the network.
package features

import (
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/amc-trader/discovery/internal/models"
)

const (
	rsiPeriod  = 14
	atrPeriod  = 14
	emaFast    = 9
	emaSlow    = 20
	atrMeanLen = 10
)

// Friction index norm caps: short interest 40%, borrow fee 50%,
// utilization 100%.
const (
	frictionCapShortInterest = 40.0
	frictionCapBorrowFee     = 50.0
	frictionCapUtilization   = 100.0
)

// Compute fills the derived fields of an enriched row in place. asOf
// drives the time-of-day volume curve and must carry the exchange-local
// zone.
func Compute(sym *models.EnrichedSymbol, asOf time.Time) {
	sym.IntradayRelVol = relVol(sym, asOf)
	sym.FloatRotation = floatRotation(sym)
	sym.FrictionIndex = frictionIndex(sym)
	computeBars(sym)
	sym.VWAPReclaimed = vwapReclaimed(sym)
}

// relVol is session volume over the hour-adjusted 20-day average. Unknown
// average yields unknown relvol, never 1.0.
func relVol(sym *models.EnrichedSymbol, asOf time.Time) models.Metric {
	avg, ok := sym.AvgVolume20d.Value()
	if !ok || avg <= 0 {
		return models.UnknownMetric()
	}
	expected := avg * TODMultiplier(asOf.Hour())
	if expected <= 0 {
		return models.UnknownMetric()
	}
	return models.KnownMetric(float64(sym.SessionVolume) / expected)
}

func floatRotation(sym *models.EnrichedSymbol) models.Metric {
	fl, ok := sym.FloatShares.Value()
	if !ok || fl <= 0 {
		return models.UnknownMetric()
	}
	return models.KnownMetric(100 * float64(sym.SessionVolume) / fl)
}

// frictionIndex blends short interest, borrow fee and utilization at
// 0.5/0.3/0.2. An unknown component drops out of the weight denominator
// instead of contributing zero.
func frictionIndex(sym *models.EnrichedSymbol) models.Metric {
	type part struct {
		m      models.Metric
		cap    float64
		weight float64
	}
	parts := []part{
		{sym.ShortInterestPct, frictionCapShortInterest, 0.5},
		{sym.BorrowFeePct, frictionCapBorrowFee, 0.3},
		{sym.UtilizationPct, frictionCapUtilization, 0.2},
	}

	var sum, weight float64
	for _, p := range parts {
		v, ok := p.m.Value()
		if !ok {
			continue
		}
		sum += p.weight * cappedLinear(v, p.cap)
		weight += p.weight
	}
	if weight == 0 {
		return models.UnknownMetric()
	}
	return models.KnownMetric(sum / weight)
}

// cappedLinear maps v into [0,1] linearly up to cap.
func cappedLinear(v, cap float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= cap {
		return 1
	}
	return v / cap
}

// computeBars derives EMA9/EMA20/RSI14/ATR% and the up-day streak from
// the trailing daily bars. Insufficient history leaves fields unknown.
func computeBars(sym *models.EnrichedSymbol) {
	bars := sym.DailyBars
	sym.UpDayStreak = upDayStreak(bars)

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	if len(bars) > emaFast {
		ema := talib.Ema(closes, emaFast)
		sym.EMA9 = models.KnownMetric(ema[len(ema)-1])
	} else {
		sym.EMA9 = unknownHistory("ema9", len(bars))
	}
	if len(bars) > emaSlow {
		ema := talib.Ema(closes, emaSlow)
		sym.EMA20 = models.KnownMetric(ema[len(ema)-1])
	} else {
		sym.EMA20 = unknownHistory("ema20", len(bars))
	}
	if len(bars) > rsiPeriod {
		rsi := talib.Rsi(closes, rsiPeriod)
		sym.RSI14 = models.KnownMetric(rsi[len(rsi)-1])
	} else {
		sym.RSI14 = unknownHistory("rsi14", len(bars))
	}

	if len(bars) > atrPeriod {
		atr := talib.Atr(highs, lows, closes, atrPeriod)
		atrPct := make([]float64, 0, len(atr))
		for i := atrPeriod; i < len(atr); i++ {
			if closes[i] > 0 {
				atrPct = append(atrPct, 100*atr[i]/closes[i])
			}
		}
		if len(atrPct) > 0 {
			sym.ATRPct = models.KnownMetric(atrPct[len(atrPct)-1])
			// Trailing mean excludes the latest value so expansion
			// compares today against the prior window.
			if len(atrPct) > 1 {
				window := atrPct[:len(atrPct)-1]
				if len(window) > atrMeanLen {
					window = window[len(window)-atrMeanLen:]
				}
				sym.ATRPct10dMean = models.KnownMetric(mean(window))
			} else {
				sym.ATRPct10dMean = models.UnknownMetric()
			}
			return
		}
	}
	sym.ATRPct = unknownHistory("atr", len(bars))
	sym.ATRPct10dMean = models.UnknownMetric()
}

func unknownHistory(indicator string, bars int) models.Metric {
	return models.FailedMetric(fmt.Sprintf("%s: insufficient history (%d bars)", indicator, bars))
}

func upDayStreak(bars []models.Bar) int {
	streak := 0
	for i := len(bars) - 1; i > 0; i-- {
		if bars[i].Close > bars[i-1].Close {
			streak++
		} else {
			break
		}
	}
	return streak
}

// vwapReclaimed reports whether price holds above VWAP. When the last 15
// minute closes are available, at least 10 of them must also sit above
// VWAP so a single late tick cannot flip the state.
func vwapReclaimed(sym *models.EnrichedSymbol) bool {
	vwap, ok := sym.VWAP.Value()
	if !ok || vwap <= 0 {
		return false
	}
	if sym.LastPrice < vwap {
		return false
	}
	if len(sym.RecentCloses) == 0 {
		return true
	}
	above := 0
	for _, c := range sym.RecentCloses {
		if c >= vwap {
			above++
		}
	}
	return above*3 >= len(sym.RecentCloses)*2
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
