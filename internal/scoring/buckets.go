package scoring

import (
	"math"

	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/regime"
)

// bucketKnownThreshold is the minimum fraction of a bucket's component
// weight that must be known; below it the bucket is marked unknown and
// drops out of the composite via renormalization.
const bucketKnownThreshold = 0.6

// component is one weighted input into a bucket score.
type component struct {
	weight float64
	score  float64 // 0-100
	known  bool
}

// blend combines components, renormalizing over the known weight. The
// second return is the known weight fraction.
func blend(parts ...component) (models.Metric, float64) {
	var sum, known, total float64
	for _, p := range parts {
		total += p.weight
		if !p.known {
			continue
		}
		sum += p.weight * p.score
		known += p.weight
	}
	if total == 0 || known/total < bucketKnownThreshold {
		frac := 0.0
		if total > 0 {
			frac = known / total
		}
		return models.UnknownMetric(), frac
	}
	return models.KnownMetric(clamp100(sum / known)), known / total
}

// volumeMomentum scores relative volume, up-day persistence, VWAP state
// and ATR expansion at 40/30/20/10.
func volumeMomentum(sym *models.EnrichedSymbol) (models.Metric, float64) {
	relvol := component{weight: 0.40}
	if rv, ok := sym.IntradayRelVol.Value(); ok {
		relvol.known = true
		relvol.score = relVolScore(rv)
	}

	upDays := component{weight: 0.30}
	if len(sym.DailyBars) >= 2 {
		upDays.known = true
		streak := float64(sym.UpDayStreak)
		if streak > 5 {
			streak = 5
		}
		upDays.score = streak * 20
	}

	vwap := component{weight: 0.20, known: sym.VWAP.Known()}
	if sym.VWAPReclaimed {
		vwap.score = 100
	}

	atrExp := component{weight: 0.10}
	if atr, ok := sym.ATRPct.Value(); ok {
		if mean, ok := sym.ATRPct10dMean.Value(); ok && mean > 0 {
			atrExp.known = true
			expansion := (atr - mean) / mean // 0 -> 0, +50% -> 100
			atrExp.score = clamp100(expansion / 0.5 * 100)
		}
	}

	return blend(relvol, upDays, vwap, atrExp)
}

// relVolScore is the piecewise-linear relvol mapping:
// 1.0x->0, 2.5x->60, 5x->85, >=10x->100.
func relVolScore(rv float64) float64 {
	switch {
	case rv <= 1.0:
		return 0
	case rv <= 2.5:
		return (rv - 1.0) / 1.5 * 60
	case rv <= 5.0:
		return 60 + (rv-2.5)/2.5*25
	case rv <= 10.0:
		return 85 + (rv-5.0)/5.0*15
	default:
		return 100
	}
}

// squeeze scores float rotation, short-sale friction and inverse float
// size at 35/40/25.
func squeeze(sym *models.EnrichedSymbol) (models.Metric, float64) {
	rotation := component{weight: 0.35}
	if fr, ok := sym.FloatRotation.Value(); ok {
		rotation.known = true
		rotation.score = clamp100(fr) // 100% rotation = 100
	}

	friction := component{weight: 0.40}
	if fi, ok := sym.FrictionIndex.Value(); ok {
		friction.known = true
		friction.score = clamp100(fi * 100)
	}

	smallFloat := component{weight: 0.25}
	if fl, ok := sym.FloatShares.Value(); ok {
		smallFloat.known = true
		smallFloat.score = inverseFloatScore(fl)
	}

	return blend(rotation, friction, smallFloat)
}

// inverseFloatScore: float <= 20M -> 100, >= 200M -> 0, linear between.
func inverseFloatScore(floatShares float64) float64 {
	const lo, hi = 20_000_000.0, 200_000_000.0
	switch {
	case floatShares <= lo:
		return 100
	case floatShares >= hi:
		return 0
	default:
		return 100 * (hi - floatShares) / (hi - lo)
	}
}

// catalystHalfLifeHours is the decay half-life for catalyst strength.
const catalystHalfLifeHours = 6.0

// catalyst decays raw strength by age and boosts verified sources 1.25x.
// Unknown age is treated as one elapsed half-life rather than fresh.
func catalyst(sym *models.EnrichedSymbol) (models.Metric, float64) {
	strength, ok := sym.CatalystStrength.Value()
	if !ok {
		return models.UnknownMetric(), 0
	}

	decay := 0.5
	frac := 0.7
	if age, ok := sym.CatalystAgeHours.Value(); ok {
		decay = math.Pow(0.5, age/catalystHalfLifeHours)
		frac = 1.0
	}

	score := strength * decay
	if sym.CatalystSourceVerified {
		score *= 1.25
	}
	return models.KnownMetric(clamp100(score)), frac
}

// sentiment maps the 7-day mention z-score magnitude onto [0,50]. The
// sign matters for classification only, not for the score.
func sentiment(sym *models.EnrichedSymbol) (models.Metric, float64) {
	z, ok := sym.SentimentZScore.Value()
	if !ok {
		return models.UnknownMetric(), 0
	}
	return models.KnownMetric(50 * (1 - math.Exp(-math.Abs(z)/2))), 1.0
}

// options scores the call/put ratio and IV percentile at 60/40.
func options(sym *models.EnrichedSymbol) (models.Metric, float64) {
	cpr := component{weight: 0.60}
	if r, ok := sym.CallPutRatio.Value(); ok {
		cpr.known = true
		cpr.score = callPutScore(r)
	}

	iv := component{weight: 0.40}
	if p, ok := sym.IVPercentile.Value(); ok {
		iv.known = true
		iv.score = ivPercentileScore(p)
	}

	return blend(cpr, iv)
}

// callPutScore: 1.0 -> 0, 3.0 -> 100, linear, clamped.
func callPutScore(ratio float64) float64 {
	return clamp100((ratio - 1.0) / 2.0 * 100)
}

// ivPercentileScore maps 0-100 percentile linearly with a soft cap:
// everything at or above the 95th percentile scores 100.
func ivPercentileScore(pct float64) float64 {
	const softCap = 95.0
	if pct >= softCap {
		return 100
	}
	return clamp100(pct / softCap * 100)
}

// technical combines the regime RSI sweet spot (70%) with the EMA9>EMA20
// cross (30%).
func technical(sym *models.EnrichedSymbol, reg regime.Regime) (models.Metric, float64) {
	rsi := component{weight: 0.70}
	if v, ok := sym.RSI14.Value(); ok {
		rsi.known = true
		rsi.score = rsiBandScore(v, reg)
	}

	cross := component{weight: 0.30}
	if e9, ok9 := sym.EMA9.Value(); ok9 {
		if e20, ok20 := sym.EMA20.Value(); ok20 {
			cross.known = true
			if e9 > e20 {
				cross.score = 100
			}
		}
	}

	return blend(rsi, cross)
}

// rsiBandScore: 100 inside the regime band, linear falloff over 15
// points on either side.
func rsiBandScore(rsi float64, reg regime.Regime) float64 {
	lo, hi := reg.RSIBand()
	const falloff = 15.0
	switch {
	case rsi >= lo && rsi <= hi:
		return 100
	case rsi < lo:
		return clamp100(100 - (lo-rsi)/falloff*100)
	default:
		return clamp100(100 - (rsi-hi)/falloff*100)
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
