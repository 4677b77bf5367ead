// Package scoring implements the AlphaStack 4.1 scoring model: six
// weighted sub-scores, unknown-bucket renormalization and action tiers.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/regime"
)

// MinConfidence is the known-weight floor below which a symbol is
// dropped instead of scored.
const MinConfidence = 0.5

// Engine scores enriched symbols under one strategy and regime.
type Engine struct {
	strategy config.Strategy
	regime   regime.Regime
}

// NewEngine builds a scoring engine for one run.
func NewEngine(strategy config.Strategy, reg regime.Regime) *Engine {
	return &Engine{strategy: strategy, regime: reg}
}

// Score produces a candidate for one enriched symbol. The second return
// is false when confidence falls below MinConfidence and the symbol must
// be dropped.
func (e *Engine) Score(sym *models.EnrichedSymbol, computedAt time.Time) (models.Candidate, bool) {
	vm, vmFrac := volumeMomentum(sym)
	sq, sqFrac := squeeze(sym)
	cat, catFrac := catalyst(sym)
	sent, sentFrac := sentiment(sym)
	opt, optFrac := options(sym)
	tech, techFrac := technical(sym, e.regime)

	subs := models.SubScores{
		VolumeMomentum: vm,
		Squeeze:        sq,
		Catalyst:       cat,
		Sentiment:      sent,
		Options:        opt,
		Technical:      tech,
	}

	w := e.strategy.Weights
	type bucket struct {
		weight float64
		score  models.Metric
		frac   float64
	}
	buckets := []bucket{
		{w.VolumeMomentum, vm, vmFrac},
		{w.Squeeze, sq, sqFrac},
		{w.Catalyst, cat, catFrac},
		{w.Sentiment, sent, sentFrac},
		{w.Options, opt, optFrac},
		{w.Technical, tech, techFrac},
	}

	var weighted, knownWeight, confidence float64
	for _, b := range buckets {
		confidence += b.weight * b.frac
		if v, ok := b.score.Value(); ok {
			weighted += b.weight * v
			knownWeight += b.weight
		}
	}

	if confidence < MinConfidence || knownWeight == 0 {
		return models.Candidate{}, false
	}

	composite := weighted / knownWeight // renormalized over known buckets
	if e.strategy.ConfidenceWeighting {
		composite *= confidence
	}
	composite = math.Round(composite*10) / 10

	cand := models.Candidate{
		Symbol:         sym.Symbol,
		Price:          sym.LastPrice,
		CompositeScore: composite,
		SubScores:      subs,
		Confidence:     math.Round(confidence*100) / 100,
		IntradayRelVol: sym.IntradayRelVol,
		Reasons:        buildReasons(sym, subs),
		ComputedAt:     computedAt,
		StrategyID:     e.strategy.ID,
	}
	cand.Entry, cand.Stop, cand.Target1, cand.Target2 = riskLevels(sym)
	return cand, true
}

// Tag assigns the action tier. Stale data caps every candidate at
// monitor regardless of score.
func (e *Engine) Tag(composite float64, stale bool) models.ActionTag {
	if stale {
		return models.TagMonitor
	}
	switch {
	case composite >= e.strategy.Tiers.TradeReady:
		return models.TagTradeReady
	case composite >= e.strategy.Tiers.Watchlist:
		return models.TagWatchlist
	default:
		return models.TagMonitor
	}
}

// ApplyElasticFloor upgrades the top monitor-tagged candidates to
// watchlist until at least floor names sit at watchlist or better. The
// list must already be sorted. Hard guards and the trade_ready threshold
// are untouched, and stale runs never upgrade.
func ApplyElasticFloor(list []models.Candidate, floor int, stale bool) {
	if stale || floor <= 0 {
		return
	}
	tagged := 0
	for _, c := range list {
		if c.ActionTag != models.TagMonitor {
			tagged++
		}
	}
	for i := 0; i < len(list) && tagged < floor; i++ {
		if list[i].ActionTag == models.TagMonitor {
			list[i].ActionTag = models.TagWatchlist
			tagged++
		}
	}
}

// riskLevels derives entry/stop/targets from ATR when known, falling
// back to fixed percentage bands.
func riskLevels(sym *models.EnrichedSymbol) (entry, stop, t1, t2 float64) {
	entry = sym.LastPrice
	if atrPct, ok := sym.ATRPct.Value(); ok && atrPct > 0 {
		atr := entry * atrPct / 100
		stop = entry - 1.5*atr
		t1 = entry + 2*atr
		t2 = entry + 3.5*atr
	} else {
		stop = entry * 0.95
		t1 = entry * 1.10
		t2 = entry * 1.20
	}
	if stop < 0 {
		stop = 0
	}
	return round2(entry), round2(stop), round2(t1), round2(t2)
}

// buildReasons emits the 2-5 machine-readable strings the UI consumes.
func buildReasons(sym *models.EnrichedSymbol, subs models.SubScores) []string {
	reasons := make([]string, 0, 5)

	if rv, ok := sym.IntradayRelVol.Value(); ok && rv >= 1.5 {
		reasons = append(reasons, fmt.Sprintf("relvol:%.1fx", rv))
	}
	if fr, ok := sym.FloatRotation.Value(); ok && fr >= 25 {
		reasons = append(reasons, fmt.Sprintf("float_rotation:%.0f%%", fr))
	}
	if strength, ok := sym.CatalystStrength.Value(); ok && strength > 0 {
		src := sym.CatalystSource
		if src == "" {
			src = "unverified"
		}
		if age, ok := sym.CatalystAgeHours.Value(); ok && age <= catalystHalfLifeHours {
			reasons = append(reasons, "catalyst:fresh_"+src)
		} else {
			reasons = append(reasons, "catalyst:"+src)
		}
	}
	if len(reasons) < 5 && sym.VWAPReclaimed {
		reasons = append(reasons, "vwap:reclaimed")
	}
	if len(reasons) < 5 {
		if si, ok := sym.ShortInterestPct.Value(); ok && si >= 15 {
			reasons = append(reasons, fmt.Sprintf("short_interest:%.0f%%", si))
		}
	}
	if len(reasons) < 5 && sym.UpDayStreak >= 3 {
		reasons = append(reasons, fmt.Sprintf("up_days:%d", sym.UpDayStreak))
	}

	// Always publish at least two reasons; fall back to the strongest
	// buckets when nothing above fired.
	if len(reasons) < 2 {
		if v, ok := subs.VolumeMomentum.Value(); ok {
			reasons = append(reasons, fmt.Sprintf("volume_momentum:%.0f", v))
		}
	}
	if len(reasons) < 2 {
		if v, ok := subs.Technical.Value(); ok {
			reasons = append(reasons, fmt.Sprintf("technical:%.0f", v))
		}
	}
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
