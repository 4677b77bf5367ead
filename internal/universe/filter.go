// Package universe applies the hard guards that shrink the daily
// snapshot into the candidate pool. Guards are never relaxed; elastic
// mode only moves tier thresholds downstream.
package universe

import (
	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
)

// Rejection reasons recorded in the per-run histogram. These strings are
// part of the X-Reason-Stats contract.
const (
	RejectPennyStock   = "price_below_min"
	RejectDollarVolume = "dollar_volume_below_min"
	RejectWideSpread   = "spread_above_max"
	RejectETP          = "etp_excluded"
)

// Result is the filter output: survivors in input order plus the
// rejection histogram.
type Result struct {
	Survivors []models.TickerSnapshot
	Rejected  map[string]int
}

// Filter applies the hard guards from the strategy config.
func Filter(snapshots []models.TickerSnapshot, guards config.Guards) Result {
	res := Result{
		Survivors: make([]models.TickerSnapshot, 0, len(snapshots)),
		Rejected:  make(map[string]int),
	}

	for _, snap := range snapshots {
		if reason, ok := reject(snap, guards); ok {
			res.Rejected[reason]++
			continue
		}
		res.Survivors = append(res.Survivors, snap)
	}

	log.Debug().
		Int("in", len(snapshots)).
		Int("out", len(res.Survivors)).
		Interface("rejected", res.Rejected).
		Msg("universe filter applied")

	return res
}

func reject(snap models.TickerSnapshot, guards config.Guards) (string, bool) {
	if IsETP(snap.Symbol, snap.Name) {
		return RejectETP, true
	}
	if snap.LastPrice < guards.MinPrice {
		return RejectPennyStock, true
	}
	if snap.DollarVolume() < guards.MinDollarVolume {
		return RejectDollarVolume, true
	}
	if spreadBps(snap) > guards.MaxSpreadBps {
		return RejectWideSpread, true
	}
	return "", false
}

// spreadBps proxies the quoted spread from the session range. The range
// overstates the spread for volatile names, so it is bounded at one
// tenth before conversion to basis points.
func spreadBps(snap models.TickerSnapshot) float64 {
	if snap.LastPrice <= 0 {
		return 0
	}
	rangeFrac := (snap.SessionHigh - snap.SessionLow) / snap.LastPrice
	if rangeFrac < 0 {
		rangeFrac = 0
	}
	if rangeFrac > 0.10 {
		rangeFrac = 0.10
	}
	// One tenth of the bounded session range approximates the
	// effective spread for liquid equities.
	return rangeFrac * 0.1 * 10000
}
