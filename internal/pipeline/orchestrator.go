// Package pipeline drives one discovery run: universe ingest, filter,
// bounded enrichment, scoring, tier assignment and cache publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/amc-trader/discovery/internal/calendar"
	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/features"
	"github.com/amc-trader/discovery/internal/metrics"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/provider"
	"github.com/amc-trader/discovery/internal/regime"
	"github.com/amc-trader/discovery/internal/scoring"
	"github.com/amc-trader/discovery/internal/universe"
)

// Publisher is the cache surface the orchestrator publishes to.
type Publisher interface {
	Publish(ctx context.Context, strategyID string, list []models.Candidate) error
	PublishStats(ctx context.Context, strategyID string, stats map[string]int) error
}

// Calendar adds the exchange zone to the session queries.
type Calendar interface {
	calendar.Calendar
	Location() *time.Location
}

// Observer receives stage transitions for run-record bookkeeping. All
// methods are called from the run goroutine only.
type Observer interface {
	Stage(stage string, in, out int)
	MarkStale()
	Rejections(stats map[string]int)
}

// NopObserver satisfies Observer for one-shot CLI runs.
type NopObserver struct{}

func (NopObserver) Stage(string, int, int) {}

func (NopObserver) MarkStale() {}

func (NopObserver) Rejections(map[string]int) {}

// Result is a completed run's output.
type Result struct {
	Candidates []models.Candidate
	Stale      bool
	Rejections map[string]int
	Regime     regime.Regime
}

// Orchestrator owns the injected capabilities for the pipeline. One
// orchestrator serves all strategies; concurrent runs of different
// strategies are safe because all per-run state is local to Run.
type Orchestrator struct {
	client provider.MarketDataClient
	cache  Publisher
	cal    Calendar
	now    func() time.Time
}

// New wires the orchestrator.
func New(client provider.MarketDataClient, cache Publisher, cal Calendar) *Orchestrator {
	return &Orchestrator{client: client, cache: cache, cal: cal, now: time.Now}
}

// WithClock overrides the clock, for tests and replay.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes the full pipeline for one strategy. limit caps the
// published list when positive. The caller bounds ctx with the run
// deadline; exceeding it aborts without publishing.
func (o *Orchestrator) Run(ctx context.Context, strategy config.Strategy, limit int, obs Observer) (*Result, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	started := o.now()

	// Stage 1: universe snapshot. Failure here is fatal to the run.
	tradingDate := o.cal.PreviousTradingDay(started)
	snapshots, freshness, err := o.client.FetchUniverse(ctx, tradingDate)
	if err != nil {
		return nil, o.mapErr(ctx, fmt.Errorf("fetch universe: %w", err))
	}
	obs.Stage("universe", len(snapshots), len(snapshots))

	stale := o.isStale(started, freshness)
	if stale {
		obs.MarkStale()
		log.Warn().
			Time("freshness", freshness).
			Str("strategy", strategy.ID).
			Msg("market data stale; tiers capped at monitor")
	}

	// Stage 2: hard guards.
	filtered := universe.Filter(snapshots, strategy.Guards)
	obs.Stage("filter", len(snapshots), len(filtered.Survivors))
	obs.Rejections(filtered.Rejected)
	for reason, n := range filtered.Rejected {
		metrics.RejectionsTotal.WithLabelValues(strategy.ID, reason).Add(float64(n))
	}

	// Stage 3: bound the enrichment set by coarse relvol. This cap is
	// the primary cost control.
	shortlist := boundByCoarseRelVol(filtered.Survivors, strategy.UniverseCap)
	obs.Stage("shortlist", len(filtered.Survivors), len(shortlist))

	// Stage 4: concurrent enrichment under the strategy's cap.
	enriched, err := o.enrich(ctx, shortlist, strategy)
	if err != nil {
		return nil, o.mapErr(ctx, err)
	}
	obs.Stage("enrich", len(shortlist), len(enriched))

	// Stage 5: regime detection and scoring.
	reg := o.detectRegime(ctx)
	engine := scoring.NewEngine(strategy, reg)
	asOf := o.now().In(o.cal.Location())

	candidates := make([]models.Candidate, 0, len(enriched))
	dropped := 0
	for _, sym := range enriched {
		features.Compute(sym, asOf)
		if len(sym.Marks) > 0 {
			metrics.EnrichmentFailures.WithLabelValues(strategy.ID).Inc()
		}
		cand, ok := engine.Score(sym, asOf)
		if !ok {
			dropped++
			continue
		}
		candidates = append(candidates, cand)
	}
	obs.Stage("score", len(enriched), len(candidates))
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Str("strategy", strategy.ID).Msg("underconfident symbols dropped")
	}

	// Stage 6: order, tag, elastic floor.
	models.SortCandidates(candidates)
	for i := range candidates {
		candidates[i].ActionTag = engine.Tag(candidates[i].CompositeScore, stale)
	}
	scoring.ApplyElasticFloor(candidates, strategy.ElasticFloor, stale)

	// An explicit caller limit truncates after ordering, so the top of
	// the board survives the cut.
	published := candidates
	if limit > 0 && limit < len(published) {
		published = published[:limit]
	}
	obs.Stage("publish", len(candidates), len(published))

	if err := ctx.Err(); err != nil {
		// Deadline hit after compute: discard, never publish late.
		return nil, o.mapErr(ctx, err)
	}

	// Stage 7: atomic publish.
	if err := o.cache.Publish(ctx, strategy.ID, published); err != nil {
		metrics.CachePublishes.WithLabelValues(strategy.ID, "error").Inc()
		return nil, err
	}
	if err := o.cache.PublishStats(ctx, strategy.ID, filtered.Rejected); err != nil {
		log.Warn().Err(err).Msg("stats publish failed")
	}
	metrics.CachePublishes.WithLabelValues(strategy.ID, "ok").Inc()

	for _, stage := range []struct {
		name string
		n    int
	}{
		{"universe", len(snapshots)},
		{"filter", len(filtered.Survivors)},
		{"shortlist", len(shortlist)},
		{"enrich", len(enriched)},
		{"score", len(candidates)},
	} {
		metrics.StageSurvivors.WithLabelValues(strategy.ID, stage.name).Set(float64(stage.n))
	}

	log.Info().
		Str("strategy", strategy.ID).
		Str("regime", reg.String()).
		Int("universe", len(snapshots)).
		Int("published", len(published)).
		Bool("stale", stale).
		Dur("elapsed", o.now().Sub(started)).
		Msg("discovery run complete")

	return &Result{
		Candidates: published,
		Stale:      stale,
		Rejections: filtered.Rejected,
		Regime:     reg,
	}, nil
}

// isStale applies the market-state rule: closed market, or freshness
// lagging the last close by more than one trading day.
func (o *Orchestrator) isStale(now, freshness time.Time) bool {
	if !o.cal.IsOpen(now) {
		return true
	}
	lastClose := o.cal.LastClose(now)
	// The close before the last one; freshness older than that lags by
	// more than one trading day.
	priorClose := o.cal.LastClose(lastClose.Add(-time.Hour))
	return freshness.Before(priorClose)
}

// boundByCoarseRelVol keeps the top limit snapshots by the coarse
// activity proxy.
func boundByCoarseRelVol(snaps []models.TickerSnapshot, limit int) []models.TickerSnapshot {
	if len(snaps) <= limit {
		return snaps
	}
	sorted := append([]models.TickerSnapshot(nil), snaps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CoarseRelVol() > sorted[j].CoarseRelVol()
	})
	return sorted[:limit]
}

// enrich fans out per-symbol detail fetches under a semaphore. Partial
// failures stay in the result with unknown fields; only context
// cancellation aborts the stage.
func (o *Orchestrator) enrich(ctx context.Context, shortlist []models.TickerSnapshot, strategy config.Strategy) ([]*models.EnrichedSymbol, error) {
	sem := semaphore.NewWeighted(int64(strategy.EnrichmentConcurrency))
	var (
		mu       sync.Mutex
		enriched = make([]*models.EnrichedSymbol, 0, len(shortlist))
		wg       sync.WaitGroup
	)

	for _, snap := range shortlist {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(snap models.TickerSnapshot) {
			defer wg.Done()
			defer sem.Release(1)

			sym, err := o.client.Enrich(ctx, snap)
			if err != nil {
				return // cancelled; the ctx check below settles the run
			}
			mu.Lock()
			enriched = append(enriched, sym)
			mu.Unlock()
		}(snap)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return enriched, nil
}

// detectRegime classifies market volatility, defaulting to normal when
// the inputs are unavailable.
func (o *Orchestrator) detectRegime(ctx context.Context) regime.Regime {
	mv, err := o.client.MarketVol(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("regime inputs unavailable; assuming normal")
		return regime.Normal
	}
	return regime.Classify(mv)
}

func (o *Orchestrator) mapErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrRunTimeout, err)
	}
	return err
}
