// Package provider defines the upstream market data capabilities the
// pipeline consumes. Implementations live in subpackages; the
// orchestrator only sees these interfaces.
package provider

import (
	"context"
	"time"

	"github.com/amc-trader/discovery/internal/models"
)

// MarketDataClient is the upstream data capability.
type MarketDataClient interface {
	// FetchUniverse returns the grouped daily snapshot for tradingDate
	// plus the freshness timestamp of the provider's latest bar.
	// Failure here is fatal to a run.
	FetchUniverse(ctx context.Context, tradingDate time.Time) ([]models.TickerSnapshot, time.Time, error)

	// Enrich fetches per-symbol detail. Partial failures come back as
	// unknown fields with marks, not as errors; the error return is for
	// context cancellation only.
	Enrich(ctx context.Context, snap models.TickerSnapshot) (*models.EnrichedSymbol, error)

	// AvgVolume20d resolves the 20-day average volume through the
	// write-through volume cache.
	AvgVolume20d(ctx context.Context, symbol string) models.Metric

	// MarketVol returns the regime inputs (SPY ATR%, VIX proxy).
	MarketVol(ctx context.Context) (models.MarketVol, error)

	// Health reports whether the upstream is currently reachable.
	Health(ctx context.Context) error
}

// VolumeRecord is one row of the volume_averages table.
type VolumeRecord struct {
	Symbol       string    `db:"symbol"`
	AvgVolume20d int64     `db:"avg_volume_20d"`
	AvgVolume30d *int64    `db:"avg_volume_30d"`
	LastUpdated  time.Time `db:"last_updated"`
}

// VolumeStore persists volume averages. Rows older than the staleness
// window must be refreshed from upstream.
type VolumeStore interface {
	Get(ctx context.Context, symbol string) (*VolumeRecord, error)
	Upsert(ctx context.Context, rec VolumeRecord) error
	PruneStale(ctx context.Context, olderThan time.Time) (int64, error)
}
