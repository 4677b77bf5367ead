package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/models"
)

// VolumeStaleness is how old a cached volume average may be before it
// must be refreshed from upstream.
const VolumeStaleness = 24 * time.Hour

// VolumeFetcher resolves an average volume from upstream on cache miss.
type VolumeFetcher func(ctx context.Context, symbol string) (int64, error)

// VolumeCache is the write-through cache in front of the
// volume_averages store. A nil store degrades to fetch-only.
type VolumeCache struct {
	store VolumeStore
	fetch VolumeFetcher
	now   func() time.Time
}

// NewVolumeCache wires the store and the upstream fetcher.
func NewVolumeCache(store VolumeStore, fetch VolumeFetcher) *VolumeCache {
	return &VolumeCache{store: store, fetch: fetch, now: time.Now}
}

// AvgVolume20d resolves symbol's 20-day average: fresh cache row first,
// then upstream with write-through. Failures come back as failed
// metrics so scoring down-weights instead of defaulting.
func (vc *VolumeCache) AvgVolume20d(ctx context.Context, symbol string) models.Metric {
	if vc.store != nil {
		rec, err := vc.store.Get(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("volume cache read failed")
		} else if rec != nil && vc.now().Sub(rec.LastUpdated) < VolumeStaleness {
			return models.KnownMetric(float64(rec.AvgVolume20d))
		}
	}

	vol, err := vc.fetch(ctx, symbol)
	if err != nil {
		return models.FailedMetric(fmt.Sprintf("avg_volume_20d: %v", err))
	}
	if vol <= 0 {
		return models.UnknownMetric()
	}

	if vc.store != nil {
		rec := VolumeRecord{Symbol: symbol, AvgVolume20d: vol, LastUpdated: vc.now()}
		if err := vc.store.Upsert(ctx, rec); err != nil {
			// Last-writer-wins upserts; a lost write only costs one
			// extra upstream fetch later.
			log.Warn().Err(err).Str("symbol", symbol).Msg("volume cache write-through failed")
		}
	}
	return models.KnownMetric(float64(vol))
}
