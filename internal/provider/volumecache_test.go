package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolumeStore struct {
	rows    map[string]*VolumeRecord
	getErr  error
	upserts []VolumeRecord
}

func (f *fakeVolumeStore) Get(_ context.Context, symbol string) (*VolumeRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[symbol], nil
}

func (f *fakeVolumeStore) Upsert(_ context.Context, rec VolumeRecord) error {
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeVolumeStore) PruneStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func TestVolumeCache_FreshRowSkipsUpstream(t *testing.T) {
	now := time.Now()
	store := &fakeVolumeStore{rows: map[string]*VolumeRecord{
		"AAA": {Symbol: "AAA", AvgVolume20d: 2_000_000, LastUpdated: now.Add(-1 * time.Hour)},
	}}
	fetched := false
	vc := NewVolumeCache(store, func(context.Context, string) (int64, error) {
		fetched = true
		return 0, errors.New("should not be called")
	})

	m := vc.AvgVolume20d(context.Background(), "AAA")

	v, ok := m.Value()
	require.True(t, ok)
	assert.Equal(t, 2_000_000.0, v)
	assert.False(t, fetched)
}

func TestVolumeCache_StaleRowRefreshesWriteThrough(t *testing.T) {
	now := time.Now()
	store := &fakeVolumeStore{rows: map[string]*VolumeRecord{
		"AAA": {Symbol: "AAA", AvgVolume20d: 1_000_000, LastUpdated: now.Add(-25 * time.Hour)},
	}}
	vc := NewVolumeCache(store, func(context.Context, string) (int64, error) {
		return 3_000_000, nil
	})

	m := vc.AvgVolume20d(context.Background(), "AAA")

	v, ok := m.Value()
	require.True(t, ok)
	assert.Equal(t, 3_000_000.0, v, "stale row refetched")
	require.Len(t, store.upserts, 1)
	assert.Equal(t, int64(3_000_000), store.upserts[0].AvgVolume20d)
}

func TestVolumeCache_MissFetchesAndWrites(t *testing.T) {
	store := &fakeVolumeStore{rows: map[string]*VolumeRecord{}}
	vc := NewVolumeCache(store, func(context.Context, string) (int64, error) {
		return 500_000, nil
	})

	m := vc.AvgVolume20d(context.Background(), "NEW")

	assert.True(t, m.Known())
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "NEW", store.upserts[0].Symbol)
}

func TestVolumeCache_UpstreamFailureIsFailedMetric(t *testing.T) {
	vc := NewVolumeCache(nil, func(context.Context, string) (int64, error) {
		return 0, errors.New("provider down")
	})

	m := vc.AvgVolume20d(context.Background(), "XYZ")

	assert.False(t, m.Known())
	assert.Contains(t, m.Reason(), "provider down")
}

func TestVolumeCache_StoreReadErrorFallsThrough(t *testing.T) {
	store := &fakeVolumeStore{getErr: errors.New("db down")}
	vc := NewVolumeCache(store, func(context.Context, string) (int64, error) {
		return 750_000, nil
	})

	m := vc.AvgVolume20d(context.Background(), "AAA")

	v, ok := m.Value()
	require.True(t, ok)
	assert.Equal(t, 750_000.0, v, "cache failure degrades to upstream fetch")
}
