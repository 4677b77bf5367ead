package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-trader/discovery/internal/provider"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEnqueuer) Enqueue(strategyID string, _ int) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strategyID)
	return "run-1", false, nil
}

type recordingStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (s *recordingStore) Get(context.Context, string) (*provider.VolumeRecord, error) {
	return nil, nil
}

func (s *recordingStore) Upsert(context.Context, provider.VolumeRecord) error { return nil }

func (s *recordingStore) PruneStale(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, olderThan)
	return 3, nil
}

func TestSchedule_RejectsMalformedSpec(t *testing.T) {
	s := New(&recordingEnqueuer{}, []string{"alphastack_v41"}, nil, time.UTC)
	assert.Error(t, s.Schedule("not a cron spec", ""))
}

func TestSchedule_AcceptsMarketHoursSpec(t *testing.T) {
	s := New(&recordingEnqueuer{}, []string{"alphastack_v41"}, &recordingStore{}, time.UTC)
	require.NoError(t, s.Schedule("*/5 9-16 * * 1-5", "30 1 * * *"))
}

func TestTriggerAll_EnqueuesEveryStrategy(t *testing.T) {
	enq := &recordingEnqueuer{}
	s := New(enq, []string{"alphastack_v41", "legacy_v0"}, nil, time.UTC)

	s.triggerAll()

	assert.Equal(t, []string{"alphastack_v41", "legacy_v0"}, enq.calls)
}

func TestPruneVolumes_UsesPruneAgeCutoff(t *testing.T) {
	store := &recordingStore{}
	s := New(&recordingEnqueuer{}, nil, store, time.UTC)

	before := time.Now().Add(-volumePruneAge)
	s.pruneVolumes()
	after := time.Now().Add(-volumePruneAge)

	require.Len(t, store.cutoffs, 1)
	cutoff := store.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}
