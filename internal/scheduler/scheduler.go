// Package scheduler triggers discovery runs on a market-hours cron and
// prunes stale volume rows off-hours.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/provider"
)

// volumePruneAge is how long a volume_averages row may go without a
// refresh before the daily prune removes it. Rows this old belong to
// symbols that left the filtered universe.
const volumePruneAge = 72 * time.Hour

// Enqueuer is the job-runner surface the scheduler drives. Enqueue is
// idempotent per strategy, so overlapping ticks are harmless.
type Enqueuer interface {
	Enqueue(strategyID string, limit int) (runID string, existing bool, err error)
}

// Scheduler owns the cron entries. All expressions evaluate in the
// exchange time zone.
type Scheduler struct {
	cron       *cron.Cron
	runner     Enqueuer
	strategies []string
	volumes    provider.VolumeStore
}

// New builds the scheduler in loc.
func New(runner Enqueuer, strategyIDs []string, volumes provider.VolumeStore, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		runner:     runner,
		strategies: strategyIDs,
		volumes:    volumes,
	}
}

// Schedule registers the discovery and prune entries. Returns an error
// only for malformed cron expressions.
func (s *Scheduler) Schedule(discoverySpec, pruneSpec string) error {
	if _, err := s.cron.AddFunc(discoverySpec, s.triggerAll); err != nil {
		return err
	}
	if s.volumes != nil && pruneSpec != "" {
		if _, err := s.cron.AddFunc(pruneSpec, s.pruneVolumes); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("entries", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts scheduling and waits for running entries.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) triggerAll() {
	for _, id := range s.strategies {
		runID, existing, err := s.runner.Enqueue(id, 0)
		if err != nil {
			log.Warn().Err(err).Str("strategy", id).Msg("scheduled trigger rejected")
			continue
		}
		if existing {
			log.Debug().Str("strategy", id).Str("run_id", runID).Msg("scheduled trigger joined active run")
		}
	}
}

func (s *Scheduler) pruneVolumes() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.volumes.PruneStale(ctx, time.Now().Add(-volumePruneAge))
	if err != nil {
		log.Error().Err(err).Msg("volume prune failed")
		return
	}
	log.Info().Int64("pruned", n).Msg("stale volume rows removed")
}
