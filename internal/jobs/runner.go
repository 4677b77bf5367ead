// Package jobs owns the discovery run queue: bounded, strategy-scoped,
// with at most one active run per strategy.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/metrics"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/pipeline"
)

// Pipeline is the run executor the worker drives.
type Pipeline interface {
	Run(ctx context.Context, strategy config.Strategy, limit int, obs pipeline.Observer) (*pipeline.Result, error)
}

type job struct {
	runID    string
	strategy config.Strategy
	limit    int
}

// Runner is the bounded job queue plus its workers. Triggering a
// strategy that already has an active run returns the existing run ID
// instead of queueing a duplicate.
type Runner struct {
	pipe       Pipeline
	strategies *config.StrategySet
	queue      chan job
	runTimeout time.Duration
	workers    int
	now        func() time.Time

	mu       sync.Mutex
	runs     map[string]*models.RunRecord
	activeBy map[string]string // strategy ID -> active run ID

	wg sync.WaitGroup
}

// NewRunner builds the runner. queueSize bounds pending jobs across all
// strategies; workers bounds concurrently executing runs.
func NewRunner(pipe Pipeline, strategies *config.StrategySet, queueSize, workers int, runTimeout time.Duration) *Runner {
	if queueSize <= 0 {
		queueSize = 32
	}
	if workers <= 0 {
		workers = 2
	}
	return &Runner{
		pipe:       pipe,
		strategies: strategies,
		queue:      make(chan job, queueSize),
		runTimeout: runTimeout,
		workers:    workers,
		now:        time.Now,
		runs:       make(map[string]*models.RunRecord),
		activeBy:   make(map[string]string),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.work(ctx)
		}()
	}
}

// Wait blocks until all workers have stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueue schedules a run for the strategy. limit caps the published
// list when positive; zero publishes everything. When the strategy
// already has a queued or running job the existing run ID comes back
// with existing=true; the caller surfaces that as an idempotent accept.
func (r *Runner) Enqueue(strategyID string, limit int) (runID string, existing bool, err error) {
	strategy, ok := r.strategies.Get(strategyID)
	if !ok {
		return "", false, fmt.Errorf("%w: unknown strategy %q", models.ErrInvalidConfig, strategyID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if activeID, busy := r.activeBy[strategy.ID]; busy {
		return activeID, true, nil
	}

	rec := &models.RunRecord{
		RunID:      uuid.NewString(),
		StrategyID: strategy.ID,
		State:      models.RunQueued,
		Limit:      limit,
		EnqueuedAt: r.now(),
	}

	select {
	case r.queue <- job{runID: rec.RunID, strategy: strategy, limit: limit}:
	default:
		return "", false, fmt.Errorf("%w: %d jobs pending", models.ErrQueueFull, len(r.queue))
	}

	r.runs[rec.RunID] = rec
	r.activeBy[strategy.ID] = rec.RunID
	metrics.QueueDepth.Set(float64(len(r.queue)))
	log.Info().Str("run_id", rec.RunID).Str("strategy", strategy.ID).Msg("run enqueued")
	return rec.RunID, false, nil
}

// Poll returns a snapshot of the run record.
func (r *Runner) Poll(runID string) (*models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	return rec.Clone(), nil
}

// Latest returns the most recent run record per strategy, for status
// listings.
func (r *Runner) Latest() []*models.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := make(map[string]*models.RunRecord)
	for _, rec := range r.runs {
		cur, ok := latest[rec.StrategyID]
		if !ok || rec.EnqueuedAt.After(cur.EnqueuedAt) {
			latest[rec.StrategyID] = rec
		}
	}
	out := make([]*models.RunRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec.Clone())
	}
	return out
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.queue:
			metrics.QueueDepth.Set(float64(len(r.queue)))
			r.execute(ctx, j)
		}
	}
}

func (r *Runner) execute(ctx context.Context, j job) {
	started := r.now()
	r.mu.Lock()
	rec := r.runs[j.runID]
	rec.State = models.RunRunning
	rec.StartedAt = &started
	r.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	res, err := r.pipe.Run(runCtx, j.strategy, j.limit, &recordObserver{runner: r, runID: j.runID})

	finished := r.now()
	r.mu.Lock()
	rec.FinishedAt = &finished
	switch {
	case err == nil:
		rec.State = models.RunSucceeded
		rec.Published = len(res.Candidates)
	case errors.Is(err, models.ErrRunTimeout):
		rec.State = models.RunTimedOut
		rec.Error = err.Error()
	default:
		rec.State = models.RunFailed
		rec.Error = err.Error()
	}
	delete(r.activeBy, j.strategy.ID)
	state := rec.State
	r.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(j.strategy.ID, string(state)).Inc()
	metrics.RunDuration.WithLabelValues(j.strategy.ID).Observe(finished.Sub(started).Seconds())

	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("run_id", j.runID).
		Str("strategy", j.strategy.ID).
		Str("state", string(state)).
		Dur("elapsed", finished.Sub(started)).
		Msg("run finished")
}

// recordObserver funnels pipeline stage transitions into the run record
// under the runner lock.
type recordObserver struct {
	runner *Runner
	runID  string
}

func (o *recordObserver) Stage(stage string, in, out int) {
	o.runner.mu.Lock()
	defer o.runner.mu.Unlock()
	rec := o.runner.runs[o.runID]
	rec.Stages = append(rec.Stages, models.StageCount{Stage: stage, In: in, Out: out})
}

func (o *recordObserver) MarkStale() {
	o.runner.mu.Lock()
	defer o.runner.mu.Unlock()
	o.runner.runs[o.runID].Stale = true
}

func (o *recordObserver) Rejections(stats map[string]int) {
	o.runner.mu.Lock()
	defer o.runner.mu.Unlock()
	rec := o.runner.runs[o.runID]
	rec.RejectionStats = make(map[string]int, len(stats))
	for k, v := range stats {
		rec.RejectionStats[k] = v
	}
}
