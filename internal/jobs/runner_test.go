package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/pipeline"
)

// blockingPipe holds each run until released, so tests can observe the
// active-run window deterministically.
type blockingPipe struct {
	started chan string
	limits  chan int
	release chan struct{}
	result  *pipeline.Result
	err     error
}

func newBlockingPipe() *blockingPipe {
	return &blockingPipe{
		started: make(chan string, 16),
		limits:  make(chan int, 16),
		release: make(chan struct{}),
		result:  &pipeline.Result{Candidates: []models.Candidate{{Symbol: "AAA"}}},
	}
}

func (p *blockingPipe) Run(ctx context.Context, strategy config.Strategy, limit int, obs pipeline.Observer) (*pipeline.Result, error) {
	p.started <- strategy.ID
	p.limits <- limit
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", models.ErrRunTimeout, ctx.Err())
	}
	if obs != nil {
		obs.Stage("universe", 100, 100)
		obs.Stage("filter", 100, 40)
	}
	return p.result, p.err
}

func waitForState(t *testing.T, r *Runner, runID string, want models.RunState) *models.RunRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		rec, err := r.Poll(runID)
		require.NoError(t, err)
		if rec.State == want {
			return rec
		}
		select {
		case <-deadline:
			t.Fatalf("run %s stuck in %s, want %s", runID, rec.State, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueue_IdempotentWhileActive(t *testing.T) {
	pipe := newBlockingPipe()
	r := NewRunner(pipe, config.DefaultStrategySet(), 8, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	first, existing, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)
	assert.False(t, existing)

	<-pipe.started // run is now executing

	second, existing, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)
	assert.True(t, existing, "active strategy must not double-queue")
	assert.Equal(t, first, second)

	close(pipe.release)
	rec := waitForState(t, r, first, models.RunSucceeded)
	assert.Equal(t, 1, rec.Published)
	require.Len(t, rec.Stages, 2)
	assert.Equal(t, models.StageCount{Stage: "filter", In: 100, Out: 40}, rec.Stages[1])

	// Terminal state frees the strategy slot.
	third, existing, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, first, third)
}

func TestEnqueue_LimitReachesRun(t *testing.T) {
	pipe := newBlockingPipe()
	r := NewRunner(pipe, config.DefaultStrategySet(), 8, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	runID, _, err := r.Enqueue(config.DefaultStrategyID, 7)
	require.NoError(t, err)

	<-pipe.started
	assert.Equal(t, 7, <-pipe.limits, "caller limit must reach the pipeline")

	rec, err := r.Poll(runID)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Limit)

	close(pipe.release)
	waitForState(t, r, runID, models.RunSucceeded)
}

func TestEnqueue_QueueFull(t *testing.T) {
	pipe := newBlockingPipe()

	set, err := config.ParseStrategies([]byte(`
strategies:
  - id: s1
    weights: {volume_momentum: 0.30, squeeze: 0.25, catalyst: 0.20, sentiment: 0.10, options: 0.08, technical: 0.07}
  - id: s2
    weights: {volume_momentum: 0.30, squeeze: 0.25, catalyst: 0.20, sentiment: 0.10, options: 0.08, technical: 0.07}
  - id: s3
    weights: {volume_momentum: 0.30, squeeze: 0.25, catalyst: 0.20, sentiment: 0.10, options: 0.08, technical: 0.07}
`))
	require.NoError(t, err)

	r := NewRunner(pipe, set, 1, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	_, _, err = r.Enqueue("s1", 0)
	require.NoError(t, err)
	<-pipe.started // s1 occupies the worker, queue is empty again

	_, _, err = r.Enqueue("s2", 0) // fills the queue
	require.NoError(t, err)

	_, _, err = r.Enqueue("s3", 0)
	assert.ErrorIs(t, err, models.ErrQueueFull)

	close(pipe.release)
}

func TestEnqueue_UnknownStrategy(t *testing.T) {
	r := NewRunner(newBlockingPipe(), config.DefaultStrategySet(), 8, 1, time.Second)
	_, _, err := r.Enqueue("no_such_strategy", 0)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestRun_TimeoutMarksTimedOut(t *testing.T) {
	pipe := newBlockingPipe() // never released
	r := NewRunner(pipe, config.DefaultStrategySet(), 8, 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	runID, _, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)

	rec := waitForState(t, r, runID, models.RunTimedOut)
	assert.Contains(t, rec.Error, "timed out")
	assert.NotNil(t, rec.FinishedAt)
}

func TestRun_FailureMarksFailed(t *testing.T) {
	pipe := newBlockingPipe()
	pipe.err = errors.New("upstream exploded")
	pipe.result = nil
	r := NewRunner(pipe, config.DefaultStrategySet(), 8, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	runID, _, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)
	close(pipe.release)

	rec := waitForState(t, r, runID, models.RunFailed)
	assert.Equal(t, "upstream exploded", rec.Error)
}

func TestPoll_UnknownRun(t *testing.T) {
	r := NewRunner(newBlockingPipe(), config.DefaultStrategySet(), 8, 1, time.Second)
	_, err := r.Poll("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestLatest_OneRecordPerStrategy(t *testing.T) {
	pipe := newBlockingPipe()
	r := NewRunner(pipe, config.DefaultStrategySet(), 8, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	first, _, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)
	<-pipe.started
	close(pipe.release)
	waitForState(t, r, first, models.RunSucceeded)

	second, _, err := r.Enqueue(config.DefaultStrategyID, 0)
	require.NoError(t, err)

	latest := r.Latest()
	require.Len(t, latest, 1)
	assert.Equal(t, second, latest[0].RunID)
}
