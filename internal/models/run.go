package models

import (
	"time"
)

// RunState is the lifecycle state of a discovery run.
type RunState string

const (
	RunQueued    RunState = "queued"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunTimedOut  RunState = "timed_out"
)

// Active reports whether the run still occupies its strategy slot.
func (s RunState) Active() bool {
	return s == RunQueued || s == RunRunning
}

// StageCount records the funnel in/out counts for one pipeline stage.
type StageCount struct {
	Stage string `json:"stage"`
	In    int    `json:"in"`
	Out   int    `json:"out"`
}

// RunRecord tracks one discovery run end to end.
type RunRecord struct {
	RunID      string   `json:"run_id"`
	StrategyID string   `json:"strategy_id"`
	State      RunState `json:"state"`
	// Limit caps the published list when positive; zero publishes all.
	Limit      int          `json:"limit,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Stages     []StageCount `json:"stages,omitempty"`
	// RejectionStats histograms filter rejections by reason.
	RejectionStats map[string]int `json:"rejection_stats,omitempty"`
	Stale          bool           `json:"stale,omitempty"`
	Published      int            `json:"published"`
	Error          string         `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand to readers while the worker
// keeps mutating the original.
func (r *RunRecord) Clone() *RunRecord {
	cp := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	cp.Stages = append([]StageCount(nil), r.Stages...)
	if r.RejectionStats != nil {
		cp.RejectionStats = make(map[string]int, len(r.RejectionStats))
		for k, v := range r.RejectionStats {
			cp.RejectionStats[k] = v
		}
	}
	return &cp
}
