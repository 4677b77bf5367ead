// Package handlers implements the discovery HTTP facade endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
)

// RunQueue is the trigger/status surface of the job runner.
type RunQueue interface {
	Enqueue(strategyID string, limit int) (runID string, existing bool, err error)
	Poll(runID string) (*models.RunRecord, error)
	Latest() []*models.RunRecord
}

// ContenderReader is the cache read surface.
type ContenderReader interface {
	Read(ctx context.Context, strategyID string) ([]models.Candidate, bool, error)
	ReadStats(ctx context.Context, strategyID string) (map[string]int, error)
	Ping(ctx context.Context) error
}

// UpstreamProber checks provider reachability for health reporting.
type UpstreamProber interface {
	Health(ctx context.Context) error
}

// MarketClock reports whether the exchange session is open.
type MarketClock interface {
	IsOpen(ts time.Time) bool
}

// Handlers carries the endpoint dependencies.
type Handlers struct {
	queue      RunQueue
	cache      ContenderReader
	provider   UpstreamProber
	clock      MarketClock
	strategies *config.StrategySet
	started    time.Time
	now        func() time.Time
}

// New wires the handler set.
func New(queue RunQueue, cache ContenderReader, provider UpstreamProber, clock MarketClock, strategies *config.StrategySet) *Handlers {
	return &Handlers{
		queue:      queue,
		cache:      cache,
		provider:   provider,
		clock:      clock,
		strategies: strategies,
		started:    time.Now(),
		now:        time.Now,
	}
}

// errorBody is the uniform error payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorBody{Code: code, Message: message})
}

// NotFound is the catch-all 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "not_found", "no such route: "+r.URL.Path)
}
