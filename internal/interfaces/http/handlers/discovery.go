package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/amc-trader/discovery/internal/models"
)

// triggerRequest is the optional POST body; the strategy query parameter
// wins when both are present.
type triggerRequest struct {
	Strategy string `json:"strategy"`
}

type triggerResponse struct {
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
}

// Trigger handles POST /discovery/trigger. Triggering a strategy with an
// active run is idempotent: the existing run ID comes back with 200.
func (h *Handlers) Trigger(w http.ResponseWriter, r *http.Request) {
	strategyID := r.URL.Query().Get("strategy")
	if strategyID == "" && r.Body != nil {
		var body triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			strategyID = body.Strategy
		} else if err != io.EOF {
			h.writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
			return
		}
	}

	strategy, ok := h.strategies.Get(strategyID)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown_strategy", "strategy "+strategyID+" is not configured")
		return
	}

	runID, existing, err := h.queue.Enqueue(strategy.ID, parseLimit(r))
	switch {
	case errors.Is(err, models.ErrQueueFull):
		h.writeError(w, http.StatusServiceUnavailable, "queue_full", "job queue is full, retry later")
		return
	case err != nil:
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if existing {
		// Idempotent accept: report the active run's real state, so both
		// triggers see queued or running.
		status := string(models.RunRunning)
		if rec, err := h.queue.Poll(runID); err == nil {
			status = string(rec.State)
		}
		h.writeJSON(w, http.StatusOK, triggerResponse{RunID: runID, Strategy: strategy.ID, Status: status})
		return
	}
	h.writeJSON(w, http.StatusAccepted, triggerResponse{RunID: runID, Strategy: strategy.ID, Status: string(models.RunQueued)})
}

// Status handles GET /discovery/status. With run_id it returns that run;
// without, the latest run per strategy.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		rec, err := h.queue.Poll(runID)
		if errors.Is(err, models.ErrRunNotFound) {
			h.writeError(w, http.StatusNotFound, "run_not_found", "no run with id "+runID)
			return
		}
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, rec)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": h.queue.Latest()})
}

// Contenders handles GET /discovery/contenders. Reads are cache-only and
// never trigger computation; a cold cache is an empty list, not an error.
func (h *Handlers) Contenders(w http.ResponseWriter, r *http.Request) {
	strategyID := h.resolveStrategy(r)

	list, found, err := h.cache.Read(r.Context(), strategyID)
	if err != nil {
		h.writeDegraded(w)
		return
	}

	if stats, err := h.cache.ReadStats(r.Context(), strategyID); err == nil && len(stats) > 0 {
		if payload, err := json.Marshal(stats); err == nil {
			w.Header().Set("X-Reason-Stats", string(payload))
		}
	}
	w.Header().Set("X-System-State", h.systemState(strategyID, found))
	w.Header().Set("Cache-Control", "no-store")

	if limit := parseLimit(r); limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	if list == nil {
		list = []models.Candidate{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// SqueezeCandidates handles GET /discovery/squeeze-candidates: the
// contender list filtered by composite score. min_score values at or
// below 1 are treated as fractions of 100.
func (h *Handlers) SqueezeCandidates(w http.ResponseWriter, r *http.Request) {
	strategyID := h.resolveStrategy(r)

	minScore := 70.0
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "bad_request", "min_score must be a non-negative number")
			return
		}
		if parsed <= 1 {
			parsed *= 100
		} else {
			parsed = float64(int(parsed))
		}
		minScore = parsed
	}

	list, found, err := h.cache.Read(r.Context(), strategyID)
	if err != nil {
		h.writeDegraded(w)
		return
	}

	out := make([]models.Candidate, 0, len(list))
	for _, c := range list {
		if c.CompositeScore >= minScore {
			out = append(out, c)
		}
	}
	if limit := parseLimit(r); limit > 0 && limit < len(out) {
		out = out[:limit]
	}

	w.Header().Set("X-System-State", h.systemState(strategyID, found))
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, out)
}

// writeDegraded is the cache-down reader response: 503, empty body,
// DEGRADED state header.
func (h *Handlers) writeDegraded(w http.ResponseWriter) {
	w.Header().Set("X-System-State", "DEGRADED")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (h *Handlers) resolveStrategy(r *http.Request) string {
	strategyID := r.URL.Query().Get("strategy")
	if s, ok := h.strategies.Get(strategyID); ok {
		return s.ID
	}
	return strategyID
}

// systemState drives the X-System-State header: DEGRADED when the cache
// has no list, STALE when the latest run flagged stale data or the
// session is closed, HEALTHY otherwise.
func (h *Handlers) systemState(strategyID string, found bool) string {
	if !found {
		return "DEGRADED"
	}
	for _, rec := range h.queue.Latest() {
		if rec.StrategyID == strategyID && rec.Stale {
			return "STALE"
		}
	}
	if !h.clock.IsOpen(h.now()) {
		return "STALE"
	}
	return "HEALTHY"
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
