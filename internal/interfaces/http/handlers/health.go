package handlers

import (
	"net/http"
	"time"
)

type componentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	MarketOpen bool                       `json:"market_open"`
	UptimeSecs int64                      `json:"uptime_seconds"`
	Strategies []string                   `json:"strategies"`
	Components map[string]componentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Health handles GET /discovery/health. Always 200; degradation shows in
// the status fields so probes and dashboards share one view.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := healthResponse{
		Status:     "healthy",
		MarketOpen: h.clock.IsOpen(now),
		UptimeSecs: int64(now.Sub(h.started).Seconds()),
		Strategies: h.strategies.IDs(),
		Components: map[string]componentHealth{},
		Timestamp:  now.UTC(),
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		resp.Components["cache"] = componentHealth{Status: "down", Detail: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Components["cache"] = componentHealth{Status: "up"}
	}

	if err := h.provider.Health(r.Context()); err != nil {
		resp.Components["provider"] = componentHealth{Status: "down", Detail: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Components["provider"] = componentHealth{Status: "up"}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
