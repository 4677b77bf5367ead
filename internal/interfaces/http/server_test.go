package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/interfaces/http/handlers"
	"github.com/amc-trader/discovery/internal/models"
)

type fakeQueue struct {
	runID    string
	existing bool
	err      error
	gotLimit int
	records  map[string]*models.RunRecord
	latest   []*models.RunRecord
}

func (q *fakeQueue) Enqueue(_ string, limit int) (string, bool, error) {
	q.gotLimit = limit
	return q.runID, q.existing, q.err
}

func (q *fakeQueue) Poll(runID string) (*models.RunRecord, error) {
	rec, ok := q.records[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	return rec, nil
}

func (q *fakeQueue) Latest() []*models.RunRecord { return q.latest }

type fakeReader struct {
	list  []models.Candidate
	found bool
	err   error
	stats map[string]int
	ping  error
}

func (r *fakeReader) Read(context.Context, string) ([]models.Candidate, bool, error) {
	return r.list, r.found, r.err
}

func (r *fakeReader) ReadStats(context.Context, string) (map[string]int, error) {
	return r.stats, nil
}

func (r *fakeReader) Ping(context.Context) error { return r.ping }

type fakeProber struct{ err error }

func (p *fakeProber) Health(context.Context) error { return p.err }

type fakeClock struct{ open bool }

func (c *fakeClock) IsOpen(time.Time) bool { return c.open }

func squeezeCandidate(symbol string, composite, squeeze float64) models.Candidate {
	return models.Candidate{
		Symbol:         symbol,
		Price:          5,
		CompositeScore: composite,
		SubScores:      models.SubScores{Squeeze: models.KnownMetric(squeeze)},
		ActionTag:      models.TagWatchlist,
		StrategyID:     config.DefaultStrategyID,
	}
}

func newTestServer(q *fakeQueue, r *fakeReader, p *fakeProber, c *fakeClock) *Server {
	h := handlers.New(q, r, p, c, config.DefaultStrategySet())
	return NewServer(DefaultServerConfig(), h)
}

func defaultFixtures() (*fakeQueue, *fakeReader, *fakeProber, *fakeClock) {
	q := &fakeQueue{runID: "run-1", records: map[string]*models.RunRecord{}}
	r := &fakeReader{
		list: []models.Candidate{
			squeezeCandidate("AAA", 82.5, 80),
			squeezeCandidate("BBB", 71.0, 20),
		},
		found: true,
		stats: map[string]int{"etp_excluded": 12},
	}
	return q, r, &fakeProber{}, &fakeClock{open: true}
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestTrigger_NewRunIsAccepted(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodPost, "/discovery/trigger", "")
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["run_id"])
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, config.DefaultStrategyID, resp["strategy"])
}

func TestTrigger_LimitReachesQueue(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodPost, "/discovery/trigger?limit=5", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 5, q.gotLimit)
}

func TestTrigger_ActiveRunIsIdempotent(t *testing.T) {
	q, r, p, c := defaultFixtures()
	q.existing = true
	q.records["run-1"] = &models.RunRecord{RunID: "run-1", State: models.RunRunning}
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodPost, "/discovery/trigger", `{"strategy":"alphastack_v41"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["run_id"])
	// Both triggers see a real lifecycle state, never a synthetic token.
	assert.Contains(t, []string{"queued", "running"}, resp["status"])
}

func TestTrigger_QueueFullIs503(t *testing.T) {
	q, r, p, c := defaultFixtures()
	q.err = fmt.Errorf("%w: 32 jobs pending", models.ErrQueueFull)
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodPost, "/discovery/trigger", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "queue_full")
}

func TestTrigger_UnknownStrategyIs400(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodPost, "/discovery/trigger?strategy=nope", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown_strategy")
}

func TestStatus_ByRunID(t *testing.T) {
	q, r, p, c := defaultFixtures()
	q.records["run-1"] = &models.RunRecord{RunID: "run-1", State: models.RunSucceeded, Published: 14}
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/status?run_id=run-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"succeeded"`)

	rr = doRequest(t, s, http.MethodGet, "/discovery/status?run_id=missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run_not_found")
}

func TestContenders_HeadersAndBody(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/contenders", "")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "HEALTHY", rr.Header().Get("X-System-State"))
	assert.Contains(t, rr.Header().Get("X-Reason-Stats"), "etp_excluded")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var list []models.Candidate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "AAA", list[0].Symbol)
}

func TestContenders_LimitTruncates(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/contenders?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var list []models.Candidate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestContenders_ColdCacheIsEmptyAndDegraded(t *testing.T) {
	q, r, p, c := defaultFixtures()
	r.list, r.found, r.stats = nil, false, nil
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/contenders", "")
	require.Equal(t, http.StatusOK, rr.Code, "cold cache is empty, not an error")
	assert.Equal(t, "DEGRADED", rr.Header().Get("X-System-State"))
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestContenders_CacheDownIs503(t *testing.T) {
	q, r, p, c := defaultFixtures()
	r.err = fmt.Errorf("%w: connection refused", models.ErrCacheUnavailable)
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/contenders", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "DEGRADED", rr.Header().Get("X-System-State"))
	assert.Empty(t, rr.Body.String())
}

func TestContenders_StaleRunFlagsHeader(t *testing.T) {
	q, r, p, c := defaultFixtures()
	q.latest = []*models.RunRecord{{
		RunID:      "run-9",
		StrategyID: config.DefaultStrategyID,
		State:      models.RunSucceeded,
		Stale:      true,
	}}
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/contenders", "")
	require.Equal(t, http.StatusOK, rr.Code, "stale data degrades, never errors")
	assert.Equal(t, "STALE", rr.Header().Get("X-System-State"))
}

func TestSqueezeCandidates_FiltersOnComposite(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	// min_score gates the composite: keeps AAA (82.5), drops BBB (71.0).
	rr := doRequest(t, s, http.MethodGet, "/discovery/squeeze-candidates?min_score=75", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var list []models.Candidate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "AAA", list[0].Symbol)
}

func TestSqueezeCandidates_FractionAndPercentEquivalent(t *testing.T) {
	q, r, p, c := defaultFixtures()
	// A contender can carry an unknown squeeze bucket; the composite
	// alone decides whether it clears min_score.
	partial := squeezeCandidate("PRT", 82.5, 0)
	partial.SubScores.Squeeze = models.UnknownMetric()
	r.list = []models.Candidate{partial}
	s := newTestServer(q, r, p, c)

	fraction := doRequest(t, s, http.MethodGet, "/discovery/squeeze-candidates?min_score=0.4", "")
	percent := doRequest(t, s, http.MethodGet, "/discovery/squeeze-candidates?min_score=40", "")
	require.Equal(t, http.StatusOK, fraction.Code)
	require.Equal(t, http.StatusOK, percent.Code)
	assert.Equal(t, fraction.Body.String(), percent.Body.String())

	var list []models.Candidate
	require.NoError(t, json.Unmarshal(fraction.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "PRT", list[0].Symbol)
}

func TestSqueezeCandidates_BadMinScore(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/squeeze-candidates?min_score=banana", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth_Degradation(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rr.Body.String(), `"market_open":true`)

	p.err = fmt.Errorf("%w: 502", models.ErrProviderUnavailable)
	rr = doRequest(t, s, http.MethodGet, "/discovery/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"degraded"`)
}

func TestNotFound_JSONBody(t *testing.T) {
	q, r, p, c := defaultFixtures()
	s := newTestServer(q, r, p, c)

	rr := doRequest(t, s, http.MethodGet, "/discovery/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_found")
}
