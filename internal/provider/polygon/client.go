// Package polygon implements the market data client against a
// Polygon-style REST upstream: grouped daily bars for the universe
// snapshot, per-ticker aggregates and reference data for enrichment.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/provider"
)

// enrichmentConcurrency caps outstanding per-symbol detail calls.
const enrichmentConcurrency = 8

// Client is the HTTP market data client. All upstream calls flow
// through the token bucket, the circuit breaker and the retry policy.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	sem     *semaphore.Weighted
	retry   provider.RetryPolicy
	volumes *provider.VolumeCache
}

// New builds a client from config. store may be nil; the volume cache
// then always fetches upstream.
func New(cfg config.ProviderConfig, store provider.VolumeStore) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		sem:     semaphore.NewWeighted(enrichmentConcurrency),
		retry: provider.RetryPolicy{
			Attempts: cfg.MaxRetries,
			Base:     cfg.RetryBase,
			Factor:   2,
			Jitter:   0.25,
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "polygon",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	c.volumes = provider.NewVolumeCache(store, c.fetchAvgVolume20d)
	return c
}

type groupedBar struct {
	Ticker string  `json:"T"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	VWAP   float64 `json:"vw"`
	TimeMs int64   `json:"t"`
}

type groupedResponse struct {
	Results []groupedBar `json:"results"`
	Status  string       `json:"status"`
}

// FetchUniverse pulls the grouped daily bars for tradingDate. The
// freshness timestamp is the latest bar time in the payload.
func (c *Client) FetchUniverse(ctx context.Context, tradingDate time.Time) ([]models.TickerSnapshot, time.Time, error) {
	path := fmt.Sprintf("/v2/aggs/grouped/locale/us/market/stocks/%s", tradingDate.Format("2006-01-02"))

	var resp groupedResponse
	if err := c.getJSON(ctx, path, url.Values{"adjusted": {"true"}}, &resp); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: universe fetch: %v", models.ErrProviderUnavailable, err)
	}

	snapshots := make([]models.TickerSnapshot, 0, len(resp.Results))
	var freshest time.Time
	for _, bar := range resp.Results {
		ts := time.UnixMilli(bar.TimeMs).UTC()
		if ts.After(freshest) {
			freshest = ts
		}
		snap := models.TickerSnapshot{
			Symbol:        bar.Ticker,
			LastPrice:     bar.Close,
			SessionVolume: int64(bar.Volume),
			PrevClose:     bar.Open, // grouped feed carries no prev close; open is the session reference
			SessionHigh:   bar.High,
			SessionLow:    bar.Low,
			Open:          bar.Open,
		}
		if bar.VWAP > 0 {
			snap.VWAP = models.KnownMetric(bar.VWAP)
		}
		snapshots = append(snapshots, snap)
	}

	log.Info().
		Int("symbols", len(snapshots)).
		Str("trading_date", tradingDate.Format("2006-01-02")).
		Time("freshness", freshest).
		Msg("universe snapshot fetched")

	return snapshots, freshest, nil
}

type aggsResponse struct {
	Results []struct {
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
		TimeMs int64   `json:"t"`
	} `json:"results"`
}

type tickerDetails struct {
	Results struct {
		Name        string  `json:"name"`
		FloatShares float64 `json:"share_class_shares_outstanding"`
	} `json:"results"`
}

type shortData struct {
	ShortInterestPct float64 `json:"short_interest_pct"`
	BorrowFeePct     float64 `json:"borrow_fee_pct"`
	UtilizationPct   float64 `json:"utilization_pct"`
}

type optionsData struct {
	CallPutRatio float64 `json:"call_put_ratio"`
	IVPercentile float64 `json:"iv_percentile"`
}

type catalystData struct {
	Strength float64 `json:"strength"`
	AgeHours float64 `json:"age_hours"`
	Source   string  `json:"source"`
	Verified bool    `json:"verified"`
}

type sentimentData struct {
	ZScore7d float64 `json:"z_score_7d"`
}

// Enrich fetches per-symbol detail. Sub-fetch failures mark the
// affected fields unknown and record a reason; only context
// cancellation aborts.
func (c *Client) Enrich(ctx context.Context, snap models.TickerSnapshot) (*models.EnrichedSymbol, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	sym := &models.EnrichedSymbol{TickerSnapshot: snap}

	sym.AvgVolume20d = c.volumes.AvgVolume20d(ctx, snap.Symbol)
	if reason := sym.AvgVolume20d.Reason(); reason != "" {
		sym.Marks = append(sym.Marks, reason)
	}

	var details tickerDetails
	if err := c.getJSON(ctx, "/v3/reference/tickers/"+snap.Symbol, nil, &details); err != nil {
		sym.FloatShares = models.FailedMetric(mark(sym, "float_shares", err))
	} else {
		sym.Name = details.Results.Name
		if details.Results.FloatShares > 0 {
			sym.FloatShares = models.KnownMetric(details.Results.FloatShares)
		} else {
			sym.FloatShares = models.UnknownMetric()
		}
	}

	var short shortData
	if err := c.getJSON(ctx, "/v1/short-interest/"+snap.Symbol, nil, &short); err != nil {
		reason := mark(sym, "short_interest", err)
		sym.ShortInterestPct = models.FailedMetric(reason)
		sym.BorrowFeePct = models.FailedMetric(reason)
		sym.UtilizationPct = models.FailedMetric(reason)
	} else {
		sym.ShortInterestPct = models.KnownMetric(short.ShortInterestPct)
		sym.BorrowFeePct = models.KnownMetric(short.BorrowFeePct)
		sym.UtilizationPct = models.KnownMetric(short.UtilizationPct)
	}

	var opts optionsData
	if err := c.getJSON(ctx, "/v1/options/summary/"+snap.Symbol, nil, &opts); err != nil {
		reason := mark(sym, "options", err)
		sym.CallPutRatio = models.FailedMetric(reason)
		sym.IVPercentile = models.FailedMetric(reason)
	} else {
		sym.CallPutRatio = models.KnownMetric(opts.CallPutRatio)
		sym.IVPercentile = models.KnownMetric(opts.IVPercentile)
	}

	var cat catalystData
	if err := c.getJSON(ctx, "/v1/catalysts/"+snap.Symbol, nil, &cat); err != nil {
		reason := mark(sym, "catalyst", err)
		sym.CatalystStrength = models.FailedMetric(reason)
		sym.CatalystAgeHours = models.FailedMetric(reason)
	} else if cat.Strength > 0 {
		sym.CatalystStrength = models.KnownMetric(cat.Strength)
		sym.CatalystAgeHours = models.KnownMetric(cat.AgeHours)
		sym.CatalystSource = cat.Source
		sym.CatalystSourceVerified = cat.Verified
	} else {
		sym.CatalystStrength = models.UnknownMetric()
		sym.CatalystAgeHours = models.UnknownMetric()
	}

	var sent sentimentData
	if err := c.getJSON(ctx, "/v1/sentiment/"+snap.Symbol, nil, &sent); err != nil {
		sym.SentimentZScore = models.FailedMetric(mark(sym, "sentiment", err))
	} else {
		sym.SentimentZScore = models.KnownMetric(sent.ZScore7d)
	}

	sym.DailyBars = c.fetchDailyBars(ctx, sym, snap.Symbol, 60)
	sym.RecentCloses = c.fetchRecentCloses(ctx, snap.Symbol)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return sym, nil
}

// AvgVolume20d resolves through the write-through volume cache.
func (c *Client) AvgVolume20d(ctx context.Context, symbol string) models.Metric {
	return c.volumes.AvgVolume20d(ctx, symbol)
}

// MarketVol derives the regime inputs from SPY daily bars and the VIX
// index quote.
func (c *Client) MarketVol(ctx context.Context) (models.MarketVol, error) {
	bars := c.dailyBars(ctx, "SPY", 30)
	if len(bars) < 15 {
		return models.MarketVol{}, fmt.Errorf("%w: SPY history too short (%d bars)", models.ErrProviderUnavailable, len(bars))
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := talib.Atr(highs, lows, closes, 14)
	lastClose := closes[len(closes)-1]
	atrPct := 0.0
	if lastClose > 0 {
		atrPct = 100 * atr[len(atr)-1] / lastClose
	}

	mv := models.MarketVol{SPYATRPct: atrPct, AsOf: bars[len(bars)-1].Time}

	vix := c.dailyBars(ctx, "I:VIX", 2)
	if len(vix) > 0 {
		mv.VIX = vix[len(vix)-1].Close
	}
	return mv, nil
}

// Health probes the upstream market status endpoint.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Market string `json:"market"`
	}
	if err := c.getJSON(ctx, "/v1/marketstatus/now", nil, &status); err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	return nil
}

func (c *Client) fetchAvgVolume20d(ctx context.Context, symbol string) (int64, error) {
	bars := c.dailyBars(ctx, symbol, 20)
	if len(bars) == 0 {
		return 0, fmt.Errorf("no daily bars for %s", symbol)
	}
	var sum int64
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / int64(len(bars)), nil
}

func (c *Client) fetchDailyBars(ctx context.Context, sym *models.EnrichedSymbol, symbol string, days int) []models.Bar {
	bars := c.dailyBars(ctx, symbol, days)
	if len(bars) == 0 {
		sym.Marks = append(sym.Marks, "daily_bars: unavailable")
	}
	return bars
}

func (c *Client) dailyBars(ctx context.Context, symbol string, days int) []models.Bar {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days*2) // weekends and holidays thin the range
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))

	var resp aggsResponse
	if err := c.getJSON(ctx, path, url.Values{"adjusted": {"true"}, "limit": {"120"}}, &resp); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("daily bars fetch failed")
		return nil
	}

	bars := make([]models.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, models.Bar{
			Time:   time.UnixMilli(r.TimeMs).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: int64(r.Volume),
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars
}

// fetchRecentCloses pulls the last 15 one-minute closes for VWAP
// hysteresis. Best effort; empty on failure.
func (c *Client) fetchRecentCloses(ctx context.Context, symbol string) []float64 {
	now := time.Now().UTC()
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/minute/%s/%s",
		symbol, now.Add(-30*time.Minute).Format("2006-01-02"), now.Format("2006-01-02"))

	var resp aggsResponse
	if err := c.getJSON(ctx, path, url.Values{"sort": {"desc"}, "limit": {"15"}}, &resp); err != nil {
		return nil
	}

	closes := make([]float64, 0, len(resp.Results))
	for i := len(resp.Results) - 1; i >= 0; i-- { // oldest first
		closes = append(closes, resp.Results[i].Close)
	}
	return closes
}

func mark(sym *models.EnrichedSymbol, field string, err error) string {
	reason := fmt.Sprintf("%s: %v", field, err)
	sym.Marks = append(sym.Marks, reason)
	return reason
}

// getJSON performs one rate-limited, breaker-guarded, retried GET.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return provider.Retry(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doGet(ctx, path, query, out)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return provider.Retryable(fmt.Errorf("%w: circuit open", models.ErrProviderUnavailable))
		}
		return err
	})
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("apiKey", c.apiKey)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport errors and timeouts are worth a retry.
		return provider.Retryable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return provider.Retryable(fmt.Errorf("upstream %s: status %d", path, resp.StatusCode))
	default:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("upstream %s: status %d", path, resp.StatusCode)
	}
}
