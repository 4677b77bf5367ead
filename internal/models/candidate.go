package models

import (
	"sort"
	"time"
)

// ActionTag classifies a candidate into an action tier.
type ActionTag string

const (
	TagTradeReady ActionTag = "trade_ready"
	TagWatchlist  ActionTag = "watchlist"
	TagMonitor    ActionTag = "monitor"
)

// SubScores holds the six AlphaStack buckets, each 0-100. A bucket whose
// inputs fell below the known-weight threshold is unknown and excluded
// from the composite via weight renormalization.
type SubScores struct {
	VolumeMomentum Metric `json:"volume_momentum"`
	Squeeze        Metric `json:"squeeze"`
	Catalyst       Metric `json:"catalyst"`
	Sentiment      Metric `json:"sentiment"`
	Options        Metric `json:"options"`
	Technical      Metric `json:"technical"`
}

// Candidate is one published contender.
type Candidate struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	CompositeScore float64   `json:"composite_score"` // 0-100, one decimal
	SubScores      SubScores `json:"sub_scores"`
	ActionTag      ActionTag `json:"action_tag"`
	Confidence     float64   `json:"confidence"` // fraction of weight known
	Reasons        []string  `json:"reasons"`
	IntradayRelVol Metric    `json:"intraday_relvol"`

	Entry   float64 `json:"entry"`
	Stop    float64 `json:"stop"`
	Target1 float64 `json:"target_1"`
	Target2 float64 `json:"target_2"`

	ComputedAt time.Time `json:"computed_at"`
	StrategyID string    `json:"strategy_id"`
}

// Less orders candidates for publication: composite desc, then relvol
// desc, then volume-momentum desc, then price asc. Unknown metrics sort
// below any known value.
func (c Candidate) Less(other Candidate) bool {
	if c.CompositeScore != other.CompositeScore {
		return c.CompositeScore > other.CompositeScore
	}
	if rv, orv := metricRank(c.IntradayRelVol), metricRank(other.IntradayRelVol); rv != orv {
		return rv > orv
	}
	if vm, ovm := metricRank(c.SubScores.VolumeMomentum), metricRank(other.SubScores.VolumeMomentum); vm != ovm {
		return vm > ovm
	}
	return c.Price < other.Price
}

// SortCandidates sorts in place by the publication ordering.
func SortCandidates(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Less(list[j])
	})
}

func metricRank(m Metric) float64 {
	if v, ok := m.Value(); ok {
		return v
	}
	return -1
}
