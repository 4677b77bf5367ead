package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amc-trader/discovery/internal/models"
)

// weightSumTolerance bounds the allowed deviation of a weight vector
// from 1.00 at load time.
const weightSumTolerance = 1e-6

// DefaultStrategyID names the strategy served from the unsuffixed cache key.
const DefaultStrategyID = "alphastack_v41"

// Weights is the per-bucket weight vector. Must sum to 1.00.
type Weights struct {
	VolumeMomentum float64 `yaml:"volume_momentum" json:"volume_momentum"`
	Squeeze        float64 `yaml:"squeeze" json:"squeeze"`
	Catalyst       float64 `yaml:"catalyst" json:"catalyst"`
	Sentiment      float64 `yaml:"sentiment" json:"sentiment"`
	Options        float64 `yaml:"options" json:"options"`
	Technical      float64 `yaml:"technical" json:"technical"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.VolumeMomentum + w.Squeeze + w.Catalyst + w.Sentiment + w.Options + w.Technical
}

// TierThresholds are the composite cut-offs for action tags.
type TierThresholds struct {
	TradeReady float64 `yaml:"trade_ready" json:"trade_ready"`
	Watchlist  float64 `yaml:"watchlist" json:"watchlist"`
}

// Guards are the hard universe filters. Never relaxed, not even in
// elastic mode.
type Guards struct {
	MinPrice        float64 `yaml:"min_price" json:"min_price"`
	MinDollarVolume float64 `yaml:"min_dollar_volume" json:"min_dollar_volume"`
	MaxSpreadBps    float64 `yaml:"max_spread_bps" json:"max_spread_bps"`
}

// Strategy is one named scoring configuration. Runs are strategy-scoped.
type Strategy struct {
	ID                    string         `yaml:"id" json:"id"`
	Weights               Weights        `yaml:"weights" json:"weights"`
	Tiers                 TierThresholds `yaml:"tier_thresholds" json:"tier_thresholds"`
	Guards                Guards         `yaml:"guards" json:"guards"`
	UniverseCap           int            `yaml:"universe_cap" json:"universe_cap"`
	EnrichmentConcurrency int            `yaml:"enrichment_concurrency" json:"enrichment_concurrency"`
	ElasticFloor          int            `yaml:"elastic_floor" json:"elastic_floor"`
	// ConfidenceWeighting down-ranks low-confidence candidates by
	// multiplying the composite by its confidence. Off by default; the
	// published confidence field is always present either way.
	ConfidenceWeighting bool `yaml:"confidence_weighting" json:"confidence_weighting"`
}

// Validate checks the invariants every strategy must satisfy.
func (s Strategy) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: strategy id is empty", models.ErrInvalidConfig)
	}
	if diff := math.Abs(s.Weights.Sum() - 1.0); diff > weightSumTolerance {
		return fmt.Errorf("%w: strategy %q weights sum to %.8f, want 1.00", models.ErrInvalidConfig, s.ID, s.Weights.Sum())
	}
	for name, w := range map[string]float64{
		"volume_momentum": s.Weights.VolumeMomentum,
		"squeeze":         s.Weights.Squeeze,
		"catalyst":        s.Weights.Catalyst,
		"sentiment":       s.Weights.Sentiment,
		"options":         s.Weights.Options,
		"technical":       s.Weights.Technical,
	} {
		if w < 0 {
			return fmt.Errorf("%w: strategy %q weight %s is negative", models.ErrInvalidConfig, s.ID, name)
		}
	}
	if s.Tiers.TradeReady < s.Tiers.Watchlist {
		return fmt.Errorf("%w: strategy %q trade_ready threshold below watchlist", models.ErrInvalidConfig, s.ID)
	}
	if s.Guards.MinPrice <= 0 || s.Guards.MinDollarVolume <= 0 || s.Guards.MaxSpreadBps <= 0 {
		return fmt.Errorf("%w: strategy %q guards must be positive", models.ErrInvalidConfig, s.ID)
	}
	if s.UniverseCap <= 0 {
		return fmt.Errorf("%w: strategy %q universe_cap must be positive", models.ErrInvalidConfig, s.ID)
	}
	if s.EnrichmentConcurrency <= 0 {
		return fmt.Errorf("%w: strategy %q enrichment_concurrency must be positive", models.ErrInvalidConfig, s.ID)
	}
	if s.ElasticFloor < 0 {
		return fmt.Errorf("%w: strategy %q elastic_floor must not be negative", models.ErrInvalidConfig, s.ID)
	}
	return nil
}

// StrategySet is the loaded strategy registry.
type StrategySet struct {
	byID    map[string]Strategy
	defID   string
	ordered []string
}

// Get looks up a strategy by ID; empty ID resolves to the default.
func (ss *StrategySet) Get(id string) (Strategy, bool) {
	if id == "" {
		id = ss.defID
	}
	s, ok := ss.byID[id]
	return s, ok
}

// Default returns the default strategy.
func (ss *StrategySet) Default() Strategy {
	return ss.byID[ss.defID]
}

// IDs returns the strategy IDs in file order.
func (ss *StrategySet) IDs() []string {
	return append([]string(nil), ss.ordered...)
}

type strategyFile struct {
	Default    string     `yaml:"default"`
	Strategies []Strategy `yaml:"strategies"`
}

// LoadStrategies reads and validates the strategy file. Any invalid
// vector rejects the whole file.
func LoadStrategies(path string) (*StrategySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read strategies %s: %v", models.ErrInvalidConfig, path, err)
	}
	return ParseStrategies(data)
}

// ParseStrategies parses and validates strategy YAML.
func ParseStrategies(data []byte) (*StrategySet, error) {
	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse strategies: %v", models.ErrInvalidConfig, err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies defined", models.ErrInvalidConfig)
	}

	set := &StrategySet{byID: make(map[string]Strategy, len(file.Strategies))}
	for _, s := range file.Strategies {
		applyStrategyDefaults(&s)
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate strategy %q", models.ErrInvalidConfig, s.ID)
		}
		set.byID[s.ID] = s
		set.ordered = append(set.ordered, s.ID)
	}

	set.defID = file.Default
	if set.defID == "" {
		set.defID = set.ordered[0]
	}
	if _, ok := set.byID[set.defID]; !ok {
		return nil, fmt.Errorf("%w: default strategy %q not defined", models.ErrInvalidConfig, set.defID)
	}
	return set, nil
}

func applyStrategyDefaults(s *Strategy) {
	if s.Tiers.TradeReady == 0 {
		s.Tiers.TradeReady = 75
	}
	if s.Tiers.Watchlist == 0 {
		s.Tiers.Watchlist = 70
	}
	if s.Guards.MinPrice == 0 {
		s.Guards.MinPrice = 1.50
	}
	if s.Guards.MinDollarVolume == 0 {
		s.Guards.MinDollarVolume = 1_000_000
	}
	if s.Guards.MaxSpreadBps == 0 {
		s.Guards.MaxSpreadBps = 60
	}
	if s.UniverseCap == 0 {
		s.UniverseCap = 300
	}
	if s.EnrichmentConcurrency == 0 {
		s.EnrichmentConcurrency = 8
	}
	if s.ElasticFloor == 0 {
		s.ElasticFloor = 3
	}
}

// DefaultStrategy returns the built-in AlphaStack 4.1 configuration, used
// when no strategy file is supplied.
func DefaultStrategy() Strategy {
	s := Strategy{
		ID: DefaultStrategyID,
		Weights: Weights{
			VolumeMomentum: 0.30,
			Squeeze:        0.25,
			Catalyst:       0.20,
			Sentiment:      0.10,
			Options:        0.08,
			Technical:      0.07,
		},
	}
	applyStrategyDefaults(&s)
	return s
}

// DefaultStrategySet wraps DefaultStrategy in a single-entry registry.
func DefaultStrategySet() *StrategySet {
	s := DefaultStrategy()
	return &StrategySet{
		byID:    map[string]Strategy{s.ID: s},
		defID:   s.ID,
		ordered: []string{s.ID},
	}
}
