package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amc-trader/discovery/internal/calendar"
	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/pipeline"
	"github.com/amc-trader/discovery/internal/provider/polygon"
)

// stdoutPublisher captures the run output instead of writing Redis, for
// one-shot scans.
type stdoutPublisher struct {
	list  []models.Candidate
	stats map[string]int
}

func (p *stdoutPublisher) Publish(_ context.Context, _ string, list []models.Candidate) error {
	p.list = list
	return nil
}

func (p *stdoutPublisher) PublishStats(_ context.Context, _ string, stats map[string]int) error {
	p.stats = stats
	return nil
}

func newScanCmd() *cobra.Command {
	var (
		strategyID string
		timeout    time.Duration
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery pass and print the contender list as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.Context(), strategyID, timeout, limit)
		},
	}
	cmd.Flags().StringVar(&strategyID, "strategy", "", "strategy ID (default: configured default)")
	cmd.Flags().DurationVar(&timeout, "timeout", 300*time.Second, "run deadline")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the printed list (0 = all)")
	return cmd
}

func runScan(parent context.Context, strategyID string, timeout time.Duration, limit int) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	strategies, err := loadStrategies(cfg)
	if err != nil {
		return err
	}
	strategy, ok := strategies.Get(strategyID)
	if !ok {
		return fmt.Errorf("%w: unknown strategy %q", models.ErrInvalidConfig, strategyID)
	}
	cal, err := calendar.NewUSEquity()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	pub := &stdoutPublisher{}
	orch := pipeline.New(polygon.New(cfg.Provider, nil), pub, cal)
	res, err := orch.Run(ctx, strategy, limit, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Strategy   string             `json:"strategy"`
		Stale      bool               `json:"stale"`
		Regime     string             `json:"regime"`
		Rejections map[string]int     `json:"rejections"`
		Candidates []models.Candidate `json:"candidates"`
	}{
		Strategy:   strategy.ID,
		Stale:      res.Stale,
		Regime:     res.Regime.String(),
		Rejections: res.Rejections,
		Candidates: res.Candidates,
	})
}
