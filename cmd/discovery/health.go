package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amc-trader/discovery/internal/cache"
	"github.com/amc-trader/discovery/internal/config"
	"github.com/amc-trader/discovery/internal/models"
	"github.com/amc-trader/discovery/internal/provider/polygon"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe upstream provider and cache reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context())
		},
	}
}

func runHealth(parent context.Context) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, 15*time.Second)
	defer cancel()

	report := map[string]string{"provider": "up", "cache": "up"}
	var firstErr error

	client := polygon.New(cfg.Provider, nil)
	if err := client.Health(ctx); err != nil {
		report["provider"] = err.Error()
		firstErr = fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	contenders := cache.Connect(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.TTL, config.DefaultStrategyID)
	if err := contenders.Ping(ctx); err != nil {
		report["cache"] = err.Error()
		if firstErr == nil {
			firstErr = err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return firstErr
}
