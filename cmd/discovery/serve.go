package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amc-trader/discovery/internal/cache"
	"github.com/amc-trader/discovery/internal/calendar"
	"github.com/amc-trader/discovery/internal/config"
	httpiface "github.com/amc-trader/discovery/internal/interfaces/http"
	"github.com/amc-trader/discovery/internal/interfaces/http/handlers"
	"github.com/amc-trader/discovery/internal/jobs"
	"github.com/amc-trader/discovery/internal/persistence/postgres"
	"github.com/amc-trader/discovery/internal/pipeline"
	"github.com/amc-trader/discovery/internal/provider"
	"github.com/amc-trader/discovery/internal/provider/polygon"
	"github.com/amc-trader/discovery/internal/scheduler"
)

const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery service (HTTP facade, job runner, scheduler)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent discovery runs")
	return cmd
}

func runServe(parent context.Context, workers int) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	strategies, err := loadStrategies(cfg)
	if err != nil {
		return err
	}
	cal, err := calendar.NewUSEquity()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store provider.VolumeStore
	var repo *postgres.VolumeRepo
	if cfg.Postgres.DSN != "" {
		repo, err = postgres.Connect(cfg.Postgres.DSN, cfg.Postgres.Timeout)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		store = repo
	} else {
		log.Warn().Msg("no postgres dsn; volume averages will not persist")
	}

	client := polygon.New(cfg.Provider, store)
	contenders := cache.Connect(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.TTL, strategies.Default().ID)

	orch := pipeline.New(client, contenders, cal)
	runner := jobs.NewRunner(orch, strategies, cfg.Runner.QueueSize, workers, cfg.Runner.RunTimeout)
	runner.Start(ctx)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(runner, strategies.IDs(), store, cal.Location())
		if err := sched.Schedule(cfg.Scheduler.Cron, cfg.Scheduler.PruneCron); err != nil {
			return err
		}
		sched.Start()
	}

	h := handlers.New(runner, contenders, client, cal, strategies)
	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, h)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info().
		Strs("strategies", strategies.IDs()).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Bool("postgres", store != nil).
		Msg("discovery service up")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if sched != nil {
		sched.Stop()
	}
	runner.Wait()
	return nil
}

func loadStrategies(cfg *config.Config) (*config.StrategySet, error) {
	if cfg.StrategiesFile == "" {
		return config.DefaultStrategySet(), nil
	}
	return config.LoadStrategies(cfg.StrategiesFile)
}
