package main

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/amc-trader/discovery/internal/models"
)

const (
	appName = "discovery"
	version = "v2.0.0"
)

// Exit codes contract: 0 success, 2 invalid config, 3 provider
// unavailable, 4 run timeout.
const (
	exitOK            = 0
	exitGeneric       = 1
	exitInvalidConfig = 2
	exitProviderDown  = 3
	exitRunTimeout    = 4
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "AMC-TRADER stock discovery service",
		Version: version,
		Long: `AMC-TRADER discovery scans the US equity universe, scores survivors
with the AlphaStack 4.1 composite and publishes action-tagged contender
lists to Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if level, err := zerolog.ParseLevel(flagLogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newHealthCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg(appName + " failed")
		os.Exit(exitCode(err))
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrInvalidConfig):
		return exitInvalidConfig
	case errors.Is(err, models.ErrProviderUnavailable):
		return exitProviderDown
	case errors.Is(err, models.ErrRunTimeout):
		return exitRunTimeout
	default:
		return exitGeneric
	}
}
