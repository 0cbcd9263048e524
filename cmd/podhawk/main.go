package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/sycured/podhawk/internal/config"
	"github.com/sycured/podhawk/internal/dockerapi"
	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/metrics"
	"github.com/sycured/podhawk/internal/podman"
	"github.com/sycured/podhawk/internal/registry"
	"github.com/sycured/podhawk/internal/runtime"
	"github.com/sycured/podhawk/internal/state"
	"github.com/sycured/podhawk/internal/updater"
)

func main() {
	cfgFile := flag.String("config", "", "Path to config file")
	dryRun := flag.Bool("dry-run", false, "detect updates but do not apply them")
	flag.Parse()

	cfg := config.DefaultConfig()
	// load from file if provided (overrides defaults)
	if *cfgFile != "" {
		c, err := config.LoadConfigFromFile(*cfgFile)
		if err != nil {
			log.Fatalf("failed loading config: %v", err)
		}
		cfg = c
	}

	// apply env var overrides (overrides file/defaults)
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}

	// CLI flags have highest precedence
	if *dryRun {
		cfg.DryRun = true
	}

	cleanup, err := logging.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	for _, warning := range cfg.Validate() {
		logging.Get().Warn().Msg(warning)
	}

	initMetrics(cfg)

	journal := state.NewJournal(cfg.StateDir)
	updater.WarnLeftoverSwaps(journal)

	rt := createRuntimeOrFatal(cfg)
	runner := updater.NewRunner(cfg, rt, registry.NewResolver(), registry.NewChecker(), journal)

	msg := runner.Run(context.Background())
	logging.Get().Info().Msg(msg)
	// plain return keeps the deferred logger cleanup running; every
	// termination path exits zero with the outcome on stdout
	fmt.Println(msg)
}

// initMetrics starts the optional metrics server
func initMetrics(cfg *config.Config) {
	if !cfg.MetricsEnabled {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.PromHandler())
		mux.Handle("/status", metrics.JSONHandler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
		_ = http.ListenAndServe(addr, mux)
	}()
}

func createRuntimeOrFatal(cfg *config.Config) runtime.Runtime {
	switch cfg.RuntimeMode {
	case config.RuntimeModeAPI:
		cli, err := dockerapi.NewClient()
		if err != nil {
			logging.Get().Fatal().Err(err).Msg("failed to create engine API client")
		}
		return cli
	default:
		return podman.New(cfg.PodmanPath)
	}
}
