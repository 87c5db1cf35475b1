package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"verity-health/outpost/pkg/audit"
	"verity-health/outpost/pkg/cli"
	"verity-health/outpost/pkg/cloud"
	"verity-health/outpost/pkg/config"
	"verity-health/outpost/pkg/patientcache"
	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/rules/bundle"
	"verity-health/outpost/pkg/rules/engine"
	"verity-health/outpost/pkg/server"
	"verity-health/outpost/pkg/store"
	outpostsync "verity-health/outpost/pkg/sync"
	"verity-health/outpost/pkg/sync/distributor"
	"verity-health/outpost/pkg/sync/monitor"
	"verity-health/outpost/pkg/sync/queue"
	"verity-health/outpost/pkg/telemetry/health"
	"verity-health/outpost/pkg/telemetry/logging"
	"verity-health/outpost/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Outpost edge node",
	Long: `Start the Outpost edge node with the specified configuration.

The node serves the local evaluation API, keeps its rule set current
via the control plane, and queues assurance events for delivery.

Examples:
  # Start with default config
  outpost run

  # Start with custom config
  outpost run --config /etc/outpost/config.yaml

  # Override listen address
  outpost run --listen 0.0.0.0:8180

  # Validate config without starting the node
  outpost run --dry-run`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the node")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.Setup(&cfg.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Outpost v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Durable store. Everything outbound lives here until delivered.
	storeConfig := store.DefaultSQLiteConfig()
	storeConfig.Path = cfg.Store.Path
	storeConfig.BusyTimeout = cfg.Store.BusyTimeout
	st, err := store.NewSQLite(storeConfig)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	fmt.Printf("✓ Store opened (%s)\n", cfg.Store.Path)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Metrics, nil)
	}

	// Control-plane client, shared by the prober, the rule poller and
	// the queue deliverer.
	cloudClient := cloud.NewClient(cloud.Config{
		BaseURL:        cfg.Cloud.BaseURL,
		ClinicID:       cfg.Node.ClinicID,
		PollTimeout:    cfg.Cloud.PollTimeout,
		ProbeTimeout:   cfg.Cloud.ProbeTimeout,
		DeliverTimeout: cfg.Cloud.DeliverTimeout,
	}, nil)

	holder := rules.NewSnapshotHolder()
	mon := monitor.New(cloudClient, st)

	var distMetrics distributor.Metrics
	var queueMetrics queue.Metrics
	if collector != nil {
		distMetrics = collector.Sync
		queueMetrics = collector.Queue
	}
	dist := distributor.New(st, cloudClient, holder, mon, distMetrics)
	drainer := queue.NewDrainer(st, cloudClient, queueMetrics)

	checker := health.New(0)
	checker.Register("store", st.Ping)

	var purger outpostsync.Purger
	if cfg.PatientCache.Enabled {
		cache, err := patientcache.New(patientcache.Config{
			DBPath:     cfg.PatientCache.Path,
			DefaultTTL: cfg.PatientCache.DefaultTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to open patient cache: %w", err)
		}
		defer cache.Close()
		purger = cache
		checker.Register("patient_cache", cache.Ping)
		fmt.Printf("✓ Patient cache opened (%s)\n", cfg.PatientCache.Path)
	}

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		var auditMetrics audit.Metrics
		if collector != nil {
			auditMetrics = collector.Queue
		}
		recorder = audit.NewRecorderWithMetrics(st, &audit.Config{
			Enabled:      true,
			AsyncBuffer:  cfg.Audit.Buffer,
			WriteTimeout: cfg.Audit.WriteTimeout,
		}, auditMetrics)
		defer recorder.Close()
	}

	orchestrator := outpostsync.NewOrchestrator(
		st, mon, dist, drainer, purger, holder,
		outpostsync.Schedules{
			Probe: cfg.Sync.ProbeInterval,
			Poll:  cfg.Sync.PollInterval,
			Drain: cfg.Sync.DrainInterval,
			Purge: cfg.Sync.PurgeInterval,
		},
		cfg.Cloud.BaseURL, cfg.Node.ClinicID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync orchestrator: %w", err)
	}
	defer orchestrator.Stop()
	fmt.Println("✓ Sync orchestrator started")

	if cfg.Bundle.Enabled {
		watcher, err := bundle.NewWatcher(cfg.Bundle.Path, dist)
		if err != nil {
			return fmt.Errorf("failed to watch bundle path: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("bundle watcher stopped", "error", err)
			}
		}()
		fmt.Printf("✓ Bundle watcher started (%s)\n", cfg.Bundle.Path)
	}

	srv := server.New(&cfg.Server, cfg.Metrics.Path, server.Deps{
		Holder:    holder,
		Evaluator: engine.NewEvaluator(nil),
		Store:     st,
		Recorder:  recorder,
		Status:    orchestrator,
		Reloader:  dist,
		Metrics:   collector,
		Health:    checker,
	})

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "address", cfg.Server.ListenAddress)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Node listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Node stopped")
		return nil
	}
}
