package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vigil-sys/vigil/internal/api"
	"github.com/vigil-sys/vigil/internal/config"
	"github.com/vigil-sys/vigil/internal/correlation"
	"github.com/vigil-sys/vigil/internal/engine"
	"github.com/vigil-sys/vigil/internal/metrics"
	"github.com/vigil-sys/vigil/internal/rules"
	"github.com/vigil-sys/vigil/internal/telemetry"
	"github.com/vigil-sys/vigil/internal/temporal"
	"github.com/vigil-sys/vigil/internal/utils"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "vigild",
		Short:        "System health assessment daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to configuration file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting vigild",
		slog.String("api_address", cfg.Server.APIAddress),
		slog.Duration("cycle_interval", cfg.Cycle.Interval))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return err
	}

	store, err := temporal.OpenStore(cfg.History.Path, logger)
	if err != nil {
		logger.Warn("observation store unavailable, trends reset on restart", slog.Any("error", err))
		store = nil
	} else {
		defer store.Close()
	}

	analyzer := temporal.NewAnalyzer(temporal.Config{
		Retention: cfg.History.Retention,
	}, logger)
	if store != nil {
		issues, metricPoints, err := store.Load(time.Now().UTC().Add(-cfg.History.Retention))
		if err != nil {
			logger.Warn("failed to load observation history", slog.Any("error", err))
		} else {
			analyzer.Seed(issues, metricPoints)
		}
	}

	evaluator := rules.NewEvaluator(cfg.Thresholds, logger)
	correlator := correlation.NewEngine(correlation.Config{
		MinConfidence:          cfg.Correlation.MinConfidence,
		SingleSignalConfidence: cfg.Correlation.SingleSignalConfidence,
		MaxTracked:             cfg.Correlation.MaxTracked,
	}, logger)

	var history engine.HistoryStore
	if store != nil {
		history = store
	}
	orchestrator := engine.NewOrchestrator(logger, evaluator, correlator, analyzer, history, cfg.History.Retention)
	publisher := engine.NewPublisher()
	collector := telemetry.NewSystemCollector(logger)
	detector := telemetry.NewDetector()

	handler := api.NewHandler(publisher, cfg.Display, logger)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create API server", slog.Any("error", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("API server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("API server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go runCycles(ctx, cfg, logger, orchestrator, publisher, collector, detector)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("vigild stopped")
	return nil
}

// runCycles drives the assessment loop. A cycle that overruns the deadline
// causes the next tick to be skipped instead of queueing behind it.
func runCycles(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	orchestrator *engine.Orchestrator,
	publisher *engine.Publisher,
	collector telemetry.Collector,
	detector *telemetry.Detector,
) {
	tracker := utils.NewLatencyTracker(256)
	runOnce := func() time.Duration {
		started := time.Now()
		snap := collector.Collect(ctx)
		raw := detector.Detect(snap)
		assessment := orchestrator.RunCycle(snap, raw)
		publisher.Publish(assessment)
		metrics.PublishAssessment(assessment)

		elapsed := time.Since(started)
		tracker.Observe(elapsed)
		metrics.ObserveCycle(elapsed)
		if elapsed > cfg.Cycle.Deadline {
			logger.Warn("cycle overran deadline",
				slog.Duration("elapsed", elapsed),
				slog.Duration("deadline", cfg.Cycle.Deadline),
				slog.Duration("p95", tracker.Percentile(95)))
		}
		return elapsed
	}

	runOnce()

	ticker := time.NewTicker(cfg.Cycle.Interval)
	defer ticker.Stop()

	skipNext := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if skipNext {
				skipNext = false
				metrics.CycleSkipped()
				logger.Warn("skipping tick after overrun")
				continue
			}
			if runOnce() > cfg.Cycle.Interval {
				skipNext = true
			}
		}
	}
}
