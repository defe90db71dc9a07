package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardianstack/guardian-engine/internal/api"
	"github.com/guardianstack/guardian-engine/internal/config"
	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/metrics"
	"github.com/guardianstack/guardian-engine/internal/notify"
	"github.com/guardianstack/guardian-engine/internal/recovery"
	"github.com/guardianstack/guardian-engine/internal/scheduler"
	"github.com/guardianstack/guardian-engine/internal/store"
	"github.com/guardianstack/guardian-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting guardian-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(context.Background(), cfg.Store.DSN)
		if err != nil {
			logger.Error("failed to open postgres store", slog.Any("error", err))
			os.Exit(1)
		}
		st = pg
	default:
		st = store.NewMemoryStore()
	}
	defer st.Close()

	catalog, err := recovery.LoadCatalog(cfg.Recovery.CatalogPath)
	if err != nil {
		logger.Error("failed to load strategy catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var executor recovery.ActionExecutor
	switch cfg.Recovery.Executor.Backend {
	case "http":
		httpExec, err := recovery.NewHTTPExecutor(cfg.Recovery.Executor.BaseURL, cfg.Recovery.Executor.Timeout)
		if err != nil {
			logger.Error("failed to build remediation client", slog.Any("error", err))
			os.Exit(1)
		}
		executor = httpExec
	default:
		executor = recovery.NewSimulatedExecutor(cfg.Recovery.Executor.SuccessRate, cfg.Recovery.Executor.Delay, logger)
	}

	var notifier notify.Notifier
	switch cfg.Notify.Backend {
	case "webhook":
		webhook, err := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		if err != nil {
			logger.Error("failed to build webhook notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = webhook
	default:
		notifier = notify.NewLogNotifier(logger)
	}

	lifecycle := incidents.NewLifecycle(st, notifier, logger)
	evaluator := incidents.NewEvaluator(cfg.Thresholds, st, lifecycle, logger)
	orchestrator := recovery.NewOrchestrator(st, lifecycle, catalog, executor, cfg.Recovery.ActionTimeout, logger)
	runner := recovery.NewRunner(orchestrator, cfg.Recovery.MaxConcurrent, logger)

	handlers := api.NewHandlers(st, evaluator, lifecycle, orchestrator, runner, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	probe, err := api.NewProbeServer(cfg.Server.ProbeAddress, st)
	if err != nil {
		logger.Error("failed to create probe server", slog.Any("error", err))
		os.Exit(1)
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
		logger.Info("probe server listening", slog.String("address", probe.Address()))
		if serveErr := probe.Start(); serveErr != nil {
			logger.Error("probe server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if cfg.Monitor.Enabled {
		monitor := scheduler.NewMonitor(scheduler.NewSimulatedSource(), evaluator, runner, cfg.Monitor.Targets, cfg.Monitor.Interval, logger)
		go func() {
			if runErr := monitor.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Error("monitor exited", slog.Any("error", runErr))
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	probe.Shutdown(shutdownCtx)

	// Let in-flight recovery attempts settle before the store closes.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("recovery runner drain interrupted", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("guardian-engine stopped")
}
