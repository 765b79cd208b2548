package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/woxQAQ/bindgen-host/internal/bindgen"
	"github.com/woxQAQ/bindgen-host/internal/bundle"
	"github.com/woxQAQ/bindgen-host/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	bundleName := flag.String("bundle", "", "Name of the bundle to start")
	moduleURL := flag.String("url", "", "Fetch and start a module from this URL instead of a bundle")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadRunnerConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting wbgrun",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	if (*bundleName == "") == (*moduleURL == "") {
		logger.Fatal("Exactly one of -bundle or -url is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = serveMetrics(cfg.Metrics, reg, logger)
	}

	manager := bundle.NewManager(cfg, reg, logger)

	var b *bindgen.Boundary
	if *moduleURL != "" {
		b, err = manager.StartURL(ctx, *moduleURL)
	} else {
		if err := manager.LoadAll(ctx); err != nil {
			logger.Fatal("Failed to load bundles", zap.Error(err))
		}
		b, err = manager.Start(ctx, *bundleName)
	}
	if err != nil {
		logger.Fatal("Failed to start guest", zap.Error(err))
	}

	runCtx := ctx
	if cfg.RunTimeout > 0 {
		var runCancel context.CancelFunc
		runCtx, runCancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer runCancel()
	}

	if err := b.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Event loop error", zap.Error(err))
	}

	for _, entry := range b.Window().Console().Entries() {
		logger.Debug("Console output",
			zap.String("level", entry.Level),
			zap.String("message", entry.Message),
		)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down guests", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	logger.Info("Runner shutdown complete")
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := cfg.Build()
	return logger
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics",
			zap.String("addr", cfg.Addr),
			zap.String("path", cfg.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return srv
}
