package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"reportbatch/internal/cli"
	apphttp "reportbatch/internal/http"
	applog "reportbatch/internal/log"
	"reportbatch/internal/metrics"
	"reportbatch/internal/scheduler"
	"reportbatch/internal/services"
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	if err := cfg.ValidateServer(); err != nil {
		bootLogger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting report-worker",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"driver", cfg.DBDriver,
		"schedule_enabled", cfg.ScheduleEnabled)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	// Executions left RUNNING by a crashed process would block their key forever.
	abandoned, err := be.Store.AbandonRunningExecutions(ctx)
	if err != nil {
		logger.Error("Failed to abandon stale executions", "error", err)
		os.Exit(1)
	}
	if abandoned > 0 {
		logger.Warn("Abandoned stale job executions", "count", abandoned)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := services.NewReportService(services.ReportServiceConfig{
		Store:      be.Store,
		Publisher:  be.Publisher,
		Metrics:    metrics.New(registry),
		Logger:     logger,
		ChunkSize:  cfg.ChunkSize,
		RetryLimit: cfg.RetryLimit,
		SkipLimit:  cfg.SkipLimit,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Config{
		Runner:     svc,
		AdminToken: cfg.AdminToken,
		Store:      be.Store,
		Gatherer:   registry,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.ScheduleEnabled {
		sched := scheduler.New(scheduler.Config{
			Job:    svc.RunReportJob,
			Logger: logger,
		})
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("report-worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("report-worker stopped", applog.FieldOperation, applog.OpShutdown)
}
