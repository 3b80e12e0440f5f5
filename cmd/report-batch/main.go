// Command report-batch runs one batch job to completion and exits.
// It exits non-zero when the run fails. With -job reports it lists the
// stored reports of one user instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"reportbatch/internal/batch"
	"reportbatch/internal/cli"
	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
	"reportbatch/internal/services"
	"reportbatch/internal/storage"
)

func main() {
	job := flag.String("job", "report", "job to run: report, dead-letter, or reports to list a user's reports")
	userID := flag.Int64("user", 0, "user whose reports -job reports lists")
	month := flag.String("month", "", "run as if launched at the start of this month (YYYY-MM); defaults to now")
	flag.Parse()

	cli.LoadEnvFile()
	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	now := time.Now().UTC()
	if *month != "" {
		at, err := core.ParseMonth(*month)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -month %q: expected YYYY-MM\n", *month)
			os.Exit(2)
		}
		now = at
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)

	if *job == "reports" {
		code := listReports(ctx, logger, be.Store, *userID)
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
		os.Exit(code)
	}

	svc := services.NewReportService(services.ReportServiceConfig{
		Store:      be.Store,
		Publisher:  be.Publisher,
		Logger:     logger,
		ChunkSize:  cfg.ChunkSize,
		RetryLimit: cfg.RetryLimit,
		SkipLimit:  cfg.SkipLimit,
	})

	var (
		exec *batch.JobExecution
		err  error
	)
	switch *job {
	case "report":
		exec, err = svc.RunReportJobAt(ctx, now)
	case "dead-letter":
		exec, err = svc.RunDeadLetterJobAt(ctx, now)
	default:
		fmt.Fprintf(os.Stderr, "unknown -job %q: expected report, dead-letter or reports\n", *job)
		_ = be.Cleanup()
		os.Exit(2)
	}

	if exec != nil {
		for _, step := range exec.Steps {
			logger.Info("Step finished",
				applog.FieldJob, exec.JobName,
				"step", step.StepName,
				"status", step.Status,
				"read", step.ReadCount,
				"written", step.WriteCount,
				"skipped", step.SkipCount(),
				"commits", step.CommitCount,
				"rollbacks", step.RollbackCount)
		}
	}

	if cleanupErr := be.Cleanup(); cleanupErr != nil {
		logger.Error("Backend cleanup failed", "error", cleanupErr)
	}
	if err != nil {
		logger.Error("Batch run failed", applog.FieldJob, *job)
		os.Exit(1)
	}
	logger.Info("Batch run completed", applog.FieldJob, *job, "status", exec.Status)
}

func listReports(ctx context.Context, logger *slog.Logger, store *storage.Repository, userID int64) int {
	if userID <= 0 {
		fmt.Fprintln(os.Stderr, "-job reports requires -user")
		return 2
	}
	reports, err := store.ListReportsByUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to list reports", "error", err, applog.FieldUserID, userID)
		return 1
	}
	for _, r := range reports {
		fmt.Printf("== %s (created %s)\n%s\n\n",
			r.ReportMonth.Format(core.MonthLayout), r.CreatedAt.Format(time.RFC3339), r.ReportMessage)
	}
	logger.Info("Reports listed", applog.FieldUserID, userID, "count", len(reports))
	return 0
}
