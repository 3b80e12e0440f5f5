package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reportbatch/internal/batch"
	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
	"reportbatch/internal/report"
	"reportbatch/internal/storage"
)

// Job and step names as recorded in the job repository and dead letters.
const (
	ReportJobName      = "monthly-report"
	ReportStepName     = "reportStep"
	DeadLetterJobName  = "dead-letter-recovery"
	DeadLetterStepName = "deadLetterRecoveryStep"
)

// ErrBatchRunFailed is the only error callers of a job trigger see. The
// cause is logged.
var ErrBatchRunFailed = errors.New("batch run failed")

// Store is everything the report jobs persist to.
type Store interface {
	UserDirectory
	ReportStore
	DeadLetterStore
	batch.JobRepository
}

// ReportServiceConfig configures a ReportService. Zero limits take the
// batch package defaults.
type ReportServiceConfig struct {
	Store      Store
	Publisher  ReportPublisher
	Metrics    batch.Metrics
	Logger     *slog.Logger
	Clock      core.Clock
	ChunkSize  int
	RetryLimit int
	SkipLimit  int
	Backoff    time.Duration
}

func (c ReportServiceConfig) withDefaults() ReportServiceConfig {
	if c.Metrics == nil {
		c.Metrics = batch.NopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = core.SystemClock{}
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = batch.DefaultChunkSize
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = batch.DefaultRetryLimit
	}
	if c.SkipLimit <= 0 {
		c.SkipLimit = batch.DefaultSkipLimit
	}
	return c
}

// ReportService builds and launches the monthly report job and the
// dead-letter recovery job.
type ReportService struct {
	cfg      ReportServiceConfig
	launcher *batch.Launcher
	sink     *ReportSink
}

func NewReportService(cfg ReportServiceConfig) *ReportService {
	cfg = cfg.withDefaults()
	return &ReportService{
		cfg: cfg,
		launcher: batch.NewLauncher(batch.LauncherConfig{
			Repository: cfg.Store,
			Clock:      cfg.Clock,
			Metrics:    cfg.Metrics,
			Logger:     cfg.Logger,
		}),
		sink: NewReportSink(cfg.Store, cfg.Publisher, cfg.Logger),
	}
}

// ClassifyError maps storage and payload errors to fault tolerance actions.
func ClassifyError(err error) batch.Action {
	switch {
	case errors.Is(err, storage.ErrTransient):
		return batch.ActionRetry
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, core.ErrMalformedPayload):
		return batch.ActionSkip
	default:
		return batch.ActionFatal
	}
}

// RunReportJob runs the report job for the months before now.
func (s *ReportService) RunReportJob(ctx context.Context) error {
	_, err := s.RunReportJobAt(ctx, s.cfg.Clock.Now())
	return err
}

// RunReportJobAt runs the report job as if launched at now: the window and
// the compared months are those preceding now's month.
func (s *ReportService) RunReportJobAt(ctx context.Context, now time.Time) (*batch.JobExecution, error) {
	window := report.WindowAt(now)
	engine := report.NewEngine(core.FixedClock(now))

	step := batch.NewChunkStep(batch.ChunkStepConfig[core.UserReportInput, core.CategoryComparisonResult]{
		Name:   ReportStepName,
		Reader: NewUserReportSource(s.cfg.Store, window),
		Processor: batch.ProcessorFunc[core.UserReportInput, core.CategoryComparisonResult](
			func(_ context.Context, in core.UserReportInput) (core.CategoryComparisonResult, error) {
				return engine.Compare(in)
			}),
		Writer:       batch.WriterFunc[core.CategoryComparisonResult](s.sink.Write),
		ChunkSize:    s.cfg.ChunkSize,
		Policy:       s.reportPolicy(),
		SkipListener: NewDeadLetterSkipListener(s.cfg.Store, ReportStepName, s.cfg.Logger),
		ItemContext:  withUserID,
		Metrics:      s.cfg.Metrics,
		Logger:       s.cfg.Logger,
		Clock:        s.cfg.Clock,
	})

	job := batch.Job{Name: ReportJobName, Steps: []batch.Step{step}}
	return s.launch(ctx, job, window.Key())
}

func withUserID(ctx context.Context, in core.UserReportInput) context.Context {
	return applog.WithUserID(ctx, in.UserID)
}

func (s *ReportService) reportPolicy() batch.Policy {
	policy := batch.FaultTolerant(ClassifyError)
	policy.RetryLimit = s.cfg.RetryLimit
	policy.SkipLimit = s.cfg.SkipLimit
	policy.Backoff = s.cfg.Backoff
	return policy
}

// RunDeadLetterJob replays every stored dead letter.
func (s *ReportService) RunDeadLetterJob(ctx context.Context) error {
	_, err := s.RunDeadLetterJobAt(ctx, s.cfg.Clock.Now())
	return err
}

// RunDeadLetterJobAt replays dead letters. Each is compared for the month
// stored with it; payloads without one are compared as if run at now.
// Every launch is a new job instance; the first failure aborts it.
func (s *ReportService) RunDeadLetterJobAt(ctx context.Context, now time.Time) (*batch.JobExecution, error) {
	recovery := NewDeadLetterRecovery(s.sink, s.cfg.Store, s.cfg.Logger)

	step := batch.NewChunkStep(batch.ChunkStepConfig[core.DeadLetterItem, core.DeadLetterResult]{
		Name:      DeadLetterStepName,
		Reader:    NewDeadLetterReader(s.cfg.Store, s.cfg.Logger),
		Processor: NewDeadLetterProcessor(s.cfg.Store, report.NewEngine(core.FixedClock(now))),
		Writer:    recovery,
		ChunkSize: s.cfg.ChunkSize,
		Policy:    batch.Strict(),
		Listeners: []batch.StepListener{recovery},
		Metrics:   s.cfg.Metrics,
		Logger:    s.cfg.Logger,
		Clock:     s.cfg.Clock,
	})

	job := batch.Job{Name: DeadLetterJobName, Steps: []batch.Step{step}}
	key := fmt.Sprintf("launched=%s,run=%s", now.UTC().Format(time.RFC3339Nano), uuid.NewString())
	return s.launch(ctx, job, key)
}

func (s *ReportService) launch(ctx context.Context, job batch.Job, key string) (*batch.JobExecution, error) {
	exec, err := s.launcher.Run(ctx, job, key)
	if err != nil {
		s.cfg.Logger.ErrorContext(ctx, "Batch run failed",
			applog.NewFields().
				WithComponent(applog.ComponentReport).
				WithOperation(applog.OpTrigger).
				WithError(err).
				ToSlice()...)
		return exec, ErrBatchRunFailed
	}
	return exec, nil
}
