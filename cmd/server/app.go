package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/RegiDesk/internal/api"
	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/database"
	"github.com/dharsanguruparan/RegiDesk/internal/documents"
	"github.com/dharsanguruparan/RegiDesk/internal/intake"
	"github.com/dharsanguruparan/RegiDesk/internal/ledger"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/notify"
	pdfutil "github.com/dharsanguruparan/RegiDesk/internal/pdf"
	"github.com/dharsanguruparan/RegiDesk/internal/processing"
	"github.com/dharsanguruparan/RegiDesk/internal/ratelimit"
	"github.com/dharsanguruparan/RegiDesk/internal/render"
	"github.com/dharsanguruparan/RegiDesk/internal/repository"
	"github.com/dharsanguruparan/RegiDesk/internal/s3storage"
	"github.com/dharsanguruparan/RegiDesk/internal/schedule"
	"github.com/dharsanguruparan/RegiDesk/internal/signing"
	"github.com/dharsanguruparan/RegiDesk/internal/storage"
	"github.com/dharsanguruparan/RegiDesk/internal/tracing"
)

const (
	templateDebounce = 250 * time.Millisecond
	backgroundJobTTL = 30 * time.Second
)

// app holds every long-lived component so shutdown can run in order.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	tracing   *tracing.Provider
	printer   *pdfutil.ChromePrinter
	watcher   *render.Watcher
	pool      *processing.Processor
	db        *pgxpool.Pool
	redis     *redis.Client
	batch     *batch.Accumulator
	scheduler schedule.Scheduler
	api       *api.Server
}

func build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	tracer := a.tracing.Tracer()
	if a.tracing.Enabled() {
		logger.Info("tracing enabled", "exporter", cfg.Tracing.Exporter)
	}

	renderer := render.New(cfg.TemplateDir)
	if cfg.TemplateDir != "" {
		a.watcher, err = render.NewWatcher(renderer, cfg.TemplateDir, templateDebounce, logger.With("component", "templates"))
		if err != nil {
			return nil, err
		}
	}
	a.printer = pdfutil.NewChromePrinter(cfg.PDF.ChromePath, cfg.PDF.Timeout, cfg.Workers)
	producer, err := documents.NewProducer(renderer, a.printer, cfg.OutputDir, loc)
	if err != nil {
		return nil, err
	}
	store, err := ledger.NewStore(cfg.LedgerPath, loc)
	if err != nil {
		return nil, err
	}

	transport, err := notify.NewSMTPTransport(cfg.SMTP)
	if err != nil {
		return nil, err
	}
	applicant := notify.NewApplicantNotifier(transport, cfg.Mail.ApplicantName, cfg.Mail.ApplicantSubject)
	staff := notify.NewStaffNotifier(transport, cfg.Mail.StaffSenderName, cfg.Mail.StaffRecipient, loc)

	a.pool = processing.New(cfg.Workers, backgroundJobTTL, logger.With("component", "jobs"))
	history := storage.NewHistoryStore(storage.DefaultHistorySize)

	batchOpts := []batch.Option{
		batch.WithLogger(logger.With("component", "batch")),
		batch.WithTracer(tracer),
		batch.WithHook(history.Hook),
	}
	intakeOpts := []intake.Option{
		intake.WithLogger(logger.With("component", "intake")),
		intake.WithTracer(tracer),
	}

	var audit *repository.AuditRepository
	if cfg.DatabaseURL != "" {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		a.db, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		audit = repository.NewAuditRepository(a.db)
		batchOpts = append(batchOpts, batch.WithHook(a.recordFlush(audit)))
		intakeOpts = append(intakeOpts, intake.WithObserver(a.recordSubmission(audit)))
	}

	var archive *s3storage.Storage
	if cfg.S3.Endpoint != "" {
		archive, err = s3storage.New(cfg.S3)
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		batchOpts = append(batchOpts, batch.WithHook(a.archiveLedger(archive)))
		intakeOpts = append(intakeOpts, intake.WithObserver(a.archiveArtifacts(archive)))
	}

	a.batch = batch.New(staff, store, batchOpts...)
	service := intake.NewService(producer, store, applicant, a.batch, intakeOpts...)

	plan, err := schedule.NewPlan(cfg.Flush.Times, loc)
	if err != nil {
		return nil, err
	}
	switch cfg.Flush.Backend {
	case config.BackendAsynq:
		a.scheduler, err = schedule.NewAsynq(plan, asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, a.batch, logger.With("component", "schedule"))
	default:
		a.scheduler, err = schedule.NewCron(plan, a.batch, logger.With("component", "schedule"), cfg.Flush.Timeout)
	}
	if err != nil {
		return nil, err
	}

	deps := api.Deps{
		Intake:   service,
		Batch:    a.batch,
		Ledger:   store,
		History:  history,
		Schedule: plan,
		Tracer:   tracer,
		Logger:   logger,
	}
	switch cfg.RateLimit.Backend {
	case config.LimiterMemory:
		deps.Limiter = ratelimit.NewMemoryLimiter()
	case config.LimiterRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		deps.Limiter = ratelimit.NewRedisLimiter(a.redis)
	}
	if cfg.Admin.Secret != "" {
		deps.Signer = signing.NewSigner([]byte(cfg.Admin.Secret), cfg.Admin.TokenTTL)
	}
	if audit != nil {
		deps.Audit = audit
	}
	if archive != nil {
		deps.Archive = archive
	}
	a.api = api.New(cfg, deps)
	return a, nil
}

func (a *app) start() error {
	a.pool.Start()
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start flush schedule: %w", err)
	}
	for _, next := range a.scheduler.Next(time.Now()) {
		a.logger.Info("flush scheduled", "at", next.Format(time.RFC1123))
	}
	return nil
}

// close stops components in dependency order: no new scheduled drains, then
// the optional final drain, then background jobs, then infrastructure.
func (a *app) close(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("stop schedule", "err", err)
		}
	}
	if a.batch != nil {
		if err := a.batch.Shutdown(ctx, a.cfg.Flush.OnShutdown); err != nil {
			a.logger.Error("final flush failed", "err", err)
		}
	}
	if a.pool != nil {
		if err := a.pool.Stop(ctx); err != nil {
			a.logger.Warn("background jobs did not finish", "err", err)
		}
	}
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.printer != nil {
		a.printer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("flush spans", "err", err)
		}
	}
}

// The hooks and observers below hand their work to the background pool so
// neither the request path nor a drain waits on the database or the archive.

func (a *app) recordSubmission(repo *repository.AuditRepository) intake.Observer {
	return func(_ context.Context, rec model.SubmissionRecord, r intake.Receipt) {
		row := repository.SubmissionRow{
			ID:              r.SubmissionID,
			ApplicantName:   rec.ApplicantName,
			Email:           rec.Email,
			CourseName:      rec.CourseName,
			CertificatePath: r.Certificate.Path,
			ApplicationPath: r.ApplicationForm.Path,
			SubmittedAt:     r.SubmittedAt,
		}
		if r.ConfirmationErr != nil {
			msg := r.ConfirmationErr.Error()
			row.ConfirmationError = &msg
		}
		a.submit("audit submission", func(ctx context.Context) error {
			return repo.RecordSubmission(ctx, row)
		})
	}
}

func (a *app) recordFlush(repo *repository.AuditRepository) batch.Hook {
	return func(_ context.Context, rep batch.Report, _ model.Batch) {
		a.submit("audit flush", func(ctx context.Context) error {
			return repo.RecordFlush(ctx, rep)
		})
	}
}

func (a *app) archiveArtifacts(s *s3storage.Storage) intake.Observer {
	return func(_ context.Context, _ model.SubmissionRecord, r intake.Receipt) {
		for _, ref := range []model.ArtifactRef{r.Certificate, r.ApplicationForm} {
			a.submit("archive artifact", func(ctx context.Context) error {
				_, err := s.ArchiveArtifact(ctx, ref)
				return err
			})
		}
	}
}

func (a *app) archiveLedger(s *s3storage.Storage) batch.Hook {
	return func(_ context.Context, rep batch.Report, b model.Batch) {
		if rep.Outcome != batch.OutcomeSent {
			return
		}
		a.submit("archive ledger", func(ctx context.Context) error {
			_, err := s.ArchiveLedger(ctx, rep.ID, b.Ledger)
			return err
		})
	}
}

func (a *app) submit(name string, run func(context.Context) error) {
	if !a.pool.Submit(processing.Job{Name: name, Run: run}) {
		a.logger.Warn("background queue full, job dropped", "job", name)
	}
}
