// Package intake runs one registration through its fixed pipeline:
// validate, certificate, application form, ledger, applicant confirmation,
// batch append. The first hard failure stops the pipeline; nothing already
// written is rolled back.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dharsanguruparan/RegiDesk/internal/logging"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/validate"
)

// Step names a pipeline stage.
type Step string

const (
	StepValidate        Step = "validate"
	StepCertificate     Step = "certificate"
	StepApplicationForm Step = "application_form"
	StepLedger          Step = "ledger"
	StepConfirmation    Step = "confirmation"
	StepBuffer          Step = "buffer"
)

// Cause is the machine readable failure class reported to clients.
type Cause string

const (
	CauseValidation  Cause = "validation_error"
	CauseRendering   Cause = "rendering_error"
	CausePersistence Cause = "persistence_error"
	CauseDelivery    Cause = "delivery_error"
)

// StepError is returned by Submit for every failure.
type StepError struct {
	Step         Step
	Cause        Cause
	SubmissionID string
	Err          error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("submission %s: %s failed (%s): %v", e.SubmissionID, e.Step, e.Cause, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CauseOf extracts the failure class of err, or "" when err did not come from
// Submit.
func CauseOf(err error) Cause {
	var se *StepError
	if errors.As(err, &se) {
		return se.Cause
	}
	return ""
}

// Producer renders one artifact for a record.
type Producer interface {
	Produce(ctx context.Context, rec model.SubmissionRecord, kind model.ArtifactKind) (model.ArtifactRef, error)
}

// Ledger persists one row per submission.
type Ledger interface {
	Append(ctx context.Context, rec model.SubmissionRecord) error
}

// ApplicantNotifier sends the confirmation email.
type ApplicantNotifier interface {
	SendConfirmation(ctx context.Context, rec model.SubmissionRecord, form model.ArtifactRef) error
}

// Buffer is where artifact refs wait for the staff batch.
type Buffer interface {
	Append(refs ...model.ArtifactRef) int
}

// Receipt describes an accepted submission.
type Receipt struct {
	SubmissionID    string
	SubmittedAt     time.Time
	Certificate     model.ArtifactRef
	ApplicationForm model.ArtifactRef
	// Pending is the batch buffer length right after the append.
	Pending int
	// ConfirmationErr is set when the applicant email failed. The submission
	// is still accepted.
	ConfirmationErr error
}

// Observer is told about every accepted submission. Observers run inline
// after the response data is final and should hand slow work elsewhere.
type Observer func(ctx context.Context, rec model.SubmissionRecord, r Receipt)

// Service is the intake orchestrator.
type Service struct {
	producer  Producer
	ledger    Ledger
	notifier  ApplicantNotifier
	buffer    Buffer
	logger    *log.Logger
	tracer    trace.Tracer
	observers []Observer
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *log.Logger) Option  { return func(s *Service) { s.logger = l } }
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs overrides submission id generation.
func WithIDs(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func NewService(p Producer, l Ledger, n ApplicantNotifier, b Buffer, opts ...Option) *Service {
	s := &Service{
		producer: p,
		ledger:   l,
		notifier: n,
		buffer:   b,
		logger:   logging.Discard(),
		tracer:   otel.Tracer("regidesk/intake"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit processes one raw record. Every returned error is a *StepError.
// Once started, a submission runs to completion even if ctx is cancelled;
// only its values (trace span, request scope) are carried forward.
func (s *Service) Submit(ctx context.Context, raw model.SubmissionRecord) (Receipt, error) {
	ctx = context.WithoutCancel(ctx)
	rec := validate.Normalize(raw)
	rec.ID = s.newID()

	ctx, span := s.tracer.Start(ctx, "intake.submit", trace.WithAttributes(attribute.String("submission.id", rec.ID)))
	defer span.End()

	logger := s.logger.With("submission_id", rec.ID, "applicant", rec.ApplicantName, "admission_no", rec.AdmissionNo)
	fail := func(step Step, cause Cause, err error) (Receipt, error) {
		se := &StepError{Step: step, Cause: cause, SubmissionID: rec.ID, Err: err}
		span.RecordError(se)
		span.SetStatus(codes.Error, string(cause))
		if cause == CauseValidation {
			logger.Warn("submission rejected", "step", step, "err", err)
		} else {
			logger.Error("submission failed", "step", step, "cause", cause, "err", err)
		}
		return Receipt{SubmissionID: rec.ID}, se
	}

	if err := s.step(ctx, StepValidate, func(context.Context) error { return validate.Submission(rec) }); err != nil {
		return fail(StepValidate, CauseValidation, err)
	}

	var cert, form model.ArtifactRef
	err := s.step(ctx, StepCertificate, func(ctx context.Context) (err error) {
		cert, err = s.producer.Produce(ctx, rec, model.KindCertificate)
		return err
	})
	if err != nil {
		return fail(StepCertificate, CauseRendering, err)
	}
	err = s.step(ctx, StepApplicationForm, func(ctx context.Context) (err error) {
		form, err = s.producer.Produce(ctx, rec, model.KindApplicationForm)
		return err
	})
	if err != nil {
		return fail(StepApplicationForm, CauseRendering, err)
	}

	rec.SubmittedAt = s.now()
	if err := s.step(ctx, StepLedger, func(ctx context.Context) error { return s.ledger.Append(ctx, rec) }); err != nil {
		return fail(StepLedger, CausePersistence, err)
	}

	receipt := Receipt{
		SubmissionID:    rec.ID,
		SubmittedAt:     rec.SubmittedAt,
		Certificate:     cert,
		ApplicationForm: form,
	}
	err = s.step(ctx, StepConfirmation, func(ctx context.Context) error {
		return s.notifier.SendConfirmation(ctx, rec, form)
	})
	if err != nil {
		// Best effort: the applicant email never blocks the staff batch.
		receipt.ConfirmationErr = &StepError{Step: StepConfirmation, Cause: CauseDelivery, SubmissionID: rec.ID, Err: err}
		logger.Error("confirmation email failed", "email", rec.Email, "err", err)
	}

	_ = s.step(ctx, StepBuffer, func(context.Context) error {
		receipt.Pending = s.buffer.Append(cert, form)
		return nil
	})
	logger.Info("submission accepted", "pending", receipt.Pending)

	for _, o := range s.observers {
		o(ctx, rec, receipt)
	}
	return receipt, nil
}

func (s *Service) step(ctx context.Context, step Step, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "intake."+string(step))
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
