// Package batch owns the buffer of artifact references waiting for the next
// staff email. Requests append to it concurrently; scheduled firings drain it.
//
// A drain captures a cut point under the lock, sends without holding it, and
// only then removes what it captured. A failed send therefore leaves the
// buffer exactly as it was plus whatever arrived in the meantime.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dharsanguruparan/RegiDesk/internal/logging"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

// ErrFlushInProgress is returned by DrainAndSend when another drain has not
// finished yet. The overlapping call does nothing.
var ErrFlushInProgress = errors.New("flush already in progress")

// Outcome classifies one DrainAndSend call.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeEmpty   Outcome = "empty"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Sender delivers a captured batch to staff.
type Sender interface {
	SendBatch(ctx context.Context, b model.Batch) error
}

// LedgerExporter snapshots the ledger for inclusion in a batch.
type LedgerExporter interface {
	Export(ctx context.Context) (model.LedgerExport, error)
}

// Report describes what a drain did.
type Report struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Outcome     Outcome   `json:"outcome"`
	Refs        int       `json:"refs"`
	Submissions int       `json:"submissions"`
	// Remaining is the buffer length right after the drain committed.
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

// Hook observes finished drains. Hooks run synchronously after the buffer
// has been updated and must not call back into DrainAndSend.
type Hook func(ctx context.Context, r Report, b model.Batch)

// Accumulator is the process-wide batch buffer. The zero value is not usable;
// call New.
type Accumulator struct {
	mu       sync.Mutex
	refs     []model.ArtifactRef
	flushing bool

	sender Sender
	ledger LedgerExporter
	logger *log.Logger
	tracer trace.Tracer
	hooks  []Hook
	now    func() time.Time
}

// Option configures an Accumulator.
type Option func(*Accumulator)

func WithLogger(l *log.Logger) Option { return func(a *Accumulator) { a.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(a *Accumulator) { a.tracer = t } }

// WithHook registers h to run after every drain that reached the sender,
// including failed ones. Empty and skipped drains are not reported.
func WithHook(h Hook) Option { return func(a *Accumulator) { a.hooks = append(a.hooks, h) } }

func WithClock(now func() time.Time) Option { return func(a *Accumulator) { a.now = now } }

// New builds an empty accumulator. ledger may be nil, in which case batches
// carry no ledger export.
func New(sender Sender, ledger LedgerExporter, opts ...Option) *Accumulator {
	a := &Accumulator{
		sender: sender,
		ledger: ledger,
		logger: logging.Discard(),
		tracer: otel.Tracer("regidesk/batch"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds the refs of one submission to the tail of the buffer in a
// single step and returns the new buffer length.
func (a *Accumulator) Append(refs ...model.ArtifactRef) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs = append(a.refs, refs...)
	return len(a.refs)
}

// Len is the number of refs waiting.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.refs)
}

// Pending returns a copy of the buffer.
func (a *Accumulator) Pending() []model.ArtifactRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.ArtifactRef, len(a.refs))
	copy(out, a.refs)
	return out
}

// Flushing reports whether a drain is currently sending.
func (a *Accumulator) Flushing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushing
}

// DrainAndSend captures the buffer, sends it with the current ledger export,
// and removes the captured refs only if the send succeeded. trigger is a free
// form label ("schedule", "admin", "shutdown") carried into the report.
func (a *Accumulator) DrainAndSend(ctx context.Context, trigger string) (Report, error) {
	ctx, span := a.tracer.Start(ctx, "batch.drain_and_send", trace.WithAttributes(attribute.String("trigger", trigger)))
	defer span.End()

	report := Report{ID: uuid.NewString(), Trigger: trigger, StartedAt: a.now()}

	a.mu.Lock()
	if a.flushing {
		a.mu.Unlock()
		report.Outcome = OutcomeSkipped
		report.FinishedAt = a.now()
		span.SetAttributes(attribute.String("outcome", string(report.Outcome)))
		a.logger.Warn("flush skipped, previous flush still running", "trigger", trigger)
		return report, ErrFlushInProgress
	}
	if len(a.refs) == 0 {
		a.mu.Unlock()
		report.Outcome = OutcomeEmpty
		report.FinishedAt = a.now()
		span.SetAttributes(attribute.String("outcome", string(report.Outcome)))
		a.logger.Info("flush found empty buffer, nothing sent", "trigger", trigger)
		return report, nil
	}
	// Cut point. Everything at index < n belongs to this drain; appends made
	// while we send land at index >= n and are left alone.
	n := len(a.refs)
	captured := make([]model.ArtifactRef, n)
	copy(captured, a.refs)
	a.flushing = true
	a.mu.Unlock()

	b := model.Batch{ID: report.ID, CapturedAt: report.StartedAt, Refs: captured}
	report.Refs = n
	report.Submissions = b.Submissions()
	span.SetAttributes(attribute.Int("refs", n), attribute.Int("submissions", report.Submissions))

	err := a.send(ctx, &b)

	a.mu.Lock()
	a.flushing = false
	if err == nil {
		// Drop the captured prefix. Copy into a fresh slice so the backing
		// array of the sent batch is not shared with future appends.
		a.refs = append([]model.ArtifactRef(nil), a.refs[n:]...)
	}
	report.Remaining = len(a.refs)
	a.mu.Unlock()

	report.FinishedAt = a.now()
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch delivery failed")
		a.logger.Error("CRITICAL: batch delivery failed, buffer kept for next firing",
			"batch", report.ID, "refs", n, "pending", report.Remaining, "err", err)
	} else {
		report.Outcome = OutcomeSent
		a.logger.Info("batch delivered", "batch", report.ID, "refs", n,
			"submissions", report.Submissions, "pending", report.Remaining)
	}
	span.SetAttributes(attribute.String("outcome", string(report.Outcome)))

	for _, h := range a.hooks {
		h(ctx, report, b)
	}
	if err != nil {
		return report, fmt.Errorf("drain batch %s: %w", report.ID, err)
	}
	return report, nil
}

// send reports a panic in the exporter or sender as an error so the drain
// still clears the flushing flag and keeps the buffer.
func (a *Accumulator) send(ctx context.Context, b *model.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	if a.ledger != nil {
		export, err := a.ledger.Export(ctx)
		if err != nil {
			return fmt.Errorf("export ledger: %w", err)
		}
		b.Ledger = export
	}
	return a.sender.SendBatch(ctx, *b)
}

// Shutdown either drains one last time or reports what is being abandoned.
// The buffer lives in memory only.
func (a *Accumulator) Shutdown(ctx context.Context, flush bool) error {
	if flush {
		_, err := a.DrainAndSend(ctx, "shutdown")
		if errors.Is(err, ErrFlushInProgress) {
			return nil
		}
		return err
	}
	if n := a.Len(); n > 0 {
		a.logger.Warn("shutting down with unsent artifacts", "pending", n)
	}
	return nil
}
