package intake

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/validate"
)

type fakeProducer struct {
	kinds     []model.ArtifactKind
	fail      map[model.ArtifactKind]error
	onProduce func(model.ArtifactKind)
}

func (f *fakeProducer) Produce(_ context.Context, rec model.SubmissionRecord, kind model.ArtifactKind) (model.ArtifactRef, error) {
	f.kinds = append(f.kinds, kind)
	if f.onProduce != nil {
		f.onProduce(kind)
	}
	if err := f.fail[kind]; err != nil {
		return model.ArtifactRef{}, err
	}
	return model.ArtifactRef{Kind: kind, Path: fmt.Sprintf("/out/%s-%s.pdf", kind, rec.ID), SubmissionID: rec.ID}, nil
}

type fakeLedger struct {
	rows []model.SubmissionRecord
	err  error
}

func (f *fakeLedger) Append(ctx context.Context, rec model.SubmissionRecord) error {
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.rows = append(f.rows, rec)
	return nil
}

type fakeNotifier struct {
	forms []model.ArtifactRef
	err   error
}

func (f *fakeNotifier) SendConfirmation(_ context.Context, _ model.SubmissionRecord, form model.ArtifactRef) error {
	f.forms = append(f.forms, form)
	return f.err
}

type fakeBuffer struct{ refs []model.ArtifactRef }

func (f *fakeBuffer) Append(refs ...model.ArtifactRef) int {
	f.refs = append(f.refs, refs...)
	return len(f.refs)
}

type harness struct {
	producer *fakeProducer
	ledger   *fakeLedger
	notifier *fakeNotifier
	buffer   *fakeBuffer
	svc      *Service
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		producer: &fakeProducer{fail: map[model.ArtifactKind]error{}},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		buffer:   &fakeBuffer{},
	}
	n := 0
	opts = append([]Option{WithIDs(func() string { n++; return fmt.Sprintf("sub-%d", n) })}, opts...)
	h.svc = NewService(h.producer, h.ledger, h.notifier, h.buffer, opts...)
	return h
}

func validRecord() model.SubmissionRecord {
	return model.SubmissionRecord{
		ApplicantName: "  Jane Doe ",
		FatherName:    "John Doe",
		Email:         "jane@example.com",
		CourseName:    "CNC Programming",
		FromDate:      "01.11.2026",
		ToDate:        "30.11.2026",
	}
}

func TestSubmitHappyPath(t *testing.T) {
	var observed []Receipt
	h := newHarness(WithObserver(func(_ context.Context, _ model.SubmissionRecord, r Receipt) {
		observed = append(observed, r)
	}))

	receipt, err := h.svc.Submit(context.Background(), validRecord())
	require.NoError(t, err)

	assert.Equal(t, "sub-1", receipt.SubmissionID)
	assert.Equal(t, []model.ArtifactKind{model.KindCertificate, model.KindApplicationForm}, h.producer.kinds)
	require.Len(t, h.ledger.rows, 1)
	assert.Equal(t, "Jane Doe", h.ledger.rows[0].ApplicantName, "record is normalized")
	assert.False(t, h.ledger.rows[0].SubmittedAt.IsZero())
	require.Len(t, h.notifier.forms, 1)
	assert.Equal(t, model.KindApplicationForm, h.notifier.forms[0].Kind)

	require.Len(t, h.buffer.refs, 2)
	assert.Equal(t, model.KindCertificate, h.buffer.refs[0].Kind)
	assert.Equal(t, model.KindApplicationForm, h.buffer.refs[1].Kind)
	assert.Equal(t, 2, receipt.Pending)
	assert.Len(t, observed, 1)
}

func TestSubmitValidationHasNoSideEffects(t *testing.T) {
	h := newHarness()
	rec := validRecord()
	rec.Email = "not-an-email"
	rec.FatherName = " "

	_, err := h.svc.Submit(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, CauseValidation, CauseOf(err))

	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	assert.Empty(t, h.producer.kinds)
	assert.Empty(t, h.ledger.rows)
	assert.Empty(t, h.notifier.forms)
	assert.Empty(t, h.buffer.refs)
}

func TestSubmitRenderingFailures(t *testing.T) {
	for _, kind := range []model.ArtifactKind{model.KindCertificate, model.KindApplicationForm} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness()
			h.producer.fail[kind] = errors.New("template missing")

			_, err := h.svc.Submit(context.Background(), validRecord())
			require.Error(t, err)
			assert.Equal(t, CauseRendering, CauseOf(err))
			assert.Empty(t, h.ledger.rows)
			assert.Empty(t, h.notifier.forms)
			assert.Empty(t, h.buffer.refs)
		})
	}
}

func TestSubmitLedgerFailureAborts(t *testing.T) {
	h := newHarness()
	h.ledger.err = errors.New("disk full")

	_, err := h.svc.Submit(context.Background(), validRecord())
	require.Error(t, err)
	assert.Equal(t, CausePersistence, CauseOf(err))

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepLedger, se.Step)
	assert.Equal(t, "sub-1", se.SubmissionID)
	assert.Len(t, h.producer.kinds, 2, "artifacts were already produced")
	assert.Empty(t, h.notifier.forms)
	assert.Empty(t, h.buffer.refs)
}

func TestSubmitConfirmationFailureStillBuffers(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("smtp: 550 mailbox unavailable")

	receipt, err := h.svc.Submit(context.Background(), validRecord())
	require.NoError(t, err)
	require.Error(t, receipt.ConfirmationErr)
	assert.Equal(t, CauseDelivery, CauseOf(receipt.ConfirmationErr))
	assert.Len(t, h.ledger.rows, 1)
	assert.Len(t, h.buffer.refs, 2)
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{Step: StepLedger, Cause: CausePersistence, SubmissionID: "x", Err: errors.New("boom")}
	assert.Equal(t, "submission x: ledger failed (persistence_error): boom", err.Error())
	assert.Equal(t, Cause(""), CauseOf(errors.New("other")))
}

func TestSubmittedAtIsTakenAtLedgerWrite(t *testing.T) {
	received := time.Date(2026, 10, 16, 10, 41, 0, 0, time.UTC)
	clock := received
	h := newHarness(WithClock(func() time.Time { return clock }))
	// Printing takes a while; the clock moves on before the ledger row.
	h.producer.onProduce = func(model.ArtifactKind) { clock = clock.Add(20 * time.Second) }

	receipt, err := h.svc.Submit(context.Background(), validRecord())
	require.NoError(t, err)

	written := received.Add(40 * time.Second)
	require.Len(t, h.ledger.rows, 1)
	assert.Equal(t, written, h.ledger.rows[0].SubmittedAt)
	assert.Equal(t, written, receipt.SubmittedAt)
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness()
	h.producer.onProduce = func(kind model.ArtifactKind) {
		if kind == model.KindCertificate {
			cancel()
		}
	}

	_, err := h.svc.Submit(ctx, validRecord())
	require.NoError(t, err)
	assert.Len(t, h.ledger.rows, 1)
	assert.Len(t, h.buffer.refs, 2)
}
