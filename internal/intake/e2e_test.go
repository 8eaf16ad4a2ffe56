package intake_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/documents"
	"github.com/dharsanguruparan/RegiDesk/internal/intake"
	"github.com/dharsanguruparan/RegiDesk/internal/ledger"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/notify"
	pdfutil "github.com/dharsanguruparan/RegiDesk/internal/pdf"
	"github.com/dharsanguruparan/RegiDesk/internal/render"
)

type htmlPrinter struct{}

func (htmlPrinter) Print(_ context.Context, html string, _ pdfutil.PageSize) ([]byte, error) {
	return []byte(html), nil
}

// outbox is a notify.Transport that keeps every message, optionally failing
// the next few deliveries.
type outbox struct {
	mu       sync.Mutex
	messages []notify.Message
	failNext int
}

func (o *outbox) Deliver(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNext > 0 {
		o.failNext--
		return errors.New("transport unavailable")
	}
	o.messages = append(o.messages, m)
	return nil
}

func (o *outbox) to(addr string) []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Message
	for _, m := range o.messages {
		if len(m.To) > 0 && m.To[0] == addr {
			out = append(out, m)
		}
	}
	return out
}

type system struct {
	intake *intake.Service
	acc    *batch.Accumulator
	ledger *ledger.Store
	mail   *outbox
}

// cancelOnForm cancels the caller's context once the application form has
// been produced, as a disconnecting browser would.
type cancelOnForm struct {
	intake.Producer
	cancel context.CancelFunc
}

func (c cancelOnForm) Produce(ctx context.Context, rec model.SubmissionRecord, kind model.ArtifactKind) (model.ArtifactRef, error) {
	ref, err := c.Producer.Produce(ctx, rec, kind)
	if kind == model.KindApplicationForm {
		c.cancel()
	}
	return ref, err
}

func newSystem(t *testing.T, wrap ...func(intake.Producer) intake.Producer) *system {
	t.Helper()
	dir := t.TempDir()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	producer, err := documents.NewProducer(render.New(""), htmlPrinter{}, filepath.Join(dir, "output"), loc,
		documents.WithVerifier(func([]byte) (int, error) { return 1, nil }))
	require.NoError(t, err)
	store, err := ledger.NewStore(filepath.Join(dir, "output", "registrations.xlsx"), loc)
	require.NoError(t, err)

	mail := &outbox{}
	staff := notify.NewStaffNotifier(mail, "CITD Registration System", "staff@example.com", loc)
	applicant := notify.NewApplicantNotifier(mail, "CITD Hyderabad", "Application Received - CITD Short Term Course")
	acc := batch.New(staff, store)

	var p intake.Producer = producer
	for _, w := range wrap {
		p = w(p)
	}
	return &system{
		intake: intake.NewService(p, store, applicant, acc),
		acc:    acc,
		ledger: store,
		mail:   mail,
	}
}

func jane() model.SubmissionRecord {
	return model.SubmissionRecord{
		ApplicantName: "Jane Doe",
		FatherName:    "John Doe",
		Email:         "jane@example.com",
		CourseName:    "CNC Programming",
		FromDate:      "01.11.2026",
		ToDate:        "30.11.2026",
		Gender:        "Ms.",
	}
}

func TestJaneDoeEndToEnd(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)
	before := sys.acc.Len()

	receipt, err := sys.intake.Submit(ctx, jane())
	require.NoError(t, err)
	require.NoError(t, receipt.ConfirmationErr)
	assert.FileExists(t, receipt.Certificate.Path)
	assert.FileExists(t, receipt.ApplicationForm.Path)

	rows, err := sys.ledger.Records(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jane Doe", rows[0]["Applicant Name"])

	confirmations := sys.mail.to("jane@example.com")
	require.Len(t, confirmations, 1)
	require.Len(t, confirmations[0].Attachments, 1)
	assert.Equal(t, receipt.ApplicationForm.Path, confirmations[0].Attachments[0].Path)

	assert.Equal(t, before+2, sys.acc.Len())

	report, err := sys.acc.DrainAndSend(ctx, "schedule")
	require.NoError(t, err)
	assert.Equal(t, batch.OutcomeSent, report.Outcome)
	assert.Zero(t, sys.acc.Len())

	staff := sys.mail.to("staff@example.com")
	require.Len(t, staff, 1)
	require.Len(t, staff[0].Attachments, 3)
	assert.Equal(t, receipt.Certificate.Path, staff[0].Attachments[0].Path)
	assert.Equal(t, receipt.ApplicationForm.Path, staff[0].Attachments[1].Path)
	assert.Equal(t, "registrations.xlsx", staff[0].Attachments[2].Name)
	assert.NotEmpty(t, staff[0].Attachments[2].Data)
}

func TestRetryScenario(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)

	_, err := sys.intake.Submit(ctx, jane())
	require.NoError(t, err)
	pending := sys.acc.Pending()

	sys.mail.failNext = 1
	_, err = sys.acc.DrainAndSend(ctx, "schedule")
	require.Error(t, err)
	assert.Equal(t, pending, sys.acc.Pending(), "buffer unchanged after failed send")

	_, err = sys.acc.DrainAndSend(ctx, "schedule")
	require.NoError(t, err)
	assert.Zero(t, sys.acc.Len())

	staff := sys.mail.to("staff@example.com")
	require.Len(t, staff, 1)
	assert.Equal(t, pending[0].Path, staff[0].Attachments[0].Path)
	assert.Equal(t, pending[1].Path, staff[0].Attachments[1].Path)
}

func TestConcurrentSubmissionsStayPaired(t *testing.T) {
	ctx := context.Background()
	sys := newSystem(t)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sys.intake.Submit(ctx, jane())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	refs := sys.acc.Pending()
	require.Len(t, refs, 2*n)
	for i := 0; i < len(refs); i += 2 {
		assert.Equal(t, refs[i].SubmissionID, refs[i+1].SubmissionID)
		assert.Equal(t, model.KindCertificate, refs[i].Kind)
	}
	rows, err := sys.ledger.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, n)
}

func TestClientDisconnectStillCompletesSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys := newSystem(t, func(p intake.Producer) intake.Producer { return cancelOnForm{Producer: p, cancel: cancel} })

	receipt, err := sys.intake.Submit(ctx, jane())
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	rows, err := sys.ledger.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jane Doe", rows[0]["Applicant Name"])
	assert.Equal(t, 2, sys.acc.Len())
	assert.Equal(t, receipt.SubmissionID, sys.acc.Pending()[0].SubmissionID)
}
