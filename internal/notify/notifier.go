package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

var (
	confirmationBody = template.Must(template.New("confirmation").Parse(
		`<h3>Dear {{.}},</h3><p>Thank you for registering. Your application has been received and a copy of the application form is attached.</p>`))
	batchBody = template.Must(template.New("batch").Parse(
		`<h3>Batch Registration Report</h3>` +
			`<p>Please find attached documents for <strong>{{.Students}}</strong> new student(s) who registered in this period.</p>` +
			`<p>The updated master registration list is also attached.</p>`))
)

// ApplicantNotifier sends the per-submission confirmation.
type ApplicantNotifier struct {
	transport Transport
	fromName  string
	subject   string
}

func NewApplicantNotifier(t Transport, fromName, subject string) *ApplicantNotifier {
	return &ApplicantNotifier{transport: t, fromName: fromName, subject: subject}
}

// SendConfirmation mails the application form to the applicant.
func (n *ApplicantNotifier) SendConfirmation(ctx context.Context, rec model.SubmissionRecord, form model.ArtifactRef) error {
	var body bytes.Buffer
	if err := confirmationBody.Execute(&body, rec.ApplicantName); err != nil {
		return err
	}
	return n.transport.Deliver(ctx, Message{
		FromName:    n.fromName,
		To:          []string{rec.Email},
		Subject:     n.subject,
		HTML:        body.String(),
		Attachments: []Attachment{{Name: form.FileName(), Path: form.Path}},
	})
}

// StaffNotifier sends batch emails to one staff recipient.
type StaffNotifier struct {
	transport Transport
	fromName  string
	recipient string
	location  *time.Location
	now       func() time.Time
}

func NewStaffNotifier(t Transport, fromName, recipient string, loc *time.Location) *StaffNotifier {
	if loc == nil {
		loc = time.Local
	}
	return &StaffNotifier{transport: t, fromName: fromName, recipient: recipient, location: loc, now: time.Now}
}

// SendBatch mails every captured artifact plus the ledger export.
func (n *StaffNotifier) SendBatch(ctx context.Context, b model.Batch) error {
	var body bytes.Buffer
	if err := batchBody.Execute(&body, struct{ Students int }{b.Submissions()}); err != nil {
		return err
	}
	attachments := make([]Attachment, 0, len(b.Refs)+1)
	for _, ref := range b.Refs {
		attachments = append(attachments, Attachment{Name: ref.FileName(), Path: ref.Path})
	}
	if b.Ledger.Data != nil {
		attachments = append(attachments, Attachment{Name: b.Ledger.FileName, Data: b.Ledger.Data})
	}
	return n.transport.Deliver(ctx, Message{
		FromName:    n.fromName,
		To:          []string{n.recipient},
		Subject:     fmt.Sprintf("Student Registration Batch Report - %s", n.now().In(n.location).Format("3:04:05 pm")),
		HTML:        body.String(),
		Attachments: attachments,
	})
}
