// Package documents produces the certificate and application-form PDFs for a
// submission. It owns no shared state: every call renders, prints and writes
// one file.
package documents

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
	pdfutil "github.com/dharsanguruparan/RegiDesk/internal/pdf"
	"github.com/dharsanguruparan/RegiDesk/internal/render"
)

// Renderer turns a named template and view into HTML.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Printer turns HTML into PDF bytes.
type Printer interface {
	Print(ctx context.Context, html string, size pdfutil.PageSize) ([]byte, error)
}

// Producer writes artifacts into a fixed output directory.
type Producer struct {
	renderer  Renderer
	printer   Printer
	outputDir string
	location  *time.Location
	now       func() time.Time
	verify    func([]byte) (int, error)
}

// Option customizes a Producer.
type Option func(*Producer)

// WithClock overrides time.Now, used for issue dates and file names.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) { p.now = now }
}

// WithVerifier replaces the PDF sanity check.
func WithVerifier(verify func([]byte) (int, error)) Option {
	return func(p *Producer) { p.verify = verify }
}

// NewProducer creates the output directory if needed.
func NewProducer(renderer Renderer, printer Printer, outputDir string, loc *time.Location, opts ...Option) (*Producer, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	p := &Producer{
		renderer:  renderer,
		printer:   printer,
		outputDir: outputDir,
		location:  loc,
		now:       time.Now,
		verify:    pdfutil.Verify,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Produce renders one artifact of the given kind for rec and returns a
// reference to the written file.
func (p *Producer) Produce(ctx context.Context, rec model.SubmissionRecord, kind model.ArtifactKind) (model.ArtifactRef, error) {
	now := p.now().In(p.location)

	var (
		tmpl   string
		view   any
		size   pdfutil.PageSize
		prefix string
	)
	switch kind {
	case model.KindCertificate:
		tmpl, view, size, prefix = render.Certificate, certificateView(rec, now), pdfutil.CertificatePage, "Certificate"
	case model.KindApplicationForm:
		tmpl, view, size, prefix = render.ApplicationForm, applicationView(rec), pdfutil.A4, "Application"
	default:
		return model.ArtifactRef{}, fmt.Errorf("unknown artifact kind %q", kind)
	}

	html, err := p.renderer.Render(tmpl, view)
	if err != nil {
		return model.ArtifactRef{}, fmt.Errorf("render %s: %w", kind, err)
	}
	data, err := p.printer.Print(ctx, html, size)
	if err != nil {
		return model.ArtifactRef{}, fmt.Errorf("print %s: %w", kind, err)
	}
	if _, err := p.verify(data); err != nil {
		return model.ArtifactRef{}, fmt.Errorf("verify %s: %w", kind, err)
	}

	path, err := p.write(prefix, rec.FileSafeName(), now.UnixMilli(), data)
	if err != nil {
		return model.ArtifactRef{}, fmt.Errorf("write %s: %w", kind, err)
	}
	return model.ArtifactRef{
		Kind:          kind,
		Path:          path,
		SubmissionID:  rec.ID,
		ApplicantName: rec.ApplicantName,
		CreatedAt:     now,
	}, nil
}

// write stores data as <prefix>-<name>-<millis>.pdf. Two applicants with the
// same name in the same millisecond get consecutive millis instead of
// overwriting each other.
func (p *Producer) write(prefix, name string, millis int64, data []byte) (string, error) {
	const attempts = 100
	for i := int64(0); i < attempts; i++ {
		path := filepath.Join(p.outputDir, fmt.Sprintf("%s-%s-%d.pdf", prefix, name, millis+i))
		err := writeFile(path, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return path, err
	}
	return "", fmt.Errorf("no free file name for %s-%s", prefix, name)
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// CertificateView feeds the certificate template.
type CertificateView struct {
	Gender     string
	Name       string
	FatherName string
	Course     string
	FromDate   string
	ToDate     string
	IssueDate  string
	Photo      template.URL
}

func certificateView(rec model.SubmissionRecord, now time.Time) CertificateView {
	return CertificateView{
		Gender:     rec.Gender,
		Name:       strings.ToUpper(rec.ApplicantName),
		FatherName: strings.ToUpper(rec.FatherName),
		Course:     "INTERNSHIP PROGRAMME ON " + strings.ToUpper(rec.CourseName),
		FromDate:   rec.FromDate,
		ToDate:     rec.ToDate,
		IssueDate:  now.Format("02.01.2006"),
		// The photo was checked to be an inline PNG/JPEG during validation.
		Photo: template.URL(rec.Photo),
	}
}

// DefaultCategories are the caste checkboxes printed on every form.
var DefaultCategories = []string{"General", "OBC", "SC", "ST", "EWS"}

// Category is one checkbox on the application form.
type Category struct {
	Name    string
	Checked bool
}

// ApplicationView feeds the application-form template.
type ApplicationView struct {
	Record     model.SubmissionRecord
	Categories []Category
	Education  []model.Education
	Photo      template.URL
}

func applicationView(rec model.SubmissionRecord) ApplicationView {
	selected := make(map[string]bool)
	for _, c := range rec.CasteCategories() {
		selected[c] = true
	}
	cats := make([]Category, 0, len(DefaultCategories))
	for _, name := range DefaultCategories {
		cats = append(cats, Category{Name: name, Checked: selected[name]})
		delete(selected, name)
	}
	// Values the form does not print by default still show up, checked.
	for _, c := range rec.CasteCategories() {
		if selected[c] {
			cats = append(cats, Category{Name: c, Checked: true})
			delete(selected, c)
		}
	}
	edu := make([]model.Education, model.MaxEducationEntries)
	for i := range edu {
		edu[i] = rec.EducationAt(i)
	}
	return ApplicationView{
		Record:     rec,
		Categories: cats,
		Education:  edu,
		Photo:      template.URL(rec.Photo),
	}
}
