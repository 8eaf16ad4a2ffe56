// Package ledger keeps the cumulative registration spreadsheet. Every append
// is a read-modify-write of the whole workbook, so the store serializes all
// access behind one mutex and replaces the file atomically.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

// SheetName is the worksheet holding one row per submission.
const SheetName = "Registrations"

// TimestampLayout formats the submission date column.
const TimestampLayout = "2/1/2006, 3:04:05 pm"

type column struct {
	header string
	width  float64
	value  func(model.SubmissionRecord, string) string
}

func edu(i int, pick func(model.Education) string) func(model.SubmissionRecord, string) string {
	return func(r model.SubmissionRecord, _ string) string { return pick(r.EducationAt(i)) }
}

var columns = []column{
	{"Admission No", 15, func(r model.SubmissionRecord, _ string) string { return r.AdmissionNo }},
	{"SDMIS Ref No", 15, func(r model.SubmissionRecord, _ string) string { return r.ReferenceNo }},
	{"Course Name", 30, func(r model.SubmissionRecord, _ string) string { return r.CourseName }},
	{"Department", 20, func(r model.SubmissionRecord, _ string) string { return r.Department }},
	{"Duration", 20, func(r model.SubmissionRecord, _ string) string { return r.Duration }},
	{"Applicant Name", 30, func(r model.SubmissionRecord, _ string) string { return r.ApplicantName }},
	{"DOB", 15, func(r model.SubmissionRecord, _ string) string { return r.DateOfBirth }},
	{"Gender", 10, func(r model.SubmissionRecord, _ string) string { return r.Gender }},
	{"Father Name", 30, func(r model.SubmissionRecord, _ string) string { return r.FatherName }},
	{"Mother Name", 30, func(r model.SubmissionRecord, _ string) string { return r.MotherName }},
	{"Address", 40, func(r model.SubmissionRecord, _ string) string { return r.Address }},
	{"Email", 30, func(r model.SubmissionRecord, _ string) string { return r.Email }},
	{"Mobile", 20, func(r model.SubmissionRecord, _ string) string { return r.Mobile }},
	{"Aadhar", 20, func(r model.SubmissionRecord, _ string) string { return r.IdentityNo }},
	{"Start Date", 15, func(r model.SubmissionRecord, _ string) string { return r.FromDate }},
	{"End Date", 15, func(r model.SubmissionRecord, _ string) string { return r.ToDate }},
	{"Submission Date", 20, func(_ model.SubmissionRecord, ts string) string { return ts }},
	{"Caste", 15, func(r model.SubmissionRecord, _ string) string { return r.CasteCategory }},
	{"Course Fees", 15, func(r model.SubmissionRecord, _ string) string { return r.CourseFees }},
	{"Edu 1 Course", 20, edu(0, func(e model.Education) string { return e.Course })},
	{"Edu 1 School", 30, edu(0, func(e model.Education) string { return e.School })},
	{"Edu 1 Spec", 20, edu(0, func(e model.Education) string { return e.Spec })},
	{"Edu 1 Year", 15, edu(0, func(e model.Education) string { return e.Year })},
	{"Edu 1 Perc", 15, edu(0, func(e model.Education) string { return e.Percentage })},
	{"Edu 2 Course", 20, edu(1, func(e model.Education) string { return e.Course })},
	{"Edu 2 School", 30, edu(1, func(e model.Education) string { return e.School })},
	{"Edu 2 Spec", 20, edu(1, func(e model.Education) string { return e.Spec })},
	{"Edu 2 Year", 15, edu(1, func(e model.Education) string { return e.Year })},
	{"Edu 2 Perc", 15, edu(1, func(e model.Education) string { return e.Percentage })},
}

// Headers returns the column headers in sheet order.
func Headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

// Row flattens a record into sheet order. submitted is formatted in loc.
func Row(rec model.SubmissionRecord, submitted time.Time, loc *time.Location) []string {
	ts := submitted.In(loc).Format(TimestampLayout)
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.value(rec, ts)
	}
	return out
}

// Store is the workbook on disk.
type Store struct {
	path string
	loc  *time.Location
	now  func() time.Time

	mu sync.Mutex
}

// NewStore prepares the directory holding path. The workbook itself is
// created on the first append.
func NewStore(path string, loc *time.Location) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Store{path: path, loc: loc, now: time.Now}, nil
}

// Path is the workbook location.
func (s *Store) Path() string { return s.path }

// Append adds one row for rec. The submission date is rec.SubmittedAt, or the
// current time when that is unset.
func (s *Store) Append(ctx context.Context, rec model.SubmissionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, rows, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	cell, err := excelize.CoordinatesToCellName(1, rows+1)
	if err != nil {
		return err
	}
	values := toCells(Row(rec, submitted, s.loc))
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	return s.save(f)
}

// Export returns a byte copy of the workbook as it is now. A missing workbook
// exports as a header-only sheet.
func (s *Store) Export(ctx context.Context) (model.LedgerExport, error) {
	if err := ctx.Err(); err != nil {
		return model.LedgerExport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, rows, err := s.open()
	if err != nil {
		return model.LedgerExport{}, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return model.LedgerExport{}, fmt.Errorf("export ledger: %w", err)
	}
	return model.LedgerExport{
		FileName: filepath.Base(s.path),
		Data:     buf.Bytes(),
		Rows:     rows - 1,
	}, nil
}

// Records reads every data row back as header → value maps.
func (s *Store) Records(ctx context.Context) ([]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, _, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

// ReadRows decodes the Registrations sheet of an open workbook.
func ReadRows(f *excelize.File) ([]map[string]string, error) {
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// open returns the workbook and its current row count including the header.
// The caller holds s.mu.
func (s *Store) open() (*excelize.File, int, error) {
	f, err := excelize.OpenFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f, err = newWorkbook()
		if err != nil {
			return nil, 0, err
		}
		return f, 1, nil
	case err != nil:
		return nil, 0, fmt.Errorf("open ledger: %w", err)
	}

	if idx, _ := f.GetSheetIndex(SheetName); idx < 0 {
		if err := addSheet(f); err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, 1, nil
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) == 0 {
		if err := writeHeader(f); err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, 1, nil
	}
	return f, len(rows), nil
}

// save writes to a sibling temp file and renames it over the workbook, so a
// crash mid-write never leaves a truncated ledger behind.
func (s *Store) save(f *excelize.File) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := addSheet(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	return f, nil
}

func addSheet(f *excelize.File) error {
	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	f.SetActiveSheet(idx)
	return writeHeader(f)
}

func writeHeader(f *excelize.File) error {
	header := toCells(Headers())
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for i, c := range columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, c.width); err != nil {
			return fmt.Errorf("size ledger column: %w", err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("style ledger header: %w", err)
	}
	return f.SetRowStyle(SheetName, 1, 1, style)
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
