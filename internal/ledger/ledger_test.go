package ledger

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func sample(name string) model.SubmissionRecord {
	return model.SubmissionRecord{
		ApplicantName: name,
		FatherName:    "Father of " + name,
		Email:         "a@example.com",
		CourseName:    "Tool Design",
		FromDate:      "01.11.2026",
		ToDate:        "30.11.2026",
		Education: []model.Education{
			{Course: "SSC", School: "ZPHS", Year: "2018", Percentage: "91"},
			{Course: "Diploma", School: "GPT", Spec: "Mech", Year: "2021", Percentage: "78"},
		},
		SubmittedAt: time.Date(2026, 10, 16, 5, 15, 30, 0, time.UTC),
	}
}

func TestHeadersOrder(t *testing.T) {
	h := Headers()
	require.Len(t, h, 29)
	assert.Equal(t, "Admission No", h[0])
	assert.Equal(t, "Submission Date", h[16])
	assert.Equal(t, "Edu 2 Perc", h[28])
}

func TestRowFormatsTimestampInZone(t *testing.T) {
	row := Row(sample("Jane Doe"), sample("").SubmittedAt, kolkata(t))
	assert.Equal(t, "16/10/2026, 10:45:30 am", row[16])
	assert.Equal(t, "Jane Doe", row[5])
	assert.Equal(t, "Mech", row[26])
}

func TestAppendCreatesWorkbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "registrations.xlsx")
	store, err := NewStore(path, kolkata(t))
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, sample("Jane Doe")))
	require.NoError(t, store.Append(ctx, sample("Ravi Kumar")))

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Jane Doe", records[0]["Applicant Name"])
	assert.Equal(t, "Ravi Kumar", records[1]["Applicant Name"])
	assert.Equal(t, "", records[0]["Admission No"])
	assert.Equal(t, "91", records[1]["Edu 1 Perc"])
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "registrations.xlsx"), time.UTC)
	require.NoError(t, err)

	empty, err := store.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Rows)
	assert.Equal(t, "registrations.xlsx", empty.FileName)
	assert.NotEmpty(t, empty.Data)

	require.NoError(t, store.Append(ctx, sample("Jane Doe")))
	export, err := store.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, export.Rows)

	f, err := excelize.OpenReader(bytes.NewReader(export.Data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := ReadRows(f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jane Doe", rows[0]["Applicant Name"])
}

func TestConcurrentAppendsKeepEveryRow(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "registrations.xlsx"), time.UTC)
	require.NoError(t, err)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, sample(fmt.Sprintf("Applicant %02d", i))))
		}(i)
	}
	wg.Wait()

	records, err := store.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestAppendCancelled(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "registrations.xlsx"), time.UTC)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Append(ctx, sample("x")), context.Canceled)
}
