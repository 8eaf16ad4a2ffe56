// Package repository records submissions and flush reports in Postgres. The
// audit trail is append-only and never read back on the request path.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
)

// ErrNotFound wraps pgx.ErrNoRows for callers outside this package.
var ErrNotFound = errors.New("audit row not found")

// SubmissionRow mirrors one accepted submission.
type SubmissionRow struct {
	ID                string    `json:"id"`
	ApplicantName     string    `json:"applicantName"`
	Email             string    `json:"email"`
	CourseName        string    `json:"courseName"`
	CertificatePath   string    `json:"certificatePath"`
	ApplicationPath   string    `json:"applicationPath"`
	ConfirmationError *string   `json:"confirmationError,omitempty"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

// AuditRepository wraps all SQL used by the audit hooks.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs a repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// RecordSubmission inserts a submission row. Replays of the same id are
// ignored.
func (r *AuditRepository) RecordSubmission(ctx context.Context, row SubmissionRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (id, applicant_name, email, course_name, certificate_path, application_path, confirmation_error, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, row.ID, row.ApplicantName, row.Email, row.CourseName, row.CertificatePath, row.ApplicationPath, row.ConfirmationError, row.SubmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetSubmission returns one submission by id.
func (r *AuditRepository) GetSubmission(ctx context.Context, id string) (*SubmissionRow, error) {
	var row SubmissionRow
	err := r.pool.QueryRow(ctx, `
		SELECT id, applicant_name, email, course_name, certificate_path, application_path, confirmation_error, submitted_at
		FROM submissions WHERE id=$1
	`, id).Scan(&row.ID, &row.ApplicantName, &row.Email, &row.CourseName, &row.CertificatePath, &row.ApplicationPath, &row.ConfirmationError, &row.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return &row, nil
}

// RecordFlush inserts a flush report.
func (r *AuditRepository) RecordFlush(ctx context.Context, rep batch.Report) error {
	var errMsg *string
	if rep.Error != "" {
		errMsg = &rep.Error
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flush_reports (id, trigger, outcome, refs, submissions, remaining, error_message, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, rep.ID, rep.Trigger, string(rep.Outcome), rep.Refs, rep.Submissions, rep.Remaining, errMsg, rep.StartedAt.UTC(), rep.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert flush report: %w", err)
	}
	return nil
}

// RecentFlushes returns the latest reports, newest first.
func (r *AuditRepository) RecentFlushes(ctx context.Context, limit int) ([]batch.Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trigger, outcome, refs, submissions, remaining, COALESCE(error_message,''), started_at, finished_at
		FROM flush_reports ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select flush reports: %w", err)
	}
	defer rows.Close()

	var out []batch.Report
	for rows.Next() {
		var (
			rep     batch.Report
			outcome string
		)
		if err := rows.Scan(&rep.ID, &rep.Trigger, &outcome, &rep.Refs, &rep.Submissions, &rep.Remaining, &rep.Error, &rep.StartedAt, &rep.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan flush report: %w", err)
		}
		rep.Outcome = batch.Outcome(outcome)
		out = append(out, rep)
	}
	return out, rows.Err()
}
