package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/repository"
	"github.com/dharsanguruparan/RegiDesk/internal/s3storage"
)

const (
	recentFlushes = 10
	maxFlushes    = 200
	presignExpiry = 15 * time.Minute
)

// BatchStatus is the body of GET /admin/batch.
type BatchStatus struct {
	PendingRefs        int            `json:"pendingRefs"`
	PendingSubmissions int            `json:"pendingSubmissions"`
	Flushing           bool           `json:"flushing"`
	NextFlushes        []time.Time    `json:"nextFlushes"`
	RecentFlushes      []batch.Report `json:"recentFlushes"`
}

// SubmissionDetail is the body of GET /admin/submissions/{id}.
type SubmissionDetail struct {
	repository.SubmissionRow
	CertificateURL string `json:"certificateUrl,omitempty"`
	ApplicationURL string `json:"applicationUrl,omitempty"`
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Signer.VerifyRequest(r); err != nil {
			s.logger.Warn("admin request rejected", "path", r.URL.Path, "err", err)
			respondJSON(w, http.StatusUnauthorized, map[string]string{"message": err.Error()})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Batch.Pending()
	status := BatchStatus{
		PendingRefs:        len(pending),
		PendingSubmissions: model.Batch{Refs: pending}.Submissions(),
		Flushing:           s.deps.Batch.Flushing(),
		NextFlushes:        []time.Time{},
		RecentFlushes:      []batch.Report{},
	}
	if s.deps.Schedule != nil {
		status.NextFlushes = s.deps.Schedule.Next(time.Now())
	}
	if s.deps.History != nil {
		status.RecentFlushes = s.deps.History.Recent(recentFlushes)
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Batch.DrainAndSend(r.Context(), "admin")
	switch {
	case errors.Is(err, batch.ErrFlushInProgress):
		respondJSON(w, http.StatusConflict, report)
	case err != nil:
		respondJSON(w, http.StatusBadGateway, report)
	default:
		respondJSON(w, http.StatusOK, report)
	}
}

// handleFlushes prefers the persisted audit trail, which survives restarts,
// and falls back to the in-memory history.
func (s *Server) handleFlushes(w http.ResponseWriter, r *http.Request) {
	limit := recentFlushes
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"message": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxFlushes)
	}
	reports := []batch.Report{}
	switch {
	case s.deps.Audit != nil:
		stored, err := s.deps.Audit.RecentFlushes(r.Context(), limit)
		if err != nil {
			s.logger.Error("audit flush listing failed", "err", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "audit lookup failed"})
			return
		}
		reports = append(reports, stored...)
	case s.deps.History != nil:
		reports = append(reports, s.deps.History.Recent(limit)...)
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleFlushReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "flush history not configured"})
		return
	}
	report, err := s.deps.History.Get(r.PathValue("id"))
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "flush report not found"})
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	export, err := s.deps.Ledger.Export(r.Context())
	if err != nil {
		s.logger.Error("ledger export failed", "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "ledger export failed"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.Header().Set("X-Ledger-Rows", strconv.Itoa(export.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"message": "audit trail not configured"})
		return
	}
	row, err := s.deps.Audit.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]string{"message": "submission not found"})
			return
		}
		s.logger.Error("audit lookup failed", "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "audit lookup failed"})
		return
	}
	detail := SubmissionDetail{SubmissionRow: *row}
	if s.deps.Archive != nil {
		cert := model.ArtifactRef{SubmissionID: row.ID, Path: row.CertificatePath}
		form := model.ArtifactRef{SubmissionID: row.ID, Path: row.ApplicationPath}
		detail.CertificateURL, _ = s.deps.Archive.PresignURL(r.Context(), s3storage.ArtifactKey(cert), presignExpiry)
		detail.ApplicationURL, _ = s.deps.Archive.PresignURL(r.Context(), s3storage.ArtifactKey(form), presignExpiry)
	}
	respondJSON(w, http.StatusOK, detail)
}
