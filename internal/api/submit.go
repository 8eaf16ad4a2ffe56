package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dharsanguruparan/RegiDesk/internal/intake"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/validate"
)

const (
	msgSuccess     = "Registration successful! You will receive a confirmation email shortly."
	msgInvalid     = "Please fill in all required fields correctly."
	msgServerError = "An error occurred on the server."
	msgTooMany     = "Too many submissions, please try again shortly."
	msgTooLarge    = "Submission is too large."
)

type submitResponse struct {
	Message      string                `json:"message"`
	SubmissionID string                `json:"submissionId,omitempty"`
	Error        intake.Cause          `json:"error,omitempty"`
	Fields       []validate.FieldError `json:"fields,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var rec model.SubmissionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, submitResponse{Message: msgTooLarge, Error: intake.CauseValidation})
			return
		}
		respondJSON(w, http.StatusBadRequest, submitResponse{Message: "Invalid request body.", Error: intake.CauseValidation})
		return
	}

	// A client that disconnects while its PDFs print must not leave a
	// half-finished submission behind.
	receipt, err := s.deps.Intake.Submit(context.WithoutCancel(r.Context()), rec)
	if err != nil {
		var se *intake.StepError
		if !errors.As(err, &se) {
			respondJSON(w, http.StatusInternalServerError, submitResponse{Message: msgServerError})
			return
		}
		if se.Cause == intake.CauseValidation {
			resp := submitResponse{Message: msgInvalid, SubmissionID: se.SubmissionID, Error: se.Cause}
			var verr *validate.Error
			if errors.As(err, &verr) {
				resp.Fields = verr.Fields
			}
			respondJSON(w, http.StatusBadRequest, resp)
			return
		}
		respondJSON(w, http.StatusInternalServerError, submitResponse{Message: msgServerError, SubmissionID: se.SubmissionID, Error: se.Cause})
		return
	}
	respondJSON(w, http.StatusOK, submitResponse{Message: msgSuccess, SubmissionID: receipt.SubmissionID})
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("submission rate limited", "client", r.RemoteAddr)
	respondJSON(w, http.StatusTooManyRequests, submitResponse{Message: msgTooMany})
}
