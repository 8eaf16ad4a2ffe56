// Package validate checks submissions before any side effect happens. Field
// rules live as struct tags on model.SubmissionRecord and are enforced with
// go-playground/validator.
package validate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

var (
	// ErrInvalidPhoto is returned for photos that are not an inline PNG/JPEG.
	ErrInvalidPhoto = errors.New("photo must be a base64 PNG or JPEG data URL")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// FieldError names one rejected field using its JSON name.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Error collects every field that failed validation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field+" ("+f.Rule+")")
	}
	return "invalid submission: " + strings.Join(names, ", ")
}

// Normalize returns a copy of rec with surrounding whitespace removed from
// every text field, so "required" does not accept blank input.
func Normalize(rec model.SubmissionRecord) model.SubmissionRecord {
	out := rec
	for _, f := range []*string{
		&out.AdmissionNo, &out.ReferenceNo, &out.CourseName, &out.Department,
		&out.Duration, &out.FromDate, &out.ToDate, &out.CourseFees,
		&out.ApplicantName, &out.DateOfBirth, &out.Gender, &out.FatherName,
		&out.MotherName, &out.Address, &out.Mobile, &out.Email,
		&out.IdentityNo, &out.CasteCategory, &out.Photo,
	} {
		*f = strings.TrimSpace(*f)
	}
	if rec.Education != nil {
		out.Education = make([]model.Education, len(rec.Education))
		for i, e := range rec.Education {
			out.Education[i] = model.Education{
				Course:     strings.TrimSpace(e.Course),
				School:     strings.TrimSpace(e.School),
				Spec:       strings.TrimSpace(e.Spec),
				Year:       strings.TrimSpace(e.Year),
				Percentage: strings.TrimSpace(e.Percentage),
			}
		}
	}
	return out
}

// Submission validates a normalized record. It returns *Error for rule
// violations and wraps ErrInvalidPhoto for a malformed photo.
func Submission(rec model.SubmissionRecord) error {
	var out Error
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate submission: %w", err)
		}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{Field: jsonName(fe.StructField()), Rule: fe.Tag()})
		}
	}
	if rec.Photo != "" {
		if err := Photo(rec.Photo); err != nil {
			out.Fields = append(out.Fields, FieldError{Field: "photo", Rule: "image"})
		}
	}
	if len(out.Fields) > 0 {
		return &out
	}
	return nil
}

// Photo checks that a data URL carries a PNG or JPEG image and that the
// declared type matches the decoded bytes.
func Photo(dataURL string) error {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return ErrInvalidPhoto
	}
	declared := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if declared != "image/png" && declared != "image/jpeg" {
		return ErrInvalidPhoto
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) == 0 {
		return ErrInvalidPhoto
	}
	if sniffed := http.DetectContentType(raw); sniffed != declared {
		return fmt.Errorf("%w: declared %s, content is %s", ErrInvalidPhoto, declared, sniffed)
	}
	return nil
}

var jsonNames = map[string]string{
	"CourseName":    "courseName",
	"FromDate":      "fromDate",
	"ToDate":        "toDate",
	"ApplicantName": "applicantName",
	"FatherName":    "fatherName",
	"Email":         "email",
	"Education":     "education",
}

func jsonName(field string) string {
	if name, ok := jsonNames[field]; ok {
		return name
	}
	return field
}
