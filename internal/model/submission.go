// Package model contains simple struct definitions shared across packages.
package model

import (
	"strings"
	"time"
)

// MaxEducationEntries bounds the education history carried by one submission;
// the ledger and the application form both have exactly two rows for it.
const MaxEducationEntries = 2

// Education is one row of the applicant's education history. Struct tags keep
// the wire names used by the registration frontend.
type Education struct {
	Course     string `json:"course"`
	School     string `json:"school"`
	Spec       string `json:"spec"`
	Year       string `json:"year"`
	Percentage string `json:"perc"`
}

// SubmissionRecord is the normalized form data for one applicant. It is built
// once per request and never mutated afterwards; helpers below return values
// instead of editing the record in place.
type SubmissionRecord struct {
	ID string `json:"-"`

	AdmissionNo   string `json:"admission_no"`
	ReferenceNo   string `json:"sdmis_ref_no"`
	CourseName    string `json:"courseName" validate:"required"`
	Department    string `json:"department"`
	Duration      string `json:"duration"`
	FromDate      string `json:"fromDate" validate:"required"`
	ToDate        string `json:"toDate" validate:"required"`
	CourseFees    string `json:"course_fees"`
	ApplicantName string `json:"applicantName" validate:"required"`
	DateOfBirth   string `json:"dob"`
	Gender        string `json:"gender"`
	FatherName    string `json:"fatherName" validate:"required"`
	MotherName    string `json:"motherName"`
	Address       string `json:"address"`
	Mobile        string `json:"mobile"`
	Email         string `json:"email" validate:"required,email"`
	IdentityNo    string `json:"aadhar"`
	CasteCategory string `json:"casteCategory"`
	// Photo is an optional image data URL embedded by the frontend.
	Photo     string      `json:"photo,omitempty"`
	Education []Education `json:"education" validate:"max=2"`

	// SubmittedAt is assigned when the ledger row is written.
	SubmittedAt time.Time `json:"-"`
}

// EducationAt returns the i-th education entry or an empty one when the
// applicant supplied fewer rows.
func (r SubmissionRecord) EducationAt(i int) Education {
	if i < 0 || i >= len(r.Education) {
		return Education{}
	}
	return r.Education[i]
}

// CasteCategories splits the comma separated caste field as sent by the form.
func (r SubmissionRecord) CasteCategories() []string {
	if strings.TrimSpace(r.CasteCategory) == "" {
		return nil
	}
	parts := strings.Split(r.CasteCategory, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FileSafeName turns the applicant name into a token usable in file names,
// replacing runs of whitespace with a single underscore.
func (r SubmissionRecord) FileSafeName() string {
	name := strings.Join(strings.Fields(r.ApplicantName), "_")
	if name == "" {
		return "applicant"
	}
	return strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == 0 {
			return '-'
		}
		return c
	}, name)
}
