package model

import (
	"path/filepath"
	"time"
)

// ArtifactKind tags a generated document. Declaring it as a named string type
// keeps kinds from being confused with arbitrary strings.
type ArtifactKind string

const (
	KindCertificate     ArtifactKind = "certificate"
	KindApplicationForm ArtifactKind = "application-form"
)

// ArtifactRef points at one generated document. It is produced once by the
// document producer and never mutated; ownership moves to the batch buffer on
// append.
type ArtifactRef struct {
	Kind          ArtifactKind `json:"kind"`
	Path          string       `json:"path"`
	SubmissionID  string       `json:"submissionId"`
	ApplicantName string       `json:"applicantName"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// FileName is the attachment name for the artifact.
func (a ArtifactRef) FileName() string {
	return filepath.Base(a.Path)
}

// LedgerExport is a point-in-time copy of the ledger workbook.
type LedgerExport struct {
	FileName string
	Data     []byte
	Rows     int
}

// Batch is the payload of one staff delivery: every ref captured at the cut
// point plus the ledger export taken for it.
type Batch struct {
	ID         string
	CapturedAt time.Time
	Refs       []ArtifactRef
	Ledger     LedgerExport
}

// Submissions counts distinct submissions in the batch. Refs of one
// submission are contiguous, so counting boundaries is enough.
func (b Batch) Submissions() int {
	n := 0
	prev := ""
	for i, ref := range b.Refs {
		if i == 0 || ref.SubmissionID != prev || ref.SubmissionID == "" {
			n++
		}
		prev = ref.SubmissionID
	}
	return n
}
