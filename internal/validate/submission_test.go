package validate

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func validRecord() model.SubmissionRecord {
	return model.SubmissionRecord{
		ApplicantName: "Jane Doe",
		FatherName:    "John Doe",
		Email:         "jane@example.com",
		CourseName:    "CNC Programming",
		FromDate:      "2026-11-01",
		ToDate:        "2026-11-30",
	}
}

func TestSubmissionValid(t *testing.T) {
	require.NoError(t, Submission(validRecord()))
}

func TestSubmissionMissingFields(t *testing.T) {
	rec := Normalize(model.SubmissionRecord{ApplicantName: "   ", Email: "nope"})

	err := Submission(rec)
	var verr *Error
	require.ErrorAs(t, err, &verr)

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Rule
	}
	assert.Equal(t, "required", fields["applicantName"])
	assert.Equal(t, "required", fields["fatherName"])
	assert.Equal(t, "email", fields["email"])
	assert.Contains(t, fields, "courseName")
	assert.Contains(t, fields, "fromDate")
	assert.Contains(t, fields, "toDate")
}

func TestSubmissionTooManyEducationRows(t *testing.T) {
	rec := validRecord()
	rec.Education = make([]model.Education, 3)

	var verr *Error
	require.ErrorAs(t, Submission(rec), &verr)
	assert.Equal(t, []FieldError{{Field: "education", Rule: "max"}}, verr.Fields)
}

func TestPhoto(t *testing.T) {
	good := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngPixel)
	require.NoError(t, Photo(good))

	for name, in := range map[string]string{
		"not a data url": "https://example.com/me.png",
		"wrong type":     "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hi")),
		"bad base64":     "data:image/png;base64,@@@",
		"lying header":   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(pngPixel),
	} {
		err := Photo(in)
		assert.True(t, errors.Is(err, ErrInvalidPhoto), name)
	}

	rec := validRecord()
	rec.Photo = "data:image/png;base64,@@@"
	var verr *Error
	require.ErrorAs(t, Submission(rec), &verr)
	assert.Equal(t, "photo", verr.Fields[0].Field)
}

func TestNormalizeDoesNotAlias(t *testing.T) {
	rec := validRecord()
	rec.Education = []model.Education{{Course: "  B.Tech "}}

	out := Normalize(rec)
	assert.Equal(t, "B.Tech", out.Education[0].Course)
	assert.Equal(t, "  B.Tech ", rec.Education[0].Course)
}
