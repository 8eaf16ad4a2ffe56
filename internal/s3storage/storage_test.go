package s3storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

func TestKeys(t *testing.T) {
	ref := model.ArtifactRef{SubmissionID: "abc", Path: "/srv/output/Certificate-Jane_Doe-1.pdf"}
	assert.Equal(t, "artifacts/abc/Certificate-Jane_Doe-1.pdf", ArtifactKey(ref))
	assert.Equal(t, "ledger/batch-1.xlsx", LedgerKey("batch-1"))
}

func TestPresignIsOffline(t *testing.T) {
	s, err := New(config.S3Config{
		Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio123",
		Region: "us-east-1", Bucket: "regidesk",
	})
	require.NoError(t, err)

	u, err := s.PresignURL(context.Background(), LedgerKey("b1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/regidesk/ledger/b1.xlsx?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
}
