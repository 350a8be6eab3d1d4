package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "exports/evt-1/1772355600.csv", ExportKey("evt-1", at))
}

func TestS3Config_Enabled(t *testing.T) {
	assert.False(t, S3Config{}.Enabled())
	assert.True(t, S3Config{ExportsBucket: "rosters"}.Enabled())
}

func TestPresignedDownloadURL_SignsOffline(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region:               "eu-west-1",
		AccessKeyID:          "AKIDEXAMPLE",
		SecretAccessKey:      "secret",
		ExportsBucket:        "rosters",
		PresignExpireMinutes: 5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.PresignExpire())

	url, err := s.PresignedDownloadURL(context.Background(), "exports/evt-1/1.csv")
	require.NoError(t, err)
	assert.Contains(t, url, "rosters")
	assert.Contains(t, url, "exports/evt-1/1.csv")
	assert.Contains(t, url, "X-Amz-Expires=300")
}
