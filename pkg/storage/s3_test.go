package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCoverKey(t *testing.T) {
	id := uuid.New()
	key, err := CoverKey(id, "image/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "covers/"+id.String()+"/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	_, err = CoverKey(id, "video/mp4")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPresignUpload_Offline(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region: "us-east-1", AccessKeyID: "AKID", SecretAccessKey: "SECRET", Bucket: "covers-bucket",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.PresignExpire())

	url, err := s.PresignUpload(context.Background(), "covers/x/y.png", "image/png")
	require.NoError(t, err)
	assert.Contains(t, url, "covers-bucket")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}, zap.NewNop())
	assert.Error(t, err)
}
