package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPresigner struct{}

func (failingPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*aws.PresignedHTTPRequest, error) {
	return nil, errors.New("no credentials")
}

func TestSignImageURL(t *testing.T) {
	client := s3.NewFromConfig(aws.Config{
		Region:      "af-south-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	})
	s := newS3Storage("jubabuy-images", 10*time.Minute, s3.NewPresignClient(client))

	url, err := s.SignImageURL(context.Background(), "/listings/D1/front.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "jubabuy-images")
	assert.Contains(t, url, "listings/D1/front.jpg")
	assert.Contains(t, url, "X-Amz-Expires=600")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestSignImageURL_Errors(t *testing.T) {
	s := newS3Storage("b", 0, failingPresigner{})
	assert.Equal(t, 15*time.Minute, s.ttl)

	_, err := s.SignImageURL(context.Background(), "")
	assert.ErrorContains(t, err, "empty object key")

	_, err = s.SignImageURL(context.Background(), "k.jpg")
	assert.ErrorContains(t, err, "no credentials")
}
