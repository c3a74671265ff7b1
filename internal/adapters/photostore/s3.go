// Package photostore stores captured badge photos in S3 and hands back
// durable retrievable URLs.
package photostore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
	cb      *gobreaker.CircuitBreaker
}

var _ ports.PhotoStorage = (*S3Store)(nil)

func NewS3Store(client *s3.Client, bucket, baseURL string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		cb:      config.NewCircuitBreaker("S3-Photos"),
	}
}

// StorePhoto uploads the encoded still under a per-visitor key and returns
// its retrievable URL.
func (s *S3Store) StorePhoto(ctx context.Context, visitorID string, photo domain.CapturedPhoto) (string, error) {
	ext := "jpg"
	if photo.ContentType == "image/png" {
		ext = "png"
	}
	objectKey := fmt.Sprintf("photos/%s/%s.%s", visitorID, uuid.NewString(), ext)

	_, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(objectKey),
			Body:        bytes.NewReader(photo.Data),
			ContentType: aws.String(photo.ContentType),
		})
	})
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + objectKey, nil
}
