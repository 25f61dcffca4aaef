// Package assets stores uploaded branding assets (company logos) in
// S3-compatible object storage.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sopdesk/api/internal/util"
)

var (
	// ErrUnsupportedType indicates the uploaded file is not a supported image format.
	ErrUnsupportedType = errors.New("assets unsupported content type")
	// ErrTooLarge indicates the uploaded file exceeds the size limit.
	ErrTooLarge = errors.New("assets file too large")
)

// MaxLogoBytes is the upload size limit for logo images.
const MaxLogoBytes = 2 << 20 // 2 MiB

var logoExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
}

// Service stores and serves logo assets.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to the object store and ensures the bucket exists.
func NewService(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// UploadLogo stores a logo image for a user and returns its object key.
func (s *Service) UploadLogo(ctx context.Context, ownerID string, data []byte, contentType string) (string, error) {
	ext, ok := logoExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if len(data) > MaxLogoBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	key := fmt.Sprintf("logos/%s/%s%s", ownerID, util.NewID("logo"), ext)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store logo: %w", err)
	}
	return key, nil
}

// LogoURL returns a time-limited URL for a stored logo, suitable for
// embedding in rendered documents.
func (s *Service) LogoURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, 24*time.Hour, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign logo %s: %w", key, err)
	}
	return u.String(), nil
}

// DeleteLogo removes a stored logo. Deleting a missing key is not an error.
func (s *Service) DeleteLogo(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete logo %s: %w", key, err)
	}
	return nil
}
