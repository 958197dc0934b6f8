// Package avatar stores profile pictures in S3-compatible object storage.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ledgerboard/api/internal/util"
)

const MaxBytes = 2 << 20

var (
	ErrTooLarge        = errors.New("avatar exceeds 2 MiB")
	ErrUnsupportedType = errors.New("avatar must be a PNG, JPEG, GIF or WebP image")
	ErrEmpty           = errors.New("avatar file is empty")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes object keys in returned URLs; defaults to the
	// endpoint plus bucket.
	PublicURL string
}

type Store struct {
	client    objectStore
	bucket    string
	publicURL string
}

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = (&url.URL{Scheme: scheme, Host: cfg.Endpoint, Path: "/" + cfg.Bucket}).String()
	}

	s := &Store{client: client, bucket: cfg.Bucket, publicURL: publicURL}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Validate checks the declared content type and size before any upload.
func Validate(contentType string, size int64) (string, error) {
	if size <= 0 {
		return "", ErrEmpty
	}
	if size > MaxBytes {
		return "", ErrTooLarge
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := extensions[mediaType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

// Upload writes the image under avatars/<userID>/ and returns its public URL.
func (s *Store) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	ext, err := Validate(contentType, size)
	if err != nil {
		return "", err
	}

	key := path.Join("avatars", userID, util.NewID("")+ext)
	if _, err := s.client.PutObject(ctx, s.bucket, key, io.LimitReader(body, MaxBytes), size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return s.publicURL + "/" + key, nil
}
