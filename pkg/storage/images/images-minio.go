package images

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinioConfig locates an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBase overrides the URL prefix handed out for stored objects, as when a CDN sits in front of the bucket
	PublicBase string
}

// MinioStorage is a Bucket backed by MinIO or any S3 compatible service.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	publicBase string
	logger     logrus.FieldLogger
}

// NewMinio connects to the endpoint and creates the bucket when it's missing.
func NewMinio(ctx context.Context, logger logrus.FieldLogger, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		logger.WithField("bucket", cfg.Bucket).Info("creating images bucket")
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	var publicBase = cfg.PublicBase
	if publicBase == "" {
		var scheme = "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStorage{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimSuffix(publicBase, "/"),
		logger:     logger,
	}, nil
}

func (m *MinioStorage) Upload(ctx context.Context, objectPath string, content io.Reader, size int64, contentType string) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	info, err := m.client.PutObject(ctx, m.bucket, clean, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", clean, err)
	}
	m.logger.WithFields(logrus.Fields{"path": clean, "size": info.Size}).Debug("image stored")
	return nil
}

func (m *MinioStorage) PublicURL(objectPath string) string {
	return joinURL(m.publicBase, objectPath)
}
