package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Anuj5504/cloudbox/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioStorage stores objects in an S3 compatible bucket. Object keys are the
// record path without its leading slash.
type MinioStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStorage connects to the endpoint and creates the bucket if needed.
func NewMinioStorage(ctx context.Context, cfg config.MinIOConfig, log *zap.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created bucket", zap.String("bucket", cfg.BucketName))
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + cfg.BucketName
	}

	return &MinioStorage{client: client, bucket: cfg.BucketName, publicURL: publicURL}, nil
}

func (s *MinioStorage) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	objPath, err := objectPath(in.Folder, in.FileName)
	if err != nil {
		return nil, err
	}
	key, err := objectKey(objPath)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, in.Body, in.Size, minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &UploadResult{
		Path: objPath,
		URL:  s.publicURL + objPath,
	}, nil
}

func (s *MinioStorage) Delete(ctx context.Context, p string) error {
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// objectKey turns a record path into a bucket key.
func objectKey(p string) (string, error) {
	objPath, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(objPath, "/"), nil
}
