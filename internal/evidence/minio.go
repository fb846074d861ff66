package evidence

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fieldline/internal/config"
)

// MinioBlobs stores blobs in an S3-compatible bucket. References are object keys.
type MinioBlobs struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobs connects and creates the bucket if it does not exist.
func NewMinioBlobs(ctx context.Context, cfg config.MinioConfig) (*MinioBlobs, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioBlobs{client: client, bucket: cfg.Bucket}, nil
}

func (b *MinioBlobs) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	if size <= 0 {
		size = -1
	}
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (b *MinioBlobs) Remove(ctx context.Context, ref string) error {
	if _, err := b.client.StatObject(ctx, b.bucket, ref, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrBlobMissing
		}
		return err
	}
	return b.client.RemoveObject(ctx, b.bucket, ref, minio.RemoveObjectOptions{})
}

func (b *MinioBlobs) Bucket() string {
	return b.bucket
}
