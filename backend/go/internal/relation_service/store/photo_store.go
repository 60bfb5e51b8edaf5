package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// PhotoUploader defines the interface for relation portrait storage.
type PhotoUploader interface {
	Upload(ctx context.Context, email, filename, contentType string, r io.Reader, size int64) (string, error)
}

// MinioPhotoStore is an implementation of PhotoUploader using MinIO.
type MinioPhotoStore struct {
	client *minio.Client
	bucket string
}

// NewMinioPhotoStore creates a new MinioPhotoStore.
func NewMinioPhotoStore(client *minio.Client, bucket string) *MinioPhotoStore {
	return &MinioPhotoStore{client: client, bucket: bucket}
}

// Upload 将照片上传到 MinIO 并返回对象路径，该路径随后写入 relation.photo。
// 对象名使用 uuid 避免冲突，按用户 email 分目录。
func (p *MinioPhotoStore) Upload(ctx context.Context, email, filename, contentType string, r io.Reader, size int64) (string, error) {
	if err := p.ensureBucketExists(ctx); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/%s%s", email, uuid.New().String(), filepath.Ext(filename))

	_, err := p.client.PutObject(ctx, p.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object to MinIO: %w", err)
	}

	return fmt.Sprintf("%s/%s", p.bucket, objectName), nil
}

// ensureBucketExists 检查存储桶是否存在，如果不存在则创建它。
func (p *MinioPhotoStore) ensureBucketExists(ctx context.Context) error {
	found, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket '%s' exists: %w", p.bucket, err)
	}
	if !found {
		err = p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket '%s': %w", p.bucket, err)
		}
	}
	return nil
}
