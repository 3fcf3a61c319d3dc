package s3

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sharedrop/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool // 是否使用 HTTPS
	PutTTL    time.Duration
	GetTTL    time.Duration
}

// Storage 实现了 storage.Storage 接口，使用 S3 兼容存储生成预签名 URL。
type Storage struct {
	client *minio.Client
	bucket string
	putTTL time.Duration
	getTTL time.Duration
}

// New 创建新的 S3 存储实例。
func New(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		putTTL: cfg.PutTTL,
		getTTL: cfg.GetTTL,
	}, nil
}

// PresignPut 生成限时上传 URL。Content-Type 参与签名，
// 客户端必须原样携带声明的请求头，否则上传被存储端拒绝。
func (s *Storage) PresignPut(ctx context.Context, key, contentType string) (storage.PresignedUpload, error) {
	if s == nil || s.client == nil {
		return storage.PresignedUpload{}, fmt.Errorf("s3 storage uninitialized")
	}

	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}

	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, s.putTTL, url.Values{}, headers)
	if err != nil {
		return storage.PresignedUpload{}, fmt.Errorf("presign put object: %w", err)
	}

	upload := storage.PresignedUpload{
		URL:       u.String(),
		Method:    http.MethodPut,
		Headers:   map[string]string{},
		ExpiresAt: time.Now().UTC().Add(s.putTTL),
	}
	if contentType != "" {
		upload.Headers["Content-Type"] = contentType
	}
	return upload, nil
}

// PresignGet 生成限时下载 URL，并通过 response-content-disposition
// 让浏览器以原始文件名保存。
func (s *Storage) PresignGet(ctx context.Context, key, fileName string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 storage uninitialized")
	}

	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.getTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return u.String(), nil
}

// Remove 删除对象。S3 对不存在的 key 返回成功，删除天然幂等。
func (s *Storage) Remove(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 storage uninitialized")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
