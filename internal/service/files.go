package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sharedrop/internal/repository"
	"sharedrop/internal/storage"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharedrop_uploads_initiated_total",
		Help: "Total number of upload initiations.",
	})
	downloadsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharedrop_downloads_served_total",
		Help: "Total number of public downloads redirected to storage.",
	})
	filesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharedrop_files_deleted_total",
		Help: "Total number of files soft-deleted by their owners.",
	})
)

// Options 是生命周期引擎的策略配置。
type Options struct {
	KeyPrefix          string // 对象 key 前缀，对象 key = 前缀 + "/" + fileID
	DefaultExpiresDays int    // 未指定时的默认有效期
	MaxExpiresDays     int    // 有效期上限，请求值被夹到 [1, Max]
}

// FileService 是文件生命周期引擎：协调元数据表与对象存储，
// 驱动 uploading → ready → deleted 的状态推进。
type FileService struct {
	repo   repository.FileRepository
	store  storage.Storage
	logger *log.Logger
	opts   Options
}

func NewFileService(repo repository.FileRepository, store storage.Storage, logger *log.Logger, opts Options) *FileService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "files"
	}
	if opts.DefaultExpiresDays <= 0 {
		opts.DefaultExpiresDays = 7
	}
	if opts.MaxExpiresDays <= 0 {
		opts.MaxExpiresDays = 30
	}
	return &FileService{repo: repo, store: store, logger: logger, opts: opts}
}

// InitiateUploadInput 描述发起上传所需的信息。
// ExpiresInDays 为 nil 表示未指定，回退到配置的默认值。
type InitiateUploadInput struct {
	OwnerID       string
	OwnerEmail    string
	FileName      string
	ContentType   string
	SizeBytes     int64
	ExpiresInDays *int
}

// InitiateUploadResult 返回给客户端的直传指引。
type InitiateUploadResult struct {
	FileID    string
	Upload    storage.PresignedUpload
	ExpiresAt time.Time
}

// FileSummary 是对外暴露的固定投影，记录的其余字段永不出表。
type FileSummary struct {
	FileID           string                `json:"fileId"`
	OriginalFileName string                `json:"originalFileName"`
	ContentType      string                `json:"contentType"`
	SizeBytes        int64                 `json:"sizeBytes"`
	Status           repository.FileStatus `json:"status"`
	CreatedAt        time.Time             `json:"createdAt"`
	ExpiresAt        time.Time             `json:"expiresAt"`
	PasswordRequired bool                  `json:"passwordRequired"`
	DownloadCount    int64                 `json:"downloadCount"`
	DownloadedAt     *time.Time            `json:"downloadedAt,omitempty"`
}

// InitiateUpload 创建 uploading 状态的记录并返回预签名上传 URL。
// 此时对象尚不存在，记录要等存储事件到达后才会变为 ready。
func (s *FileService) InitiateUpload(ctx context.Context, input InitiateUploadInput) (*InitiateUploadResult, error) {
	if input.OwnerID == "" {
		return nil, ErrUnauthorized
	}
	if input.FileName == "" {
		return nil, fmt.Errorf("%w: fileName is required", ErrValidation)
	}
	if input.SizeBytes <= 0 {
		return nil, fmt.Errorf("%w: sizeBytes must be positive", ErrValidation)
	}

	days := s.opts.DefaultExpiresDays
	if input.ExpiresInDays != nil {
		days = clampDays(*input.ExpiresInDays, s.opts.MaxExpiresDays)
	}

	now := time.Now().UTC()
	record := &repository.FileRecord{
		FileID:           uuid.NewString(),
		OwnerID:          input.OwnerID,
		OwnerEmail:       input.OwnerEmail,
		OriginalFileName: input.FileName,
		ContentType:      input.ContentType,
		SizeBytes:        input.SizeBytes,
		Status:           repository.FileStatusUploading,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, days),
		StorageKeyPrefix: s.opts.KeyPrefix,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	upload, err := s.store.PresignPut(ctx, objectKey(record.StorageKeyPrefix, record.FileID), record.ContentType)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	uploadsInitiated.Inc()

	return &InitiateUploadResult{
		FileID:    record.FileID,
		Upload:    upload,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// ListForOwner 列出属主分区下的全部文件投影。空列表不是错误。
func (s *FileService) ListForOwner(ctx context.Context, ownerID string) ([]FileSummary, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}

	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	now := time.Now().UTC()
	summaries := make([]FileSummary, 0, len(records))
	for i := range records {
		summaries = append(summaries, summarize(&records[i], now))
	}
	return summaries, nil
}

// GetPublicMetadata 按 fileID 返回公开投影。
// 已删除返回 ErrForbidden；已过期（按当前时间推导）返回 ErrGone。
func (s *FileService) GetPublicMetadata(ctx context.Context, fileID string) (*FileSummary, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: fileId is required", ErrValidation)
	}

	rec, err := s.repo.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get file record: %w", err)
	}

	if rec.Status == repository.FileStatusDeleted {
		return nil, ErrForbidden
	}
	if rec.ExpiresAt.IsZero() {
		// 记录缺少有效期属于数据损坏，绝不静默放行
		return nil, fmt.Errorf("file %s has no expiry", rec.FileID)
	}
	now := time.Now().UTC()
	if now.After(rec.ExpiresAt) {
		return nil, ErrGone
	}

	summary := summarize(rec, now)
	return &summary, nil
}

// PublicDownload 为 ready 状态的文件生成预签名下载 URL。
// 下载计数的条件更新是尽力而为：失败只记日志，不阻断下载。
func (s *FileService) PublicDownload(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("%w: fileId is required", ErrValidation)
	}

	rec, err := s.repo.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get file record: %w", err)
	}

	switch {
	case rec.Status == repository.FileStatusDeleted:
		return "", ErrForbidden
	case rec.Status == repository.FileStatusExpired || time.Now().UTC().After(rec.ExpiresAt):
		return "", ErrGone
	case rec.Status != repository.FileStatusReady:
		// uploading 等未就绪状态不提供部分下载
		return "", ErrNotFound
	}

	// 条件为 status == ready，与并发删除互斥
	if err := s.repo.RecordDownload(ctx, rec.OwnerID, rec.FileID, time.Now().UTC()); err != nil {
		s.logger.Printf("record download for %s failed: %v", rec.FileID, err)
	}

	url, err := s.store.PresignGet(ctx, objectKey(rec.StorageKeyPrefix, rec.FileID), rec.OriginalFileName)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}

	downloadsServed.Inc()
	return url, nil
}

// DeleteFile 按属主主键删除文件。先删对象，成功后才标记元数据，
// 保证记录绝不会在对象可能还存在时就声称 deleted。
func (s *FileService) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	if ownerID == "" {
		return ErrUnauthorized
	}
	if fileID == "" {
		return fmt.Errorf("%w: fileId is required", ErrValidation)
	}

	// 只按属主主键查询：不在自己分区下的记录与不存在的记录不可区分，
	// 统一返回 Forbidden，避免泄露他人文件的存在性。
	rec, err := s.repo.GetByOwner(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("get file record: %w", err)
	}

	if err := s.store.Remove(ctx, objectKey(rec.StorageKeyPrefix, rec.FileID)); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}

	// 无条件更新，使删除幂等：删已删除的文件平凡地成功
	if err := s.repo.MarkDeleted(ctx, ownerID, fileID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}

	filesDeleted.Inc()
	return nil
}

func summarize(rec *repository.FileRecord, now time.Time) FileSummary {
	status := rec.Status
	if status != repository.FileStatusDeleted && now.After(rec.ExpiresAt) {
		status = repository.FileStatusExpired
	}
	return FileSummary{
		FileID:           rec.FileID,
		OriginalFileName: rec.OriginalFileName,
		ContentType:      rec.ContentType,
		SizeBytes:        rec.SizeBytes,
		Status:           status,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		PasswordRequired: rec.PasswordRequired,
		DownloadCount:    rec.DownloadCount,
		DownloadedAt:     rec.DownloadedAt,
	}
}

func clampDays(days, max int) int {
	if days < 1 {
		return 1
	}
	if days > max {
		return max
	}
	return days
}

func objectKey(prefix, fileID string) string {
	return prefix + "/" + fileID
}
