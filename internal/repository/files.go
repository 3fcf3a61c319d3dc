package repository

import (
	"context"
	"time"
)

// FileStatus 描述文件记录的生命周期状态。
type FileStatus string

const (
	FileStatusUploading FileStatus = "uploading"
	FileStatusReady     FileStatus = "ready"
	// FileStatusExpired 仅为兼容历史数据保留；过期一律在读取时按 expiresAt 推导，
	// 不再写入存储。
	FileStatusExpired FileStatus = "expired"
	FileStatusDeleted FileStatus = "deleted"
)

// FileRecord 代表元数据表中的一条文件记录。
// 主键由 (ownerID, fileID) 推导，fileID 上的二级索引支持公开查询。
type FileRecord struct {
	FileID           string
	OwnerID          string
	OwnerEmail       string
	OriginalFileName string
	ContentType      string
	SizeBytes        int64
	Status           FileStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ReadyAt          *time.Time
	DeletedAt        *time.Time
	DownloadCount    int64
	DownloadedAt     *time.Time
	PasswordRequired bool
	StorageKeyPrefix string
}

// FileRepository 统一元数据持久层接口。
// 条件更新由存储层串行化并发写入：前置条件不满足时返回 ErrConditionFailed，
// 调用方据此区分输掉竞争与真正的存储故障。
type FileRepository interface {
	// Create 插入一条新记录；fileID 冲突视为存储层错误。
	Create(ctx context.Context, record *FileRecord) error

	// GetByOwner 按属主主键查询。记录不在该属主分区下时返回 ErrNotFound。
	GetByOwner(ctx context.Context, ownerID, fileID string) (*FileRecord, error)

	// GetByFileID 按二级索引查询，与属主无关。
	GetByFileID(ctx context.Context, fileID string) (*FileRecord, error)

	// ListByOwner 返回属主分区下的全部文件记录。
	ListByOwner(ctx context.Context, ownerID string) ([]FileRecord, error)

	// MarkReady 仅当当前状态为 uploading 时置为 ready 并记录 readyAt。
	MarkReady(ctx context.Context, ownerID, fileID string, readyAt time.Time) error

	// MarkDeleted 无条件置为 deleted 并记录 deletedAt，重复调用幂等。
	MarkDeleted(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error

	// RecordDownload 仅当当前状态为 ready 时递增下载计数并记录 downloadedAt。
	RecordDownload(ctx context.Context, ownerID, fileID string, downloadedAt time.Time) error
}
