package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"time"

	"sharedrop/internal/repository"
)

// NewFileRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
// 表采用单表键值设计：主键为 (pk, sk)，pk = "u#"+ownerID，sk = "f#"+fileID，
// file_id 列上的唯一索引充当二级索引。
type FileRepository struct {
	db *sql.DB
}

func ownerPK(ownerID string) string { return "u#" + ownerID }
func fileSK(fileID string) string   { return "f#" + fileID }

const fileSKPrefix = "f#"

var fileSelectColumns = []string{
	"file_id",
	"owner_id",
	"owner_email",
	"original_file_name",
	"content_type",
	"size_bytes",
	"status",
	"created_at",
	"expires_at",
	"ready_at",
	"deleted_at",
	"download_count",
	"downloaded_at",
	"password_required",
	"storage_key_prefix",
}

// Create 插入文件记录。
func (r *FileRepository) Create(ctx context.Context, record *repository.FileRecord) error {
	if record == nil {
		return fmt.Errorf("file record is nil")
	}

	query := `INSERT INTO file_records
	(pk, sk, file_id, owner_id, owner_email, original_file_name, content_type,
	 size_bytes, status, created_at, expires_at, download_count, password_required, storage_key_prefix)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		ownerPK(record.OwnerID),
		fileSK(record.FileID),
		record.FileID,
		record.OwnerID,
		record.OwnerEmail,
		record.OriginalFileName,
		record.ContentType,
		record.SizeBytes,
		record.Status,
		record.CreatedAt,
		record.ExpiresAt,
		record.DownloadCount,
		record.PasswordRequired,
		record.StorageKeyPrefix,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// GetByOwner 按 (pk, sk) 主键查询。
func (r *FileRepository) GetByOwner(ctx context.Context, ownerID, fileID string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE pk = $1 AND sk = $2`,
		strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, ownerPK(ownerID), fileSK(fileID))
	return scanFileRecord(row)
}

// GetByFileID 按 file_id 上的二级索引查询，与属主无关。
func (r *FileRepository) GetByFileID(ctx context.Context, fileID string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE file_id = $1`,
		strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, fileID)
	return scanFileRecord(row)
}

// ListByOwner 范围扫描属主分区下带文件前缀的全部记录。
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records
	WHERE pk = $1 AND sk LIKE $2
	ORDER BY created_at DESC`, strings.Join(fileSelectColumns, ","))

	rows, err := r.db.QueryContext(ctx, query, ownerPK(ownerID), fileSKPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// MarkReady 条件更新：仅当当前状态为 uploading。
func (r *FileRepository) MarkReady(ctx context.Context, ownerID, fileID string, readyAt time.Time) error {
	query := `UPDATE file_records SET status = $1, ready_at = $2
	WHERE pk = $3 AND sk = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query,
		repository.FileStatusReady, readyAt,
		ownerPK(ownerID), fileSK(fileID), repository.FileStatusUploading)
	if err != nil {
		return err
	}
	return conditionResult(res)
}

// MarkDeleted 无条件软删除；对已删除记录重复调用同样成功。
func (r *FileRepository) MarkDeleted(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error {
	query := `UPDATE file_records SET status = $1, deleted_at = $2
	WHERE pk = $3 AND sk = $4`
	res, err := r.db.ExecContext(ctx, query,
		repository.FileStatusDeleted, deletedAt,
		ownerPK(ownerID), fileSK(fileID))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordDownload 条件更新：仅当当前状态为 ready，原子递增下载计数。
func (r *FileRepository) RecordDownload(ctx context.Context, ownerID, fileID string, downloadedAt time.Time) error {
	query := `UPDATE file_records
	SET download_count = download_count + 1, downloaded_at = $1
	WHERE pk = $2 AND sk = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query,
		downloadedAt, ownerPK(ownerID), fileSK(fileID), repository.FileStatusReady)
	if err != nil {
		return err
	}
	return conditionResult(res)
}

func conditionResult(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrConditionFailed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(rs rowScanner) (*repository.FileRecord, error) {
	var (
		rec          repository.FileRecord
		readyAt      sql.NullTime
		deletedAt    sql.NullTime
		downloadedAt sql.NullTime
	)

	if err := rs.Scan(
		&rec.FileID,
		&rec.OwnerID,
		&rec.OwnerEmail,
		&rec.OriginalFileName,
		&rec.ContentType,
		&rec.SizeBytes,
		&rec.Status,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&readyAt,
		&deletedAt,
		&rec.DownloadCount,
		&downloadedAt,
		&rec.PasswordRequired,
		&rec.StorageKeyPrefix,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if readyAt.Valid {
		rec.ReadyAt = &readyAt.Time
	}
	if deletedAt.Valid {
		rec.DeletedAt = &deletedAt.Time
	}
	if downloadedAt.Valid {
		rec.DownloadedAt = &downloadedAt.Time
	}

	return &rec, nil
}
