package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sharedrop/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var objectsMarkedReady = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sharedrop_objects_marked_ready_total",
	Help: "Total number of file records transitioned to ready by storage events.",
})

// Ingestor 消费对象存储的 object-created 通知并推进生命周期状态。
// 通知可能重复投递，也可能跨文件乱序；处理必须幂等。
type Ingestor struct {
	repo      repository.FileRepository
	logger    *log.Logger
	keyPrefix string
}

func NewIngestor(repo repository.FileRepository, logger *log.Logger, keyPrefix string) *Ingestor {
	if keyPrefix == "" {
		keyPrefix = "files"
	}
	return &Ingestor{repo: repo, logger: logger, keyPrefix: keyPrefix}
}

// OnObjectCreated 处理一条通知。返回非 nil 错误表示瞬态故障，
// 调用方应当重新投递；其余情况（无关 key、记录缺失、重复投递）均为 no-op。
func (i *Ingestor) OnObjectCreated(ctx context.Context, objectKey string) error {
	fileID, ok := fileIDFromObjectKey(i.keyPrefix, objectKey)
	if !ok {
		// 桶里可能有本系统之外的对象
		i.logger.Printf("ignoring object key %q (not under prefix %q)", objectKey, i.keyPrefix)
		return nil
	}

	rec, err := i.repo.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 通知可能跑在应用侧记账前面，或指向外部写入的对象
			i.logger.Printf("no file record for fileId=%s, skipping", fileID)
			return nil
		}
		return fmt.Errorf("get file record: %w", err)
	}

	if err := i.repo.MarkReady(ctx, rec.OwnerID, rec.FileID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			// 记录已不在 uploading：重复投递或已被删除，安全跳过
			i.logger.Printf("fileId=%s no longer uploading, skipping mark-ready", fileID)
			return nil
		}
		return fmt.Errorf("mark ready: %w", err)
	}

	objectsMarkedReady.Inc()
	i.logger.Printf("fileId=%s marked ready", fileID)
	return nil
}

// fileIDFromObjectKey 期望 key 形如 <prefix>/<fileId>，不允许更深的路径层级。
func fileIDFromObjectKey(prefix, key string) (string, bool) {
	rest, found := strings.CutPrefix(key, prefix+"/")
	if !found || rest == "" {
		return "", false
	}
	if strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
