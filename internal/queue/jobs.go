package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ObjectCreatedTask 在每收到一条存储桶通知记录时入队一次。
	ObjectCreatedTask = "file:object_created"
)

// Enqueuer 抽象任务入队，*asynq.Client 即是实现。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ObjectCreatedPayload 携带触发通知的对象 key。
type ObjectCreatedPayload struct {
	ObjectKey string `json:"object_key"`
}

// EnqueueObjectCreated 将一条 object-created 通知入队，由 worker 异步处理。
func EnqueueObjectCreated(ctx context.Context, client Enqueuer, payload ObjectCreatedPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ObjectCreatedTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue object-created task: %w", err)
	}
	return nil
}
