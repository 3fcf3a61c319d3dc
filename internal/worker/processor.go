package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"sharedrop/internal/queue"
	"sharedrop/internal/service"
)

// Processor 把存储事件任务接到生命周期引擎的摄取器上。
type Processor struct {
	ingestor *service.Ingestor
}

func NewProcessor(ingestor *service.Ingestor) *Processor {
	return &Processor{ingestor: ingestor}
}

// Handler 注册 worker 进程处理的全部任务类型。
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ObjectCreatedTask, p.handleObjectCreated)
	return mux
}

// handleObjectCreated 返回非 nil 错误时 asynq 会按重试策略重新投递。
func (p *Processor) handleObjectCreated(ctx context.Context, task *asynq.Task) error {
	var payload queue.ObjectCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.ingestor.OnObjectCreated(ctx, payload.ObjectKey)
}
