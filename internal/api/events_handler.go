package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"

	"sharedrop/internal/queue"
)

// EventsHandler 接收对象存储的桶通知 webhook，逐条入队交给 worker 处理。
type EventsHandler struct {
	enqueuer queue.Enqueuer
	logger   *log.Logger
}

func NewEventsHandler(enqueuer queue.Enqueuer, logger *log.Logger) *EventsHandler {
	return &EventsHandler{enqueuer: enqueuer, logger: logger}
}

// storageEvent 对应 S3 兼容的桶通知载荷，只取需要的字段。
type storageEvent struct {
	Records []struct {
		S3 struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// StorageEvent 处理 POST /events/storage。
// 入队失败返回 500，让通知方按自己的策略重发整个 webhook。
func (h *EventsHandler) StorageEvent(w http.ResponseWriter, r *http.Request) {
	// 通知载荷携带大量无关字段，这里用宽松解码，只认 Records
	var event storageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	if len(event.Records) == 0 {
		writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"accepted": 0}})
		return
	}

	accepted := 0
	for _, rec := range event.Records {
		key := decodeObjectKey(rec.S3.Object.Key)
		if key == "" {
			continue
		}
		err := queue.EnqueueObjectCreated(r.Context(), h.enqueuer, queue.ObjectCreatedPayload{ObjectKey: key})
		if err != nil {
			h.logger.Printf("enqueue object-created for %q failed: %v", key, err)
			writeError(w, http.StatusInternalServerError, "failed to queue event")
			return
		}
		accepted++
	}

	writeJSON(w, http.StatusAccepted, envelope{Data: map[string]any{"accepted": accepted}})
}

// decodeObjectKey 还原通知里可能被 URL 编码的对象 key。
// 解码失败时保留原样，key 本身是 UUID 时编码几乎不会发生。
func decodeObjectKey(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
