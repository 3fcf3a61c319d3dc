package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sharedrop/internal/queue"

	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestEventsHandler(enq queue.Enqueuer) *EventsHandler {
	return NewEventsHandler(enq, log.New(io.Discard, "", 0))
}

func postEvent(h *EventsHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events/storage", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.StorageEvent(rec, req)
	return rec
}

func TestStorageEvent_EnqueuesEachRecord(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := newTestEventsHandler(enq)

	// 第二条记录的 key 被 URL 编码，S3 通知常见如此
	body := `{"Records":[
		{"s3":{"object":{"key":"files/f1"}}},
		{"s3":{"object":{"key":"files%2Ff2"}}}
	]}`
	rec := postEvent(h, body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(enq.tasks) != 2 {
		t.Fatalf("expected 2 enqueued tasks, got %d", len(enq.tasks))
	}

	var keys []string
	for _, task := range enq.tasks {
		if task.Type() != queue.ObjectCreatedTask {
			t.Fatalf("unexpected task type %s", task.Type())
		}
		var payload queue.ObjectCreatedPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		keys = append(keys, payload.ObjectKey)
	}
	if keys[0] != "files/f1" || keys[1] != "files/f2" {
		t.Fatalf("unexpected object keys: %v", keys)
	}
}

func TestStorageEvent_IgnoresUnmodeledFields(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := newTestEventsHandler(enq)

	body := `{"Records":[{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"uploads"},"object":{"key":"files/f1","size":42}}}]}`
	rec := postEvent(h, body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(enq.tasks))
	}
}

func TestStorageEvent_BadJSON(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := postEvent(newTestEventsHandler(enq), `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(enq.tasks) != 0 {
		t.Fatal("nothing must be enqueued for a bad payload")
	}
}

func TestStorageEvent_EmptyRecords(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := postEvent(newTestEventsHandler(enq), `{"Records":[]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec.Body)
	if data["accepted"] != float64(0) {
		t.Fatalf("expected accepted 0, got %v", data["accepted"])
	}
}

func TestStorageEvent_EnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	rec := postEvent(newTestEventsHandler(enq), `{"Records":[{"s3":{"object":{"key":"files/f1"}}}]}`)

	// 入队失败要让通知方整体重发
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
