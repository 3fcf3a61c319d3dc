package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sharedrop/internal/middleware"
	"sharedrop/internal/repository"
	"sharedrop/internal/service"
	"sharedrop/internal/storage"

	"github.com/go-chi/chi/v5"
)

type stubRepo struct {
	records map[string]repository.FileRecord
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[string]repository.FileRecord)}
}

func (s *stubRepo) Create(ctx context.Context, record *repository.FileRecord) error {
	s.records[record.FileID] = *record
	return nil
}

func (s *stubRepo) GetByOwner(ctx context.Context, ownerID, fileID string) (*repository.FileRecord, error) {
	rec, ok := s.records[fileID]
	if !ok || rec.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *stubRepo) GetByFileID(ctx context.Context, fileID string) (*repository.FileRecord, error) {
	rec, ok := s.records[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID string) ([]repository.FileRecord, error) {
	var out []repository.FileRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRepo) MarkReady(ctx context.Context, ownerID, fileID string, readyAt time.Time) error {
	rec, ok := s.records[fileID]
	if !ok || rec.Status != repository.FileStatusUploading {
		return repository.ErrConditionFailed
	}
	rec.Status = repository.FileStatusReady
	rec.ReadyAt = &readyAt
	s.records[fileID] = rec
	return nil
}

func (s *stubRepo) MarkDeleted(ctx context.Context, ownerID, fileID string, deletedAt time.Time) error {
	rec, ok := s.records[fileID]
	if !ok || rec.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	rec.Status = repository.FileStatusDeleted
	rec.DeletedAt = &deletedAt
	s.records[fileID] = rec
	return nil
}

func (s *stubRepo) RecordDownload(ctx context.Context, ownerID, fileID string, downloadedAt time.Time) error {
	rec, ok := s.records[fileID]
	if !ok || rec.Status != repository.FileStatusReady {
		return repository.ErrConditionFailed
	}
	rec.DownloadCount++
	rec.DownloadedAt = &downloadedAt
	s.records[fileID] = rec
	return nil
}

type stubStorage struct{}

func (stubStorage) PresignPut(ctx context.Context, key, contentType string) (storage.PresignedUpload, error) {
	return storage.PresignedUpload{
		URL:       "https://storage.example/put/" + key,
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}, nil
}

func (stubStorage) PresignGet(ctx context.Context, key, fileName string) (string, error) {
	return "https://storage.example/get/" + key, nil
}

func (stubStorage) Remove(ctx context.Context, key string) error { return nil }

func newTestFileHandler(repo repository.FileRepository) *FileHandler {
	logger := log.New(io.Discard, "", 0)
	svc := service.NewFileService(repo, stubStorage{}, logger, service.Options{
		KeyPrefix:          "files",
		DefaultExpiresDays: 7,
		MaxExpiresDays:     30,
	})
	return NewFileHandler(svc, logger)
}

// authRouter 挂载鉴权端点，并把固定 principal 注入请求上下文。
func authRouter(h *FileHandler, principal *middleware.Principal) http.Handler {
	r := chi.NewRouter()
	if principal != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), middleware.PrincipalContextKey{}, *principal)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	h.RegisterRoutes(r)
	return r
}

func publicRouter(h *FileHandler) http.Handler {
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	return r
}

func ownerA() *middleware.Principal {
	return &middleware.Principal{ID: "owner-a", Email: "a@example.com"}
}

func decodeEnvelope(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var payload struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decode response envelope: %v", err)
	}
	return payload.Data
}

func TestInitUpload_Success(t *testing.T) {
	repo := newStubRepo()
	router := authRouter(newTestFileHandler(repo), ownerA())

	body := `{"fileName":"report.pdf","contentType":"application/pdf","sizeBytes":2048,"expiresInDays":3}`
	req := httptest.NewRequest(http.MethodPost, "/files/init", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec.Body)
	fileID, _ := data["fileId"].(string)
	if fileID == "" {
		t.Fatalf("expected fileId in response, got %v", data)
	}
	if data["uploadUrl"] != "https://storage.example/put/files/"+fileID {
		t.Fatalf("unexpected uploadUrl: %v", data["uploadUrl"])
	}
	if data["method"] != "PUT" {
		t.Fatalf("unexpected method: %v", data["method"])
	}
	if repo.records[fileID].Status != repository.FileStatusUploading {
		t.Fatalf("record not created as uploading")
	}
}

func TestInitUpload_SizeBytesAsString(t *testing.T) {
	repo := newStubRepo()
	router := authRouter(newTestFileHandler(repo), ownerA())

	body := `{"fileName":"a.txt","sizeBytes":"4096"}`
	req := httptest.NewRequest(http.MethodPost, "/files/init", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, r := range repo.records {
		if r.SizeBytes != 4096 {
			t.Fatalf("expected sizeBytes 4096, got %d", r.SizeBytes)
		}
	}
}

func TestInitUpload_BadRequests(t *testing.T) {
	router := authRouter(newTestFileHandler(newStubRepo()), ownerA())

	cases := []struct {
		name string
		body string
	}{
		{"missing fileName", `{"sizeBytes":10}`},
		{"missing sizeBytes", `{"fileName":"a.txt"}`},
		{"boolean sizeBytes", `{"fileName":"a.txt","sizeBytes":true}`},
		{"fractional sizeBytes", `{"fileName":"a.txt","sizeBytes":1.5}`},
		{"unknown field", `{"fileName":"a.txt","sizeBytes":10,"surprise":1}`},
		{"not json", `fileName=a.txt`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/files/init", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthEndpoints_RejectMissingPrincipal(t *testing.T) {
	router := authRouter(newTestFileHandler(newStubRepo()), nil)

	requests := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/files/init", strings.NewReader(`{}`)),
		httptest.NewRequest(http.MethodGet, "/files/", nil),
		httptest.NewRequest(http.MethodDelete, "/files/f1", nil),
	}
	for _, req := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestListFiles_EmptyItems(t *testing.T) {
	router := authRouter(newTestFileHandler(newStubRepo()), ownerA())

	req := httptest.NewRequest(http.MethodGet, "/files/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec.Body)
	items, ok := data["items"].([]any)
	if !ok {
		t.Fatalf("items must be a JSON array, got %T", data["items"])
	}
	if len(items) != 0 {
		t.Fatalf("expected empty items, got %d", len(items))
	}
}

func TestDeleteFile_WrongOwnerIsForbidden(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.records["f1"] = repository.FileRecord{
		FileID: "f1", OwnerID: "owner-b", Status: repository.FileStatusReady,
		ExpiresAt: now.Add(time.Hour), StorageKeyPrefix: "files",
	}
	router := authRouter(newTestFileHandler(repo), ownerA())

	req := httptest.NewRequest(http.MethodDelete, "/files/f1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if repo.records["f1"].Status != repository.FileStatusReady {
		t.Fatal("foreign record must not be mutated")
	}
}

func TestDeleteFile_Success(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.records["f1"] = repository.FileRecord{
		FileID: "f1", OwnerID: "owner-a", Status: repository.FileStatusReady,
		ExpiresAt: now.Add(time.Hour), StorageKeyPrefix: "files",
	}
	router := authRouter(newTestFileHandler(repo), ownerA())

	req := httptest.NewRequest(http.MethodDelete, "/files/f1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.records["f1"].Status != repository.FileStatusDeleted {
		t.Fatal("record must be marked deleted")
	}
}

func TestGetFileMetadata_StatusMapping(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.records["f-deleted"] = repository.FileRecord{
		FileID: "f-deleted", OwnerID: "o", Status: repository.FileStatusDeleted,
		ExpiresAt: now.Add(time.Hour),
	}
	repo.records["f-expired"] = repository.FileRecord{
		FileID: "f-expired", OwnerID: "o", Status: repository.FileStatusReady,
		ExpiresAt: now.Add(-time.Hour),
	}
	router := publicRouter(newTestFileHandler(repo))

	cases := []struct {
		fileID   string
		wantCode int
	}{
		{"missing", http.StatusNotFound},
		{"f-deleted", http.StatusForbidden},
		{"f-expired", http.StatusGone},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/public/files/"+tc.fileID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: expected %d, got %d", tc.fileID, tc.wantCode, rec.Code)
		}
	}
}

func TestGetFileMetadata_Projection(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.records["f1"] = repository.FileRecord{
		FileID: "f1", OwnerID: "o", OwnerEmail: "secret@example.com",
		OriginalFileName: "a.txt", ContentType: "text/plain", SizeBytes: 10,
		Status: repository.FileStatusReady, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	router := publicRouter(newTestFileHandler(repo))

	req := httptest.NewRequest(http.MethodGet, "/public/files/f1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec.Body)
	if data["fileId"] != "f1" || data["originalFileName"] != "a.txt" {
		t.Fatalf("unexpected projection: %v", data)
	}
	// 属主身份等内部字段绝不可出现在公开投影里
	if _, leaked := data["ownerEmail"]; leaked {
		t.Fatal("public projection must not expose owner identity")
	}
}

func TestDownloadFile_RedirectsWithSeeOther(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.records["f1"] = repository.FileRecord{
		FileID: "f1", OwnerID: "o", OriginalFileName: "a.txt",
		Status: repository.FileStatusReady, ExpiresAt: now.Add(time.Hour),
		StorageKeyPrefix: "files",
	}
	router := publicRouter(newTestFileHandler(repo))

	req := httptest.NewRequest(http.MethodGet, "/public/files/f1/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://storage.example/get/files/f1" {
		t.Fatalf("unexpected Location header: %s", loc)
	}
	if repo.records["f1"].DownloadCount != 1 {
		t.Fatalf("expected downloadCount 1, got %d", repo.records["f1"].DownloadCount)
	}
}
