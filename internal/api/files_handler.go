package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"sharedrop/internal/middleware"
	"sharedrop/internal/service"

	"github.com/go-chi/chi/v5"
)

// FileHandler 提供文件生命周期相关的 HTTP 端点。
type FileHandler struct {
	service *service.FileService
	logger  *log.Logger
}

func NewFileHandler(s *service.FileService, logger *log.Logger) *FileHandler {
	return &FileHandler{service: s, logger: logger}
}

// RegisterRoutes 注册需要鉴权的属主端点。
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/init", h.InitUpload)
		r.Get("/", h.ListFiles)
		r.Delete("/{fileID}", h.DeleteFile)
	})
}

// RegisterPublicRoutes 注册无需鉴权的公开端点。
func (h *FileHandler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/public/files", func(r chi.Router) {
		r.Get("/{fileID}", h.GetFileMetadata)
		r.Get("/{fileID}/download", h.DownloadFile)
	})
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type initUploadRequest struct {
	FileName      string `json:"fileName"`
	ContentType   string `json:"contentType"`
	SizeBytes     any    `json:"sizeBytes"`
	ExpiresInDays *int   `json:"expiresInDays"`
}

type initUploadResponse struct {
	FileID       string            `json:"fileId"`
	UploadURL    string            `json:"uploadUrl"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	URLExpiresAt time.Time         `json:"urlExpiresAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

// InitUpload 创建 uploading 状态的文件记录并返回预签名直传指引。
func (h *FileHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req initUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sizeBytes, err := parseSizeBytes(req.SizeBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.InitiateUpload(r.Context(), service.InitiateUploadInput{
		OwnerID:       principal.ID,
		OwnerEmail:    principal.Email,
		FileName:      req.FileName,
		ContentType:   req.ContentType,
		SizeBytes:     sizeBytes,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: initUploadResponse{
		FileID:       result.FileID,
		UploadURL:    result.Upload.URL,
		Method:       result.Upload.Method,
		Headers:      result.Upload.Headers,
		URLExpiresAt: result.Upload.ExpiresAt,
		ExpiresAt:    result.ExpiresAt,
	}})
}

// ListFiles 返回当前属主的文件投影集合。
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summaries, err := h.service.ListForOwner(r.Context(), principal.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []service.FileSummary{}
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"items": summaries}})
}

// DeleteFile 按属主主键删除文件：先删对象，再标记元数据。
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	fileID := chi.URLParam(r, "fileID")
	if err := h.service.DeleteFile(r.Context(), principal.ID, fileID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"fileId": fileID, "deleted": true}})
}

// GetFileMetadata 返回单个文件的公开投影。
func (h *FileHandler) GetFileMetadata(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	summary, err := h.service.GetPublicMetadata(r.Context(), fileID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: summary})
}

// DownloadFile 把公开下载重定向到预签名 GET URL。
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	url, err := h.service.PublicDownload(r.Context(), fileID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

// writeServiceError 按错误类别映射状态码；未识别的错误不泄露内部细节。
func (h *FileHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, service.ErrGone):
		writeError(w, http.StatusGone, "file expired")
	default:
		h.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}
