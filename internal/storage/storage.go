package storage

import (
	"context"
	"time"
)

// PresignedUpload 描述客户端直传对象存储所需的全部信息。
type PresignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// Presigner 定义预签名 URL 的生成接口。
type Presigner interface {
	// PresignPut 生成限时上传 URL，签名绑定声明的 Content-Type。
	PresignPut(ctx context.Context, key, contentType string) (PresignedUpload, error)
	// PresignGet 生成限时下载 URL，fileName 用于下载时的文件名提示。
	PresignGet(ctx context.Context, key, fileName string) (string, error)
}

// Remover 定义对象删除接口。删除不存在的对象不是错误。
type Remover interface {
	Remove(ctx context.Context, key string) error
}

// Storage 组合了生命周期引擎需要的完整对象存储能力。
type Storage interface {
	Presigner
	Remover
}
