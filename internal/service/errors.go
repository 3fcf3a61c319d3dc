package service

import "errors"

// 生命周期引擎对外暴露的错误类别。HTTP 层按类别映射状态码，
// 未匹配到类别的错误一律视为内部错误，不向调用方泄露细节。
var (
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("file not found")
	ErrGone         = errors.New("file expired")
)
