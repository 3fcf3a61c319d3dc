package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrConditionFailed 表示条件更新的前置条件不成立（记录已不在期望状态）。
var ErrConditionFailed = errors.New("repository: condition failed")
