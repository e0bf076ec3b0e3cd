package processor

import (
	"errors"
	"fmt"

	"ats-scanner/internal/tracing"
)

// Sentinel errors used by the scanner.
var (
	// ErrMissingFilename 上传时未提供文件名
	ErrMissingFilename = errors.New("filename is required")
	// ErrEmptyFile 上传文件为空
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrFileTooLarge 文件超过上传上限
	ErrFileTooLarge = errors.New("file exceeds upload size limit")
	// ErrEmptyBatch 批量扫描未包含任何文件
	ErrEmptyBatch = errors.New("batch contains no files")
	// ErrBatchTooLarge 批量扫描文件数超过上限
	ErrBatchTooLarge = errors.New("batch exceeds maximum file count")
	// ErrAsyncUnavailable 异步扫描所需的存储或队列未配置
	ErrAsyncUnavailable = errors.New("async scanning is not available")
	// ErrHistoryUnavailable 未配置扫描历史存储
	ErrHistoryUnavailable = errors.New("scan history is not available")
	// ErrInvalidMessage 队列消息无法解析
	ErrInvalidMessage = errors.New("invalid scan request message")
)

// Scan stages reported by ScanError.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageStore    = "store"
	StageFetch    = "fetch"
	StagePublish  = "publish"
	StagePersist  = "persist"
)

// ScanError 扫描流程某一阶段失败
type ScanError struct {
	ScanID string
	Stage  string
	Err    error
}

// Error 实现 error 接口
func (e *ScanError) Error() string {
	if e.ScanID == "" {
		return fmt.Sprintf("scan %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("scan %s [%s]: %v", e.Stage, e.ScanID, e.Err)
}

// Unwrap 返回底层错误
func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is 同阶段的 ScanError 视为相等；Stage 为空时匹配任意阶段
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

func newScanError(scanID, stage string, err error) *ScanError {
	return &ScanError{ScanID: scanID, Stage: stage, Err: err}
}

// stageErrorType 按阶段给 span 错误分类
func stageErrorType(stage string) tracing.ErrorType {
	switch stage {
	case StageValidate:
		return tracing.ErrorTypeValidation
	case StageExtract:
		return tracing.ErrorTypeExtraction
	case StageStore, StageFetch:
		return tracing.ErrorTypeStorage
	case StagePublish:
		return tracing.ErrorTypeRabbitMQ
	case StagePersist:
		return tracing.ErrorTypeDB
	default:
		return tracing.ErrorTypeInternal
	}
}
