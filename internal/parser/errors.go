package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat 文件扩展名不在支持列表内
	ErrUnsupportedFormat    = errors.New("unsupported document format")
	// ErrCorruptDocument 文档无法解析
	ErrCorruptDocument      = errors.New("corrupt or unreadable document")
	// ErrEmptyDocument 解析成功但没有可用文本
	ErrEmptyDocument        = errors.New("no text could be extracted")
	// ErrExtractorUnavailable 外部解析服务不可用或调用被取消
	ErrExtractorUnavailable = errors.New("extractor unavailable")
)

// ExtractionError 文本提取失败，Err 为上面的哨兵错误之一
type ExtractionError struct {
	Filename string
	Format   string
	Err      error
	Cause    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %q (%s): %v", e.Filename, e.Format, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 同时暴露哨兵错误和底层原因
func (e *ExtractionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func newExtractionError(filename, format string, kind, cause error) *ExtractionError {
	return &ExtractionError{Filename: filename, Format: format, Err: kind, Cause: cause}
}
