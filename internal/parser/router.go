// Package parser 把上传的简历文件转换为纯文本
package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ats-scanner/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// 支持的文件格式
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatDOC  = "doc"
	FormatTXT  = "txt"
	FormatODT  = "odt"
	FormatRTF  = "rtf"
)

// MaxUploadSize 单个文件的上限
const MaxUploadSize = 16 << 20

var tracer = otel.Tracer("ats-scanner/parser")

var allowedFormats = map[string]bool{
	FormatPDF:  true,
	FormatDOCX: true,
	FormatDOC:  true,
	FormatTXT:  true,
	FormatODT:  true,
	FormatRTF:  true,
}

// Extractor 从文件内容提取文本和元数据
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, map[string]string, error)
}

// FormatOf 按扩展名返回小写格式名
func FormatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// IsAllowed 文件扩展名是否受支持
func IsAllowed(filename string) bool {
	return allowedFormats[FormatOf(filename)]
}

// Router 按文件格式分派到具体提取器
type Router struct {
	pdf    Extractor
	docx   Extractor
	tika   Extractor
	logger *zerolog.Logger
}

// RouterOption Router 配置项
type RouterOption func(*Router)

// WithPDFExtractor 替换 PDF 提取器
func WithPDFExtractor(e Extractor) RouterOption {
	return func(r *Router) {
		if e != nil {
			r.pdf = e
		}
	}
}

// WithDocxExtractor 替换 DOCX 提取器
func WithDocxExtractor(e Extractor) RouterOption {
	return func(r *Router) {
		if e != nil {
			r.docx = e
		}
	}
}

// WithTika 配置 Tika，用于 doc/odt/rtf
func WithTika(e Extractor) RouterOption {
	return func(r *Router) { r.tika = e }
}

// WithRouterLogger 设置日志记录器
func WithRouterLogger(l *zerolog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter 默认使用原生 PDF 和 DOCX 提取器，未配置 Tika 时 doc/odt/rtf 不可用
func NewRouter(opts ...RouterOption) *Router {
	nop := zerolog.Nop()
	r := &Router{
		pdf:    NewNativePDFExtractor(),
		docx:   NewDocxExtractor(),
		logger: &nop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract 提取文本。失败时返回 *ExtractionError。
func (r *Router) Extract(ctx context.Context, data []byte, filename string) (string, map[string]string, error) {
	format := FormatOf(filename)
	ctx, span := tracer.Start(ctx, "parser.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.format", format),
		attribute.String("document.filename", tracing.SafeFilename(filepath.Base(filename))),
		attribute.Int("document.size", len(data)),
	)

	start := time.Now()
	text, meta, err := r.dispatch(ctx, data, filename, format)
	if err != nil {
		var ee *ExtractionError
		if !errors.As(err, &ee) {
			ee = newExtractionError(filename, format, ErrExtractorUnavailable, err)
		}
		errType := tracing.ErrorTypeExtraction
		if errors.Is(ee, ErrExtractorUnavailable) {
			errType = tracing.ErrorTypeExternal
		}
		tracing.RecordError(span, ee, errType)
		r.logger.Warn().Err(ee).Str("filename", filename).Msg("文档提取失败")
		return "", nil, ee
	}

	if strings.TrimSpace(text) == "" {
		ee := newExtractionError(filename, format, ErrEmptyDocument, nil)
		tracing.RecordError(span, ee, tracing.ErrorTypeExtraction)
		return "", nil, ee
	}

	if meta == nil {
		meta = make(map[string]string)
	}
	meta["format"] = format
	meta["filename"] = filepath.Base(filename)
	meta["text_length"] = strconv.Itoa(utf8.RuneCountInString(text))

	r.logger.Debug().
		Str("filename", filename).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("文档提取完成")
	return text, meta, nil
}

func (r *Router) dispatch(ctx context.Context, data []byte, filename, format string) (string, map[string]string, error) {
	if len(data) == 0 {
		return "", nil, newExtractionError(filename, format, ErrEmptyDocument, nil)
	}
	switch format {
	case FormatTXT:
		return extractPlainText(data), map[string]string{"encoding": "utf-8"}, nil
	case FormatPDF:
		return r.pdf.Extract(ctx, data, filename)
	case FormatDOCX:
		return r.docx.Extract(ctx, data, filename)
	case FormatDOC, FormatODT, FormatRTF:
		if r.tika == nil {
			return "", nil, newExtractionError(filename, format, ErrUnsupportedFormat, errors.New("tika not configured"))
		}
		return r.tika.Extract(ctx, data, filename)
	default:
		return "", nil, newExtractionError(filename, format, ErrUnsupportedFormat, nil)
	}
}

// extractPlainText 非法 UTF-8 字节按 Latin-1 解释
func extractPlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}
