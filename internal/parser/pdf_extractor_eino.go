package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
)

const defaultEinoTimeout = 30 * time.Second

// EinoPDFExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  *zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFExtractor)

// WithEinoLogger 配置日志记录器
func WithEinoLogger(logger *zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEinoTimeout 单个文件的解析超时
func WithEinoTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEinoPDFExtractor 初始化 Eino PDF 文本提取器
// 不按页面分割，获取整个文档的连续文本
func NewEinoPDFExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	nop := zerolog.Nop()
	extractor := &EinoPDFExtractor{
		parser:  p,
		timeout: defaultEinoTimeout,
		logger:  &nop,
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// Extract 实现 Extractor 接口
func (e *EinoPDFExtractor) Extract(ctx context.Context, data []byte, filename string) (string, map[string]string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(filename),
		einoParser.WithExtraMeta(map[string]any{"source_file": filename}),
	)
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Debug().Err(err).Dur("elapsed", duration).Msg("Eino PDF解析失败")
		return "", nil, newExtractionError(filename, FormatPDF, ErrCorruptDocument, err)
	}
	if len(docs) == 0 {
		return "", nil, newExtractionError(filename, FormatPDF, ErrEmptyDocument, nil)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	text := strings.Join(parts, "\n")

	meta := map[string]string{
		"extractor":              "eino",
		"document_count":         strconv.Itoa(len(docs)),
		"processing_duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
	}
	for k, v := range docs[0].MetaData {
		if _, exists := meta[k]; !exists {
			meta[k] = fmt.Sprint(v)
		}
	}

	e.logger.Debug().Int("chars", len(text)).Dur("elapsed", duration).Msg("Eino PDF提取完成")
	return text, meta, nil
}
