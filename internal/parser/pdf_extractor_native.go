package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// NativePDFExtractor 纯 Go 的 PDF 文本提取，不依赖外部服务
type NativePDFExtractor struct{}

// NewNativePDFExtractor 创建原生 PDF 提取器
func NewNativePDFExtractor() *NativePDFExtractor {
	return &NativePDFExtractor{}
}

// Extract 逐页提取纯文本，页之间用换行分隔
func (e *NativePDFExtractor) Extract(ctx context.Context, data []byte, filename string) (text string, meta map[string]string, err error) {
	// ledongthuc/pdf 遇到损坏文件可能 panic
	defer func() {
		if r := recover(); r != nil {
			text, meta = "", nil
			err = newExtractionError(filename, FormatPDF, ErrCorruptDocument, fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, newExtractionError(filename, FormatPDF, ErrCorruptDocument, err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, newExtractionError(filename, FormatPDF, ErrCorruptDocument, fmt.Errorf("page %d: %w", i, err))
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
	}

	return b.String(), map[string]string{
		"pages":     strconv.Itoa(pages),
		"extractor": "native",
	}, nil
}
