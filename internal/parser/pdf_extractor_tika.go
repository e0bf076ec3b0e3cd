package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TikaExtractor 基于 Apache Tika 服务的提取器，覆盖 doc/odt/rtf 等格式
type TikaExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL       string
	Client          *http.Client
	// 是否请求 /meta 附带关键元数据
	extractMetadata bool
	logger          *zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithMetadata 配置是否提取关键元数据
func WithMetadata(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractMetadata = extract
	}
}

// WithTikaLogger 配置日志记录器
func WithTikaLogger(logger *zerolog.Logger) TikaOption {
	return func(e *TikaExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		if timeout > 0 {
			e.Client.Timeout = timeout
		}
	}
}

var contentTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatDOC:  "application/msword",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatODT:  "application/vnd.oasis.opendocument.text",
	FormatRTF:  "application/rtf",
	FormatTXT:  "text/plain",
}

// 只保留这些元数据字段
var importantMetadata = map[string]string{
	"xmpTPg:NPages":   "pages",
	"Content-Type":    "content_type",
	"dc:title":        "title",
	"language":        "language",
	"dcterms:created": "created",
}

// NewTikaExtractor 创建一个新的Tika提取器
func NewTikaExtractor(serverURL string, options ...TikaOption) *TikaExtractor {
	nop := zerolog.Nop()
	extractor := &TikaExtractor{
		ServerURL:       strings.TrimRight(serverURL, "/"),
		Client:          &http.Client{Timeout: 60 * time.Second},
		extractMetadata: true,
		logger:          &nop,
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// Extract 通过 PUT /tika 获取纯文本
func (e *TikaExtractor) Extract(ctx context.Context, data []byte, filename string) (string, map[string]string, error) {
	startTime := time.Now()
	format := FormatOf(filename)

	body, status, err := e.put(ctx, "/tika", "text/plain", data, filename)
	if err != nil {
		return "", nil, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	// Tika 对无法解析的文件返回 422
	if status == http.StatusUnprocessableEntity {
		return "", nil, newExtractionError(filename, format, ErrCorruptDocument, fmt.Errorf("tika status %d", status))
	}
	if status != http.StatusOK {
		return "", nil, fmt.Errorf("tika服务器返回错误状态码: %d", status)
	}

	meta := map[string]string{
		"extractor":              "tika",
		"processing_duration_ms": fmt.Sprint(time.Since(startTime).Milliseconds()),
	}
	if e.extractMetadata {
		raw, err := e.metadata(ctx, data, filename)
		if err != nil {
			e.logger.Warn().Err(err).Msg("元数据提取失败, 继续使用基本元数据")
		}
		for k, v := range raw {
			meta[k] = v
		}
	}

	return string(body), meta, nil
}

func (e *TikaExtractor) metadata(ctx context.Context, data []byte, filename string) (map[string]string, error) {
	body, status, err := e.put(ctx, "/meta", "application/json", data, filename)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("tika服务器返回错误状态码: %d", status)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析元数据JSON失败: %w", err)
	}
	out := make(map[string]string)
	for key, name := range importantMetadata {
		if v, ok := raw[key]; ok {
			out[name] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (e *TikaExtractor) put(ctx context.Context, path, accept string, data []byte, filename string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if ct, ok := contentTypes[FormatOf(filename)]; ok {
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("Accept", accept)
	if filename != "" {
		req.Header.Set("X-Tika-Resource-Name", filename)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*MaxUploadSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("读取Tika响应失败: %w", err)
	}
	return body, resp.StatusCode, nil
}
