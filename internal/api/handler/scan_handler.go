// Package handler 实现扫描相关的 HTTP 接口
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"ats-scanner/internal/logger"
	"ats-scanner/internal/parser"
	"ats-scanner/internal/processor"
	"ats-scanner/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	defaultListLimit  = 20
	maxListLimit      = 100
	defaultSkillLimit = 20
)

var errMissingQuery = errors.New("query parameter q is required")

// ScanHandler 扫描接口处理器
type ScanHandler struct {
	scanner *processor.Scanner
}

// NewScanHandler 创建扫描接口处理器
func NewScanHandler(scanner *processor.Scanner) *ScanHandler {
	return &ScanHandler{scanner: scanner}
}

// ListScansResponse 历史分页响应
type ListScansResponse struct {
	Scans  []*processor.ScanResponse `json:"scans"`
	Total  int64                     `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

// Scan 同步扫描：multipart 字段 file（必填）和 job_description（可选）
func (h *ScanHandler) Scan(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, consts.StatusBadRequest, errors.New("missing file field"))
		return
	}
	data, err := h.readUpload(fileHeader)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}

	resp, err := h.scanner.Scan(ctx, processor.ScanRequest{
		Filename:       fileHeader.Filename,
		Data:           data,
		JobDescription: c.PostForm("job_description"),
	})
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// ScanBatch 批量扫描：multipart 字段 files（可多个）和 job_description
func (h *ScanHandler) ScanBatch(ctx context.Context, c *app.RequestContext) {
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, consts.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	headers := form.File["files"]
	files := make([]processor.BatchFile, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readUpload(fh)
		if err != nil {
			h.fail(ctx, c, err)
			return
		}
		files = append(files, processor.BatchFile{Filename: fh.Filename, Data: data})
	}

	jd := ""
	if v := form.Value["job_description"]; len(v) > 0 {
		jd = v[0]
	}

	resp, err := h.scanner.ScanBatch(ctx, files, jd)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// ScanAsync 异步扫描：保存原始文件并投递到队列，返回 202 和 scan_id
func (h *ScanHandler) ScanAsync(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, consts.StatusBadRequest, errors.New("missing file field"))
		return
	}
	data, err := h.readUpload(fileHeader)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}

	ticket, err := h.scanner.SubmitAsync(ctx, processor.ScanRequest{
		Filename:       fileHeader.Filename,
		Data:           data,
		JobDescription: c.PostForm("job_description"),
	})
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusAccepted, ticket)
}

// GetScan 按 ID 查询扫描结果
func (h *ScanHandler) GetScan(ctx context.Context, c *app.RequestContext) {
	resp, err := h.scanner.GetScan(ctx, c.Param("id"))
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// ListScans 分页查询扫描历史，参数 limit（默认20，最大100）和 offset
func (h *ScanHandler) ListScans(ctx context.Context, c *app.RequestContext) {
	limit := defaultListLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxListLimit)
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}

	scans, total, err := h.scanner.ListScans(ctx, limit, offset)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, ListScansResponse{Scans: scans, Total: total, Limit: limit, Offset: offset})
}

// SkillsResponse 技能词表查询结果
type SkillsResponse struct {
	Query  string   `json:"query"`
	Skills []string `json:"skills"`
}

// SearchSkills 按子串查询技能词表，参数 q（必填）和 limit（默认20，最大100）
func (h *ScanHandler) SearchSkills(_ context.Context, c *app.RequestContext) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, consts.StatusBadRequest, errMissingQuery)
		return
	}
	limit := defaultSkillLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxListLimit)
	}
	c.JSON(consts.StatusOK, SkillsResponse{Query: q, Skills: h.scanner.SearchSkills(q, limit)})
}

// Health 健康检查
func (h *ScanHandler) Health(_ context.Context, c *app.RequestContext) {
	stats := h.scanner.Cache().Stats()
	c.JSON(consts.StatusOK, utils.H{
		"status":        "ok",
		"history":       h.scanner.HistoryEnabled(),
		"async":         h.scanner.AsyncReady(),
		"cache_entries": h.scanner.Cache().Len(),
		"cache_hits":    stats.Hits + stats.SharedHits,
		"cache_misses":  stats.Misses,
	})
}

// readUpload 最多读取上限加一个字节，超限由扫描器的上传校验拒绝
func (h *ScanHandler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(h.scanner.MaxUploadSize())+1))
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	return data, nil
}

// fail 按错误类型选择状态码，5xx 记录错误日志
func (h *ScanHandler) fail(ctx context.Context, c *app.RequestContext, err error) {
	status := StatusFor(err)
	if status >= consts.StatusInternalServerError {
		logger.FromContext(ctx).Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
	}
	writeError(c, status, err)
}

// StatusFor 错误到 HTTP 状态码的映射
func StatusFor(err error) int {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat),
		errors.Is(err, parser.ErrCorruptDocument),
		errors.Is(err, parser.ErrEmptyDocument):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrFileTooLarge):
		return consts.StatusRequestEntityTooLarge
	case errors.Is(err, processor.ErrMissingFilename),
		errors.Is(err, processor.ErrEmptyFile),
		errors.Is(err, processor.ErrEmptyBatch),
		errors.Is(err, processor.ErrBatchTooLarge):
		return consts.StatusBadRequest
	case errors.Is(err, storage.ErrScanNotFound):
		return consts.StatusNotFound
	case errors.Is(err, processor.ErrAsyncUnavailable),
		errors.Is(err, processor.ErrHistoryUnavailable):
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}

func writeError(c *app.RequestContext, status int, err error) {
	c.JSON(status, utils.H{"error": err.Error()})
}
