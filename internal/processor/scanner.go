// Package processor 编排一次简历扫描：校验上传、提取文本、切分章节、提取信号、校验并评分
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"ats-scanner/internal/cache"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/metrics"
	"ats-scanner/internal/parser"
	"ats-scanner/internal/scoring"
	"ats-scanner/internal/segment"
	"ats-scanner/internal/signals"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/storage/models"
	"ats-scanner/internal/tracing"
	"ats-scanner/internal/types"
	"ats-scanner/internal/validator"
	"ats-scanner/pkg/utils"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 扫描模式，用于指标标签
const (
	ModeSync  = "sync"
	ModeBatch = "batch"
	ModeAsync = "async"
)

const (
	defaultMaxFiles    = 20
	defaultConcurrency = 4
)

var tracer = otel.Tracer("ats-scanner/processor")

// ScanRequest 单个文件的扫描请求
type ScanRequest struct {
	Filename       string
	Data           []byte
	JobDescription string
}

// ParsedData 从简历中解析出的结构化数据，随结果一起返回
type ParsedData struct {
	Skills          []string            `json:"skills"`
	ExperienceYears int                 `json:"experience_years"`
	Education       []string            `json:"education"`
	ContactInfo     types.ContactInfo   `json:"contact_info"`
	Sections        []string            `json:"sections"`
	WordCount       int                 `json:"word_count"`
	BulletPoints    int                 `json:"bullet_points"`
	Readability     signals.Readability `json:"readability"`
}

// ScanResponse 扫描结果。评分字段平铺在顶层，与 types.Result 的 JSON 一致
type ScanResponse struct {
	ScanID      string `json:"scan_id"`
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash,omitempty"`
	Status      string `json:"status"`
	Cached      bool   `json:"cached"`

	types.Result

	Validation *types.Verdict    `json:"validation,omitempty"`
	ParsedData *ParsedData       `json:"parsed_data,omitempty"`
	Metadata   map[string]string `json:"document_metadata,omitempty"`
	ScannedAt  time.Time         `json:"scanned_at"`
	Error      string            `json:"error,omitempty"`
}

// Scanner 扫描流水线。各阶段组件无共享可变状态，可并发使用
type Scanner struct {
	extractor Extractor
	cache     *cache.Cache
	segmenter *segment.Segmenter
	signals   *signals.Extractor
	validator *validator.Validator
	engine    *scoring.Engine

	history   History
	deduper   Deduper
	objects   storage.ObjectStorage
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zerolog.Logger

	maxFiles        int
	concurrency     int
	maxUploadSize   int
	requestTimeout  time.Duration
	eventExchange   string
	eventRoutingKey string
	now             func() time.Time
}

// NewScanner 创建扫描器，未提供的组件使用默认实现
func NewScanner(opts ...Option) *Scanner {
	l := logger.Named("scanner")
	s := &Scanner{
		logger:        l,
		maxFiles:      defaultMaxFiles,
		concurrency:   defaultConcurrency,
		maxUploadSize: parser.MaxUploadSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.extractor == nil {
		s.extractor = parser.NewRouter(parser.WithRouterLogger(s.logger))
	}
	if s.cache == nil {
		s.cache = cache.New(cache.WithLogger(s.logger))
	}
	if s.segmenter == nil {
		s.segmenter = segment.New()
	}
	if s.signals == nil {
		s.signals = signals.NewExtractor(nil)
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine(scoring.WithExtractor(s.signals), scoring.WithLogger(s.logger))
	}
	return s
}

// Cache 返回解析缓存，供后台清理和指标注册使用
func (s *Scanner) Cache() *cache.Cache {
	return s.cache
}

// MaxUploadSize 单个文件的大小上限（字节）
func (s *Scanner) MaxUploadSize() int {
	return s.maxUploadSize
}

// SearchSkills 在技能词表中按子串查找，最多返回 limit 条，limit <= 0 表示不限
func (s *Scanner) SearchSkills(query string, limit int) []string {
	found := s.signals.Vocabulary().Search(query)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return nonNil(found)
}

// HistoryEnabled 是否配置了扫描历史
func (s *Scanner) HistoryEnabled() bool {
	return s.history != nil
}

// ValidateUpload 检查文件名、扩展名和大小，limit <= 0 时使用 parser.MaxUploadSize
func ValidateUpload(filename string, size, limit int) error {
	if limit <= 0 {
		limit = parser.MaxUploadSize
	}
	if filename == "" {
		return ErrMissingFilename
	}
	if !parser.IsAllowed(filename) {
		return &parser.ExtractionError{
			Filename: filename,
			Format:   parser.FormatOf(filename),
			Err:      parser.ErrUnsupportedFormat,
		}
	}
	if size == 0 {
		return ErrEmptyFile
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, limit)
	}
	return nil
}

// Scan 同步扫描一个文件。结果尽力写入历史，写入失败只记录日志
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResponse, error) {
	scanID := newScanID()
	resp, err := s.run(ctx, scanID, req, ModeSync)
	if err != nil {
		return nil, err
	}
	s.saveHistory(ctx, resp, "", req.JobDescription)
	return resp, nil
}

// run 执行完整的扫描流水线，不写历史
func (s *Scanner) run(ctx context.Context, scanID string, req ScanRequest, mode string) (*ScanResponse, error) {
	start := time.Now()
	req.Filename = cleanFilename(req.Filename)

	ctx = logger.WithScanID(ctx, scanID)
	log := logger.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "Scanner.Scan",
		trace.WithAttributes(
			attribute.String("scan.id", scanID),
			attribute.String("scan.mode", mode),
			attribute.String("document.filename", tracing.SafeFilename(req.Filename)),
			attribute.Int("document.size", len(req.Data)),
			attribute.Bool("scan.has_job_description", req.JobDescription != ""),
		))
	defer span.End()
	if req.JobDescription != "" {
		span.SetAttributes(attribute.String("scan.job_description", tracing.SafeSnippet(req.JobDescription)))
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	if err := ValidateUpload(req.Filename, len(req.Data), s.maxUploadSize); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, newScanError(scanID, StageValidate, err)
	}

	entry, hash, cached, err := s.cache.GetOrExtract(ctx, req.Data, func(ctx context.Context, data []byte) (string, map[string]string, error) {
		return s.extractor.Extract(ctx, data, req.Filename)
	})
	if err != nil {
		s.metrics.ObserveExtractionFailure(extractionKind(err))
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		log.Warn().Err(err).Str("filename", req.Filename).Msg("文本提取失败")
		return nil, newScanError(scanID, StageExtract, err)
	}

	doc := signals.BuildDocument(hash, entry.Text)
	sections := s.segmenter.Segment(doc.Text)
	sig := s.signals.Extract(doc.Text, sections)
	verdict := s.validator.Validate(doc.Text, sig)

	result := s.engine.Score(ctx, scoring.Input{
		Document:       doc,
		Sections:       sections,
		Signals:        sig,
		Verdict:        verdict,
		JobDescription: req.JobDescription,
	})

	resp := &ScanResponse{
		ScanID:      scanID,
		Filename:    req.Filename,
		ContentHash: hash,
		Status:      models.ScanStatusCompleted,
		Cached:      cached,
		Result:      result,
		Validation:  &verdict,
		ParsedData:  buildParsedData(doc, sig),
		Metadata:    requestMetadata(entry.Metadata, req.Filename),
		ScannedAt:   s.now().UTC(),
	}

	elapsed := time.Since(start)
	s.metrics.ObserveScan(mode, result.ScoringType, elapsed)
	span.SetAttributes(
		attribute.String("scan.scoring_type", string(result.ScoringType)),
		attribute.Float64("scan.overall_score", result.OverallScore),
		attribute.Bool("scan.cached", cached),
		attribute.StringSlice("scan.breakdown_keys", result.BreakdownKeys()),
	)
	span.SetStatus(codes.Ok, "")

	log.Info().
		Str("filename", req.Filename).
		Str("scoring_type", string(result.ScoringType)).
		Float64("overall_score", result.OverallScore).
		Bool("cached", cached).
		Dur("elapsed", elapsed).
		Msg("扫描完成")
	return resp, nil
}

// requestMetadata 复制缓存中的元数据，并用本次请求的文件名和格式覆盖
func requestMetadata(cached map[string]string, filename string) map[string]string {
	meta := make(map[string]string, len(cached)+2)
	for k, v := range cached {
		meta[k] = v
	}
	meta["filename"] = filename
	meta["format"] = parser.FormatOf(filename)
	return meta
}

func buildParsedData(doc types.Document, sig types.Signals) *ParsedData {
	return &ParsedData{
		Skills:          nonNil(sig.Skills),
		ExperienceYears: sig.ExperienceYears,
		Education:       nonNil(sig.Education),
		ContactInfo:     sig.Contact,
		Sections:        nonNil(sig.Sections),
		WordCount:       doc.WordCount,
		BulletPoints:    doc.BulletCount,
		Readability:     signals.AnalyzeReadability(doc.Text),
	}
}

// extractionKind 提取失败的分类，用于指标标签
func extractionKind(err error) string {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, parser.ErrCorruptDocument):
		return "corrupt"
	case errors.Is(err, parser.ErrEmptyDocument):
		return "empty"
	case errors.Is(err, parser.ErrExtractorUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}

// GetScan 按 ID 读取已保存的扫描结果
func (s *Scanner) GetScan(ctx context.Context, scanID string) (*ScanResponse, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	record, err := s.history.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return responseFromRecord(record)
}

// ListScans 按时间倒序分页列出扫描结果
func (s *Scanner) ListScans(ctx context.Context, limit, offset int) ([]*ScanResponse, int64, error) {
	if s.history == nil {
		return nil, 0, ErrHistoryUnavailable
	}
	records, total, err := s.history.ListScans(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*ScanResponse, 0, len(records))
	for i := range records {
		resp, err := responseFromRecord(&records[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, resp)
	}
	return out, total, nil
}

// saveHistory 尽力写入扫描历史
func (s *Scanner) saveHistory(ctx context.Context, resp *ScanResponse, objectKey, jd string) {
	if s.history == nil {
		return
	}
	record, err := recordFromResponse(resp, objectKey, jd)
	if err == nil {
		err = s.history.SaveScan(ctx, record)
	}
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("scan_id", resp.ScanID).Msg("保存扫描历史失败")
	}
}

// recordFromResponse 把扫描结果转换为历史记录
func recordFromResponse(resp *ScanResponse, objectKey, jd string) (*models.ScanRecord, error) {
	record := &models.ScanRecord{
		ScanID:          resp.ScanID,
		ContentHash:     resp.ContentHash,
		Filename:        resp.Filename,
		ObjectKey:       objectKey,
		JobDescription:  jd,
		Status:          resp.Status,
		ScoringType:     string(resp.ScoringType),
		OverallScore:    resp.OverallScore,
		Feedback:        utils.ConvertArrayToJSON(resp.Feedback),
		Recommendations: utils.ConvertArrayToJSON(resp.Recommendations),
		ErrorMessage:    resp.Error,
	}
	if record.Status == "" {
		record.Status = models.ScanStatusCompleted
	}

	var err error
	if record.Breakdown, err = utils.ConvertToJSON(resp.Breakdown); err != nil {
		return nil, fmt.Errorf("序列化分项失败: %w", err)
	}
	if resp.ParsedData != nil {
		if record.ParsedData, err = utils.ConvertToJSON(resp.ParsedData); err != nil {
			return nil, fmt.Errorf("序列化解析数据失败: %w", err)
		}
	}
	return record, nil
}

// responseFromRecord 从历史记录还原扫描结果，校验结论和文档元数据不落库
func responseFromRecord(record *models.ScanRecord) (*ScanResponse, error) {
	resp := &ScanResponse{
		ScanID:      record.ScanID,
		Filename:    record.Filename,
		ContentHash: record.ContentHash,
		Status:      record.Status,
		Result: types.Result{
			OverallScore:    record.OverallScore,
			ScoringType:     types.ScoringType(record.ScoringType),
			Breakdown:       map[string]float64{},
			Feedback:        []string{},
			Recommendations: []string{},
		},
		ScannedAt: record.CreatedAt,
		Error:     record.ErrorMessage,
	}

	if err := unmarshalJSON(record.Breakdown, &resp.Breakdown); err != nil {
		return nil, fmt.Errorf("解析分项失败: %w", err)
	}
	if err := unmarshalJSON(record.Feedback, &resp.Feedback); err != nil {
		return nil, fmt.Errorf("解析反馈失败: %w", err)
	}
	if err := unmarshalJSON(record.Recommendations, &resp.Recommendations); err != nil {
		return nil, fmt.Errorf("解析建议失败: %w", err)
	}
	if len(record.ParsedData) > 0 && string(record.ParsedData) != "null" {
		resp.ParsedData = &ParsedData{}
		if err := json.Unmarshal(record.ParsedData, resp.ParsedData); err != nil {
			return nil, fmt.Errorf("解析结构化数据失败: %w", err)
		}
	}
	return resp, nil
}

// unmarshalJSON 空值或 null 时保留目标的零值
func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// newScanID 生成按时间有序的 UUIDv7
func newScanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

// cleanFilename 去掉客户端传来的目录部分
func cleanFilename(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(name))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
