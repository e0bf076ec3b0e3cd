package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"ats-scanner/internal/constants"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/storage/models"
	"ats-scanner/internal/tracing"
	"ats-scanner/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AsyncTicket 异步扫描受理结果
type AsyncTicket struct {
	ScanID    string `json:"scan_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"` // 相同文件和职位描述已提交过，返回已有的 scan_id
}

// AsyncReady 异步扫描所需的对象存储、队列和历史存储是否都已配置
func (s *Scanner) AsyncReady() bool {
	return s.objects != nil && s.publisher != nil && s.history != nil
}

// SubmitAsync 保存原始文件、写入待处理记录并投递扫描请求
func (s *Scanner) SubmitAsync(ctx context.Context, req ScanRequest) (*AsyncTicket, error) {
	if !s.AsyncReady() {
		return nil, ErrAsyncUnavailable
	}
	req.Filename = cleanFilename(req.Filename)
	if err := ValidateUpload(req.Filename, len(req.Data), s.maxUploadSize); err != nil {
		return nil, newScanError("", StageValidate, err)
	}

	contentHash := utils.CalculateMD5(req.Data)
	jdHash := utils.HashJobDescription(req.JobDescription)
	scanID := newScanID()
	ctx = logger.WithScanID(ctx, scanID)
	log := logger.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "Scanner.SubmitAsync",
		trace.WithAttributes(
			attribute.String("scan.id", scanID),
			attribute.String("document.filename", tracing.SafeFilename(req.Filename)),
			attribute.Int("document.size", len(req.Data)),
		))
	defer span.End()

	claimed := false
	if s.deduper != nil {
		existing, ok, err := s.deduper.ClaimScan(ctx, contentHash, jdHash, scanID)
		switch {
		case err != nil:
			// 去重不可用时照常受理
			log.Warn().Err(err).Msg("扫描去重失败")
		case !ok:
			log.Info().Str("existing_scan_id", existing).Msg("重复提交，返回已有扫描")
			span.SetAttributes(attribute.Bool("scan.duplicate", true))
			return &AsyncTicket{ScanID: existing, Status: models.ScanStatusPending, Duplicate: true}, nil
		default:
			claimed = true
		}
	}

	fail := func(stage string, err error) (*AsyncTicket, error) {
		if claimed {
			if rerr := s.deduper.ReleaseScan(ctx, contentHash, jdHash); rerr != nil {
				log.Warn().Err(rerr).Msg("释放去重记录失败")
			}
		}
		log.Error().Err(err).Str("stage", stage).Msg("异步扫描受理失败")
		tracing.RecordError(span, err, stageErrorType(stage), attribute.String("scan.stage", stage))
		return nil, newScanError(scanID, stage, err)
	}

	objectKey, err := s.objects.PutOriginal(ctx, contentHash, req.Filename, req.Data)
	if err != nil {
		return fail(StageStore, err)
	}

	pending := &models.ScanRecord{
		ScanID:         scanID,
		ContentHash:    contentHash,
		Filename:       req.Filename,
		ObjectKey:      objectKey,
		JobDescription: req.JobDescription,
		Status:         models.ScanStatusPending,
	}
	if err := s.history.SaveScan(ctx, pending); err != nil {
		return fail(StagePersist, err)
	}

	msg := storage.ScanRequestMessage{
		ScanID:           scanID,
		ObjectKey:        objectKey,
		OriginalFilename: req.Filename,
		ContentHash:      contentHash,
		JobDescription:   req.JobDescription,
		SubmittedAt:      s.now().UTC(),
	}
	if err := s.publisher.PublishScanRequest(ctx, msg); err != nil {
		return fail(StagePublish, err)
	}

	log.Info().Str("object_key", objectKey).Msg("异步扫描已受理")
	return &AsyncTicket{ScanID: scanID, Status: models.ScanStatusPending}, nil
}

// HandleAsyncMessage 消费一条扫描请求：下载原始文件、扫描，
// 在同一事务中保存结果和 scan.completed 事件。
// 扫描失败会记录为 FAILED 并正常确认；只有消息无法解析或持久化失败时返回错误。
func (s *Scanner) HandleAsyncMessage(ctx context.Context, body []byte) error {
	var msg storage.ScanRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.ScanID == "" || msg.ObjectKey == "" {
		return fmt.Errorf("%w: missing scan_id or object_key", ErrInvalidMessage)
	}
	if s.objects == nil || s.history == nil {
		return ErrAsyncUnavailable
	}

	ctx = logger.WithScanID(ctx, msg.ScanID)
	log := logger.FromContext(ctx)

	var resp *ScanResponse
	data, err := s.objects.GetOriginal(ctx, msg.ObjectKey)
	if err != nil {
		err = newScanError(msg.ScanID, StageFetch, err)
	} else {
		resp, err = s.run(ctx, msg.ScanID, ScanRequest{
			Filename:       msg.OriginalFilename,
			Data:           data,
			JobDescription: msg.JobDescription,
		}, ModeAsync)
	}
	if err != nil {
		log.Warn().Err(err).Msg("异步扫描失败")
		resp = failedResponse(msg.ScanID, msg.OriginalFilename, err, s.now())
		resp.ContentHash = msg.ContentHash
	}

	record, rerr := recordFromResponse(resp, msg.ObjectKey, msg.JobDescription)
	if rerr != nil {
		return newScanError(msg.ScanID, StagePersist, rerr)
	}
	outboxMsg, rerr := s.completionEvent(resp)
	if rerr != nil {
		return newScanError(msg.ScanID, StagePersist, rerr)
	}
	if perr := s.history.SaveScanWithEvent(ctx, record, outboxMsg); perr != nil {
		return newScanError(msg.ScanID, StagePersist, perr)
	}

	// 失败的扫描允许重新提交
	if err != nil && s.deduper != nil {
		jdHash := utils.HashJobDescription(msg.JobDescription)
		if rerr := s.deduper.ReleaseScan(ctx, msg.ContentHash, jdHash); rerr != nil {
			log.Warn().Err(rerr).Msg("释放去重记录失败")
		}
	}
	return nil
}

// completionEvent 构造 scan.completed 的 outbox 消息
func (s *Scanner) completionEvent(resp *ScanResponse) (*models.OutboxMessage, error) {
	event := storage.ScanCompletedEvent{
		ScanID:       resp.ScanID,
		Status:       resp.Status,
		ScoringType:  string(resp.ScoringType),
		OverallScore: resp.OverallScore,
		Error:        resp.Error,
		CompletedAt:  s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化完成事件失败: %w", err)
	}
	return &models.OutboxMessage{
		MessageID:        uuid.NewString(),
		AggregateID:      resp.ScanID,
		EventType:        constants.EventTypeScanCompleted,
		Payload:          string(payload),
		TargetExchange:   s.eventExchange,
		TargetRoutingKey: s.eventRoutingKey,
		Status:           models.OutboxStatusPending,
		CreatedAt:        s.now(),
	}, nil
}
