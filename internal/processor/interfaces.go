package processor

import (
	"context"

	"ats-scanner/internal/parser"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/storage/models"
)

// Extractor 把上传文件解析为文本和元数据
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, map[string]string, error)
}

// History 扫描历史存储
type History interface {
	SaveScan(ctx context.Context, record *models.ScanRecord) error
	// SaveScanWithEvent 在同一事务中写入扫描记录和 outbox 消息
	SaveScanWithEvent(ctx context.Context, record *models.ScanRecord, msg *models.OutboxMessage) error
	GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error)
	ListScans(ctx context.Context, limit, offset int) ([]models.ScanRecord, int64, error)
}

// Deduper 按内容哈希和职位描述哈希认领异步扫描
type Deduper interface {
	ClaimScan(ctx context.Context, contentHash, jdHash, scanID string) (string, bool, error)
	ReleaseScan(ctx context.Context, contentHash, jdHash string) error
}

// Publisher 投递异步扫描请求
type Publisher interface {
	PublishScanRequest(ctx context.Context, msg storage.ScanRequestMessage) error
}

// 编译期检查存储实现
var (
	_ Extractor             = (*parser.Router)(nil)
	_ History               = (*storage.MySQL)(nil)
	_ Deduper               = (*storage.Redis)(nil)
	_ Publisher             = (*storage.RabbitMQ)(nil)
	_ storage.ObjectStorage = (*storage.MinIO)(nil)
)
