package storage

import "time"

// ScanRequestMessage 异步扫描请求
type ScanRequestMessage struct {
	ScanID           string    `json:"scan_id"`
	ObjectKey        string    `json:"object_key"` // MinIO 中的对象路径
	OriginalFilename string    `json:"original_filename"`
	ContentHash      string    `json:"content_hash"`
	JobDescription   string    `json:"job_description,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// ScanCompletedEvent 扫描完成事件，经 outbox 发布
type ScanCompletedEvent struct {
	ScanID       string    `json:"scan_id"`
	Status       string    `json:"status"`
	ScoringType  string    `json:"scoring_type,omitempty"`
	OverallScore float64   `json:"overall_score"`
	Error        string    `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}
