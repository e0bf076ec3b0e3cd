package models

import (
	"time"

	"gorm.io/datatypes"
)

// 扫描记录状态
const (
	ScanStatusPending   = "PENDING"
	ScanStatusCompleted = "COMPLETED"
	ScanStatusFailed    = "FAILED"
)

// ScanRecord 一次扫描的结果，按 ScanID 存取
type ScanRecord struct {
	ScanID          string         `gorm:"type:char(36);primaryKey" json:"scan_id"`
	ContentHash     string         `gorm:"type:char(32);index:idx_scans_content_hash" json:"content_hash"`
	Filename        string         `gorm:"type:varchar(255)" json:"filename"`
	ObjectKey       string         `gorm:"type:varchar(255)" json:"object_key,omitempty"` // MinIO 中的原始文件
	JobDescription  string         `gorm:"type:text" json:"job_description,omitempty"`
	Status          string         `gorm:"type:varchar(20);default:'COMPLETED';not null;index:idx_scans_status" json:"status"`
	ScoringType     string         `gorm:"type:varchar(32)" json:"scoring_type,omitempty"`
	OverallScore    float64        `gorm:"type:decimal(5,2)" json:"overall_score"`
	Breakdown       datatypes.JSON `gorm:"type:json" json:"breakdown,omitempty"`
	Feedback        datatypes.JSON `gorm:"type:json" json:"feedback,omitempty"`
	Recommendations datatypes.JSON `gorm:"type:json" json:"recommendations,omitempty"`
	ParsedData      datatypes.JSON `gorm:"type:json" json:"parsed_data,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_scans_created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}
