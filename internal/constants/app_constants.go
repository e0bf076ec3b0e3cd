package constants

import "time"

const (
	// EventTypeScanCompleted 扫描完成事件类型
	EventTypeScanCompleted = "scan.completed"

	// OriginalsObjectPrefix 原始简历在对象存储中的路径前缀
	OriginalsObjectPrefix = "originals/"

	// DefaultDedupeTTL 去重记录默认保留时长
	DefaultDedupeTTL = 7 * 24 * time.Hour

	// NoJobDescription 未提供职位描述时参与去重键计算的占位值
	NoJobDescription = "-"
)
