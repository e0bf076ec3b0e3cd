package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ExtractModulePrefix 文本提取模块
	ExtractModulePrefix = "extract"
	// ScanModulePrefix 扫描模块
	ScanModulePrefix = "scan"

	// EntityText 文本实体
	EntityText = "text"
	// EntityMD5ToID MD5到扫描ID的映射实体
	EntityMD5ToID = "md5_to_id"

	// KeyExtractionText 提取结果共享缓存 (STRING, JSON)
	// 格式: app:extract:text:{contentHash}
	KeyExtractionText = AppPrefix + ":" + ExtractModulePrefix + ":" + EntityText + ":%s"

	// KeyScanMD5ToID 文件与职位描述组合到扫描ID的映射，用于异步提交去重 (STRING)
	// 格式: app:scan:md5_to_id:{contentHash}:{jdHash}
	KeyScanMD5ToID = AppPrefix + ":" + ScanModulePrefix + ":" + EntityMD5ToID + ":%s:%s"
)
