package tracing

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// 各类 span 属性的最大长度
const (
	DefaultMaxLength  = 200
	MaxSQLLength      = 500
	MaxRedisLength    = 100
	MaxFilenameLength = 80
	MaxSnippetLength  = 120 // 职位描述等自由文本片段
)

// sensitiveTokens 属性名按 . _ - 切分后命中其中任意一段即视为个人信息
var sensitiveTokens = map[string]bool{
	"email":     true,
	"phone":     true,
	"contact":   true,
	"candidate": true,
	"name":      true,
	"linkedin":  true,
	"github":    true,
	"address":   true,
	"password":  true,
	"secret":    true,
	"token":     true,
	"key":       true,
}

// SafeAttributeValue 返回可写入 span 的属性值：敏感属性掩码，其余折叠空白后截断
func SafeAttributeValue(name, value string, maxLength int) string {
	for _, part := range strings.FieldsFunc(strings.ToLower(name), isNameSeparator) {
		if sensitiveTokens[part] {
			return MaskPII(value)
		}
	}
	return TruncateString(strings.Join(strings.Fields(value), " "), maxLength)
}

func isNameSeparator(r rune) bool {
	return r == '.' || r == '_' || r == '-'
}

// MaskPII 掩码个人信息。邮箱只保留本地部分首字符和域名，
// 其他值保留首尾字符。
func MaskPII(value string) string {
	if value == "" {
		return ""
	}
	if at := strings.LastIndexByte(value, '@'); at > 0 {
		local := []rune(value[:at])
		return string(local[0]) + strings.Repeat("*", len(local)-1) + value[at:]
	}

	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// TruncateString 超长时保留开头并以 ... 结尾，结果不超过 maxLength 个字符
func TruncateString(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}

// truncateKeepTail 超长时保留结尾，用于以哈希结尾的键
func truncateKeepTail(s string, maxLength int) string {
	n := utf8.RuneCountInString(s)
	if n <= maxLength {
		return s
	}
	runes := []rune(s)
	if maxLength <= 3 {
		return string(runes[n-maxLength:])
	}
	return "..." + string(runes[n-maxLength+3:])
}

// SafeSQL 截断SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 截断Redis键，保留末尾的内容哈希
func SafeRedisKey(key string) string {
	return truncateKeepTail(key, MaxRedisLength)
}

// SafeFilename 简历文件名通常包含候选人姓名，掩码主干并保留扩展名
func SafeFilename(name string) string {
	ext := filepath.Ext(name)
	if utf8.RuneCountInString(ext) >= MaxFilenameLength {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	return TruncateString(MaskPII(stem), MaxFilenameLength-utf8.RuneCountInString(ext)) + ext
}

// SafeSnippet 处理职位描述等自由文本
func SafeSnippet(text string) string {
	return SafeAttributeValue("snippet", text, MaxSnippetLength)
}
