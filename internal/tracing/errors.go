package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeHTTP HTTP错误
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeDB 数据库错误
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRedis Redis错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeRabbitMQ RabbitMQ错误
	ErrorTypeRabbitMQ ErrorType = "rabbitmq"
	// ErrorTypeStorage 对象存储错误
	ErrorTypeStorage ErrorType = "object_storage"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeExternal 外部系统错误
	ErrorTypeExternal ErrorType = "external_system"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeExtraction 文档无法提取文本
	ErrorTypeExtraction ErrorType = "extraction"
)

// RecordError 记录错误并标注错误类型，attrs 附加到 span 上
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordHTTPError 记录外部 HTTP 服务返回的错误状态
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", statusCategory(statusCode)),
	)
}

func statusCategory(code int) string {
	switch {
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}

// MQFailure 消息投递失败的种类
type MQFailure string

const (
	// MQNack 消费者拒绝消息
	MQNack MQFailure = "nack"
	// MQTimeout 发布超时
	MQTimeout MQFailure = "timeout"
)

// RecordMQFailure 记录一次消息发布或消费失败
func RecordMQFailure(span trace.Span, messageID string, kind MQFailure, detail string) {
	if span == nil {
		return
	}
	msg := string(kind)
	if detail != "" {
		msg += ": " + detail
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("error.message", TruncateString(msg, DefaultMaxLength)),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", string(kind)),
	)
	span.SetStatus(codes.Error, msg)
}
