package processor

import (
	"time"

	"ats-scanner/internal/cache"
	"ats-scanner/internal/metrics"
	"ats-scanner/internal/scoring"
	"ats-scanner/internal/segment"
	"ats-scanner/internal/signals"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/validator"

	"github.com/rs/zerolog"
)

// Option 定义 Scanner 的配置选项
type Option func(*Scanner)

// WithExtractor 设置文档提取器
func WithExtractor(e Extractor) Option {
	return func(s *Scanner) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithCache 设置解析缓存
func WithCache(c *cache.Cache) Option {
	return func(s *Scanner) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithSegmenter 设置章节切分器
func WithSegmenter(seg *segment.Segmenter) Option {
	return func(s *Scanner) {
		if seg != nil {
			s.segmenter = seg
		}
	}
}

// WithSignalExtractor 设置信号提取器，评分引擎应使用同一个词表
func WithSignalExtractor(x *signals.Extractor) Option {
	return func(s *Scanner) {
		if x != nil {
			s.signals = x
		}
	}
}

// WithValidator 设置简历校验器
func WithValidator(v *validator.Validator) Option {
	return func(s *Scanner) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithEngine 设置评分引擎
func WithEngine(e *scoring.Engine) Option {
	return func(s *Scanner) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithHistory 设置扫描历史存储
func WithHistory(h History) Option {
	return func(s *Scanner) {
		s.history = h
	}
}

// WithDeduper 设置异步扫描去重
func WithDeduper(d Deduper) Option {
	return func(s *Scanner) {
		s.deduper = d
	}
}

// WithObjectStorage 设置原始文件存储
func WithObjectStorage(o storage.ObjectStorage) Option {
	return func(s *Scanner) {
		s.objects = o
	}
}

// WithPublisher 设置异步扫描请求的发布者
func WithPublisher(p Publisher) Option {
	return func(s *Scanner) {
		s.publisher = p
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBatchLimits 设置批量扫描的文件数上限和并发度
func WithBatchLimits(maxFiles, concurrency int) Option {
	return func(s *Scanner) {
		if maxFiles > 0 {
			s.maxFiles = maxFiles
		}
		if concurrency > 0 {
			s.concurrency = concurrency
		}
	}
}

// WithMaxUploadSize 设置单个文件的大小上限（字节）
func WithMaxUploadSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxUploadSize = n
		}
	}
}

// WithRequestTimeout 单次扫描的超时时间，0 表示不限制
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d >= 0 {
			s.requestTimeout = d
		}
	}
}

// WithCompletionEvent 设置 scan.completed 事件的交换机和路由键
func WithCompletionEvent(exchange, routingKey string) Option {
	return func(s *Scanner) {
		s.eventExchange = exchange
		s.eventRoutingKey = routingKey
	}
}

// WithClock 替换时间来源，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}
