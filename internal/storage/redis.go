package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"ats-scanner/internal/cache"
	"ats-scanner/internal/config"
	"ats-scanner/internal/constants"
	"ats-scanner/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("ats-scanner/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.ExtractModulePrefix + ":": 0.05, // 缓存读写量大，采样5%
	constants.AppPrefix + ":" + constants.ScanModulePrefix + ":":    0.5,  // 去重操作采样50%
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return rand.Float64() < rate
		}
	}
	// 默认采样率5%
	return rand.Float64() < 0.05
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

var _ cache.SharedStore = (*Redis)(nil)

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 调用方不做重试，失败直接上报
		MaxRetries: -1,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// DedupeExpireDuration 返回扫描去重记录的保留时长
func (r *Redis) DedupeExpireDuration() time.Duration {
	if r.config == nil || r.config.DedupeExpireDays <= 0 {
		return constants.DefaultDedupeTTL
	}
	return time.Duration(r.config.DedupeExpireDays) * 24 * time.Hour
}

func (r *Redis) startSpan(ctx context.Context, name, operation, key string) (context.Context, trace.Span) {
	if !shouldSampleRedisOp(key) {
		return ctx, nil
	}
	ctx, span := redisTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", operation),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		// 设置标志位，表示不要在子span中传播，避免与redisotel hook产生的span重复
		attribute.Bool("otel.propagate_to_child", false),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetExtraction 读取共享缓存中的提取结果
func (r *Redis) GetExtraction(ctx context.Context, hash string) (cache.Entry, bool, error) {
	if r.Client == nil {
		return cache.Entry{}, false, fmt.Errorf("redis客户端未初始化")
	}
	key := fmt.Sprintf(constants.KeyExtractionText, hash)
	ctx, span := r.startSpan(ctx, "Redis.GetExtraction", "GET", key)

	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		if span != nil {
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		}
		endSpan(span, nil)
		return cache.Entry{}, false, nil
	}
	if err != nil {
		endSpan(span, err)
		return cache.Entry{}, false, fmt.Errorf("读取提取缓存失败: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		endSpan(span, err)
		return cache.Entry{}, false, fmt.Errorf("解析提取缓存失败: %w", err)
	}
	if span != nil {
		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(raw)),
		)
	}
	endSpan(span, nil)
	return entry, true, nil
}

// SetExtraction 写入共享缓存，ttl 为 0 时不过期
func (r *Redis) SetExtraction(ctx context.Context, hash string, entry cache.Entry, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	key := fmt.Sprintf(constants.KeyExtractionText, hash)
	ctx, span := r.startSpan(ctx, "Redis.SetExtraction", "SET", key)

	raw, err := json.Marshal(entry)
	if err != nil {
		endSpan(span, err)
		return fmt.Errorf("序列化提取结果失败: %w", err)
	}
	if span != nil && ttl > 0 {
		span.SetAttributes(attribute.Int64("db.redis.expiration_ms", ttl.Milliseconds()))
	}
	err = r.Client.Set(ctx, key, raw, ttl).Err()
	endSpan(span, err)
	if err != nil {
		return fmt.Errorf("写入提取缓存失败: %w", err)
	}
	return nil
}

// ClaimScan 以文件哈希和职位描述哈希为键登记扫描ID。
// 已有登记时返回已存在的扫描ID且 claimed 为 false。
func (r *Redis) ClaimScan(ctx context.Context, contentHash, jdHash, scanID string) (existingID string, claimed bool, err error) {
	ctx, span := redisTracer.Start(ctx, "Redis.ClaimScan",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if jdHash == "" {
		jdHash = constants.NoJobDescription
	}
	key := fmt.Sprintf(constants.KeyScanMD5ToID, contentHash, jdHash)
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "SETNX"),
		attribute.String("db.redis.key", key),
	)

	if r.Client == nil {
		err = fmt.Errorf("redis client is not initialized")
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", false, err
	}

	ok, err := r.Client.SetNX(ctx, key, scanID, r.DedupeExpireDuration()).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", false, fmt.Errorf("登记扫描去重记录失败: %w", err)
	}
	if ok {
		span.SetAttributes(attribute.Bool("already_exists", false))
		span.SetStatus(codes.Ok, "")
		return "", true, nil
	}

	existingID, err = r.Client.Get(ctx, key).Result()
	if err != nil {
		// 在极小的窗口内记录可能刚好过期
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", false, fmt.Errorf("获取已存在的扫描ID失败: %w", err)
	}
	span.SetAttributes(attribute.Bool("already_exists", true))
	span.SetStatus(codes.Ok, "")
	return existingID, false, nil
}

// ReleaseScan 删除去重登记，在异步提交失败时调用
func (r *Redis) ReleaseScan(ctx context.Context, contentHash, jdHash string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if jdHash == "" {
		jdHash = constants.NoJobDescription
	}
	return r.Client.Del(ctx, fmt.Sprintf(constants.KeyScanMD5ToID, contentHash, jdHash)).Err()
}
