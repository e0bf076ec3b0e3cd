package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ats-scanner/internal/config"
	"ats-scanner/internal/logger"
	"ats-scanner/internal/storage/models"
	"ats-scanner/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("ats-scanner/storage/mysql")

// ErrScanNotFound 扫描记录不存在
var ErrScanNotFound = errors.New("scan not found")

type spanContextKey struct{}

// tracedOperations 需要追踪的 GORM 操作
var tracedOperations = []string{"CREATE", "SELECT", "UPDATE", "DELETE", "ROW", "RAW"}

// statementTracer 为每条 GORM 语句创建 span，记录表名、影响行数和截断后的 SQL
type statementTracer struct {
	tracer trace.Tracer
	dbName string
}

// Name 实现 gorm.Plugin
func (p *statementTracer) Name() string {
	return "ats:statement-tracer"
}

// Initialize 实现 gorm.Plugin，在每类操作前后挂回调
func (p *statementTracer) Initialize(db *gorm.DB) error {
	for _, op := range tracedOperations {
		if err := p.register(db, op); err != nil {
			return fmt.Errorf("注册 %s 追踪回调失败: %w", op, err)
		}
	}
	return nil
}

func (p *statementTracer) register(db *gorm.DB, op string) error {
	before, after := "ats:before_"+strings.ToLower(op), "ats:after_"+strings.ToLower(op)
	start := p.start(op)
	cb := db.Callback()
	switch op {
	case "CREATE":
		return errors.Join(
			cb.Create().Before("gorm:create").Register(before, start),
			cb.Create().After("gorm:create").Register(after, p.finish))
	case "SELECT":
		return errors.Join(
			cb.Query().Before("gorm:query").Register(before, start),
			cb.Query().After("gorm:query").Register(after, p.finish))
	case "UPDATE":
		return errors.Join(
			cb.Update().Before("gorm:update").Register(before, start),
			cb.Update().After("gorm:update").Register(after, p.finish))
	case "DELETE":
		return errors.Join(
			cb.Delete().Before("gorm:delete").Register(before, start),
			cb.Delete().After("gorm:delete").Register(after, p.finish))
	case "ROW":
		return errors.Join(
			cb.Row().Before("gorm:row").Register(before, start),
			cb.Row().After("gorm:row").Register(after, p.finish))
	case "RAW":
		return errors.Join(
			cb.Raw().Before("gorm:raw").Register(before, start),
			cb.Raw().After("gorm:raw").Register(after, p.finish))
	}
	return fmt.Errorf("unknown operation %q", op)
}

func (p *statementTracer) start(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement.SkipHooks {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		ctx, span := p.tracer.Start(ctx, operation+" "+table,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", table),
			))
		db.Statement.Context = context.WithValue(ctx, spanContextKey{}, span)
	}
}

func (p *statementTracer) finish(db *gorm.DB) {
	span, ok := db.Statement.Context.Value(spanContextKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int64("db.rows_affected", max(db.Statement.RowsAffected, 0)))
	if sql := db.Statement.SQL.String(); sql != "" {
		span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(sql)))
	}
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		// 查不到扫描记录是正常结果
		span.SetAttributes(attribute.Bool("db.record_not_found", true))
	default:
		tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
	}
}

// MySQL 提供扫描历史和 outbox 的持久化
type MySQL struct {
	db     *gorm.DB
	dbName string
}

var gormLogLevels = map[int]gormlogger.LogLevel{
	1: gormlogger.Silent,
	2: gormlogger.Error,
	3: gormlogger.Warn,
	4: gormlogger.Info,
}

// NewMySQL 连接MySQL并迁移 scan_records、outbox_messages 两张表
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=10s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	level, ok := gormLogLevels[cfg.LogLevel]
	if !ok {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(level),
		PrepareStmt:                              true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m, err := NewMySQLWithDB(db, cfg.Database)
	if err == nil {
		err = m.migrate()
	}
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Named("mysql").Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Msg("MySQL已连接，扫描历史表已迁移")
	return m, nil
}

// NewMySQLWithDB 包装已打开的 GORM 连接并注册语句追踪，不做迁移
func NewMySQLWithDB(db *gorm.DB, dbName string) (*MySQL, error) {
	if err := db.Use(&statementTracer{tracer: mysqlTracer, dbName: dbName}); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}
	return &MySQL{db: db, dbName: dbName}, nil
}

// migrate 迁移表结构，迁移期间不打印 SQL
func (m *MySQL) migrate() error {
	quiet := m.db.Session(&gorm.Session{Logger: m.db.Logger.LogMode(gormlogger.Silent)})
	if err := quiet.AutoMigrate(&models.ScanRecord{}, &models.OutboxMessage{}); err != nil {
		return fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

func (m *MySQL) startSpan(ctx context.Context, name, operation, table string) (context.Context, trace.Span) {
	ctx, span := mysqlTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.dbName),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

// upsertScan 按 scan_id 插入或整体覆盖
func upsertScan(tx *gorm.DB, record *models.ScanRecord) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "scoring_type", "overall_score", "breakdown", "feedback",
			"recommendations", "parsed_data", "error_message", "updated_at",
		}),
	}).Create(record).Error
}

// SaveScan 保存扫描记录，已存在时更新结果字段
func (m *MySQL) SaveScan(ctx context.Context, record *models.ScanRecord) error {
	ctx, span := m.startSpan(ctx, "MySQL.SaveScan", "INSERT_ON_DUPLICATE", "scan_records")
	defer span.End()
	span.SetAttributes(attribute.String("scan.id", record.ScanID))

	if err := upsertScan(m.db.WithContext(ctx), record); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("保存扫描记录失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// SaveScanWithEvent 在同一事务内保存扫描记录和待发布的 outbox 消息
func (m *MySQL) SaveScanWithEvent(ctx context.Context, record *models.ScanRecord, msg *models.OutboxMessage) error {
	ctx, span := m.startSpan(ctx, "MySQL.SaveScanWithEvent", "TRANSACTION", "scan_records")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.id", record.ScanID),
		attribute.String("outbox.event_type", msg.EventType),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertScan(tx, record); err != nil {
			return fmt.Errorf("保存扫描记录失败: %w", err)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入outbox消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetScan 按扫描ID查询，不存在时返回 ErrScanNotFound
func (m *MySQL) GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	ctx, span := m.startSpan(ctx, "MySQL.GetScan", "SELECT", "scan_records")
	defer span.End()
	span.SetAttributes(attribute.String("scan.id", scanID))

	var record models.ScanRecord
	err := m.db.WithContext(ctx).Where("scan_id = ?", scanID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("查询扫描记录失败: %w", err)
	}
	return &record, nil
}

// ListScans 按创建时间倒序分页列出扫描记录，同时返回总数
func (m *MySQL) ListScans(ctx context.Context, limit, offset int) ([]models.ScanRecord, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	db := m.db.WithContext(ctx).Model(&models.ScanRecord{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计扫描记录失败: %w", err)
	}

	records := make([]models.ScanRecord, 0, limit)
	if total == 0 {
		return records, 0, nil
	}
	err := m.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询扫描记录失败: %w", err)
	}
	return records, total, nil
}
