package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"ats-scanner/internal/storage/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockMySQL(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	m, err := NewMySQLWithDB(gdb, "ats_test")
	require.NoError(t, err)
	return m, mock
}

func sampleRecord() *models.ScanRecord {
	return &models.ScanRecord{
		ScanID:       "0190a3c4-1111-7000-8000-000000000001",
		ContentHash:  "5d41402abc4b2a76b9719d911017c592",
		Filename:     "cv.pdf",
		Status:       models.ScanStatusCompleted,
		ScoringType:  "general",
		OverallScore: 72.5,
		Breakdown:    datatypes.JSON(`{"formatting":80}`),
	}
}

func TestMySQL_SaveScan(t *testing.T) {
	m, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `scan_records` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.SaveScan(context.Background(), sampleRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_SaveScanWithEvent(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		m, mock := newMockMySQL(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `scan_records`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `outbox_messages`").WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		msg := &models.OutboxMessage{
			MessageID:        "0190a3c4-2222-7000-8000-000000000002",
			AggregateID:      sampleRecord().ScanID,
			EventType:        "scan.completed",
			Payload:          `{"scan_id":"x"}`,
			TargetExchange:   "ats.scan.exchange",
			TargetRoutingKey: "scan.completed",
			Status:           models.OutboxStatusPending,
		}
		require.NoError(t, m.SaveScanWithEvent(context.Background(), sampleRecord(), msg))
		assert.Equal(t, uint64(7), msg.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("outbox failure rolls back", func(t *testing.T) {
		m, mock := newMockMySQL(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `scan_records`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `outbox_messages`").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := m.SaveScanWithEvent(context.Background(), sampleRecord(), &models.OutboxMessage{EventType: "scan.completed"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQL_GetScan(t *testing.T) {
	m, mock := newMockMySQL(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"scan_id", "content_hash", "filename", "status", "scoring_type", "overall_score", "breakdown", "created_at", "updated_at"}).
		AddRow("scan-1", "abc", "cv.pdf", "COMPLETED", "job_match", 81.25, []byte(`{"keyword_match":90}`), created, created)
	mock.ExpectQuery("SELECT \\* FROM `scan_records` WHERE scan_id = \\?").WillReturnRows(rows)

	record, err := m.GetScan(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "cv.pdf", record.Filename)
	assert.Equal(t, "job_match", record.ScoringType)
	assert.Equal(t, 81.25, record.OverallScore)
	assert.JSONEq(t, `{"keyword_match":90}`, string(record.Breakdown))
	assert.True(t, created.Equal(record.CreatedAt))

	mock.ExpectQuery("SELECT \\* FROM `scan_records` WHERE scan_id = \\?").WillReturnError(gorm.ErrRecordNotFound)
	_, err = m.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)

	mock.ExpectQuery("SELECT \\* FROM `scan_records`").WillReturnError(errors.New("connection reset"))
	_, err = m.GetScan(context.Background(), "scan-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScanNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_ListScans(t *testing.T) {
	m, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `scan_records`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT \\* FROM `scan_records` ORDER BY created_at desc LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{"scan_id", "overall_score"}).
			AddRow("scan-3", 90.0).
			AddRow("scan-2", 55.5))

	records, total, err := m.ListScans(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 2)
	assert.Equal(t, "scan-3", records[0].ScanID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQL_ListScansEmpty(t *testing.T) {
	m, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `scan_records`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	records, total, err := m.ListScans(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementTracer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, gdb.Use(&statementTracer{tracer: tp.Tracer("test"), dbName: "ats_test"}))

	mock.ExpectQuery("SELECT .* FROM `scan_records`").
		WillReturnRows(sqlmock.NewRows([]string{"scan_id"}))

	var record models.ScanRecord
	err = gdb.Where("scan_id = ?", "missing").First(&record).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "SELECT scan_records", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("db.record_not_found", true))
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.name", "ats_test"))
}
