package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ats-scanner/internal/storage/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, key string, body []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, exchange+"|"+key+"|"+string(body))
	return nil
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return gdb, mock
}

var outboxColumns = []string{
	"id", "message_id", "aggregate_id", "event_type", "payload",
	"target_exchange", "target_routing_key", "status", "retry_count", "created_at",
}

func TestProcessPendingMessages_PublishesAndMarksSent(t *testing.T) {
	db, mock := newMockDB(t)
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, WithBatchSize(5))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages` WHERE status = \\? ORDER BY created_at asc LIMIT .* FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow(1, "m-1", "scan-1", "scan.completed", `{"scan_id":"scan-1"}`, "ats.scan.exchange", "scan.completed", "PENDING", 0, time.Now()))
	mock.ExpectExec("UPDATE `outbox_messages` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent, err := relay.processPendingMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{`ats.scan.exchange|scan.completed|{"scan_id":"scan-1"}`}, pub.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPendingMessages_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").WillReturnRows(sqlmock.NewRows(outboxColumns))
	mock.ExpectCommit()

	sent, err := relay.processPendingMessages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPendingMessages_PublishFailure(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{err: errors.New("channel closed")})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").
		WillReturnRows(sqlmock.NewRows(outboxColumns).
			AddRow(2, "m-2", "scan-2", "scan.completed", `{}`, "ex", "rk", "PENDING", maxRetryCount-1, time.Now()))
	mock.ExpectExec("UPDATE `outbox_messages` SET .*`status`=\\?.*").
		WithArgs("m-2", "scan-2", "scan.completed", `{}`, "ex", "rk", models.OutboxStatusFailed,
			maxRetryCount, sqlmock.AnyArg(), sqlmock.AnyArg(), "channel closed", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent, err := relay.processPendingMessages(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPendingMessages_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `outbox_messages`").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := relay.processPendingMessages(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayStartStop(t *testing.T) {
	db, _ := newMockDB(t)
	relay := NewMessageRelay(db, &fakePublisher{}, WithPollingInterval(time.Hour))
	relay.Start()
	relay.Stop()
	relay.Stop()
}
