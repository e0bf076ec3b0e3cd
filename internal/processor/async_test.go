package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ats-scanner/internal/constants"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/storage/models"
	"ats-scanner/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (o *fakeObjects) PutOriginal(_ context.Context, hash, filename string, data []byte) (string, error) {
	if o.putErr != nil {
		return "", o.putErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	key := storage.OriginalObjectKey(hash, filename)
	o.objects[key] = data
	return key, nil
}

func (o *fakeObjects) GetOriginal(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (o *fakeObjects) DeleteOriginal(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []storage.ScanRequestMessage
	err  error
}

func (p *fakePublisher) PublishScanRequest(_ context.Context, msg storage.ScanRequestMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeDeduper struct {
	mu       sync.Mutex
	claims   map[string]string
	released int
	err      error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{claims: map[string]string{}}
}

func (d *fakeDeduper) ClaimScan(_ context.Context, contentHash, jdHash, scanID string) (string, bool, error) {
	if d.err != nil {
		return "", false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := contentHash + ":" + jdHash
	if existing, ok := d.claims[key]; ok {
		return existing, false, nil
	}
	d.claims[key] = scanID
	return scanID, true, nil
}

func (d *fakeDeduper) ReleaseScan(_ context.Context, contentHash, jdHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, contentHash+":"+jdHash)
	d.released++
	return nil
}

type asyncFixture struct {
	scanner   *Scanner
	history   *fakeHistory
	objects   *fakeObjects
	publisher *fakePublisher
	deduper   *fakeDeduper
}

func newAsyncFixture() *asyncFixture {
	f := &asyncFixture{
		history:   newFakeHistory(),
		objects:   newFakeObjects(),
		publisher: &fakePublisher{},
		deduper:   newFakeDeduper(),
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.scanner = NewScanner(
		WithExtractor(&stubExtractor{}),
		WithHistory(f.history),
		WithObjectStorage(f.objects),
		WithPublisher(f.publisher),
		WithDeduper(f.deduper),
		WithCompletionEvent("ats.scan.exchange", "scan.completed"),
		WithClock(func() time.Time { return fixed }),
	)
	return f
}

func TestSubmitAsync_Unavailable(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	assert.False(t, s.AsyncReady())
	_, err := s.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrAsyncUnavailable)
}

func TestSubmitAsync_Accepted(t *testing.T) {
	f := newAsyncFixture()
	data := []byte(sampleResume())

	ticket, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "Jane.PDF", Data: data, JobDescription: "Go developer"})
	require.NoError(t, err)
	assert.False(t, ticket.Duplicate)
	assert.Equal(t, models.ScanStatusPending, ticket.Status)

	hash := utils.CalculateMD5(data)
	require.Len(t, f.publisher.msgs, 1)
	msg := f.publisher.msgs[0]
	assert.Equal(t, ticket.ScanID, msg.ScanID)
	assert.Equal(t, "originals/"+hash+".pdf", msg.ObjectKey)
	assert.Equal(t, "Jane.PDF", msg.OriginalFilename)
	assert.Equal(t, hash, msg.ContentHash)
	assert.Equal(t, "Go developer", msg.JobDescription)

	pending := f.history.record(ticket.ScanID)
	require.NotNil(t, pending)
	assert.Equal(t, models.ScanStatusPending, pending.Status)
	assert.Equal(t, msg.ObjectKey, pending.ObjectKey)

	// 同一文件和职位描述再次提交
	dup, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "copy.pdf", Data: data, JobDescription: "Go   developer"})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, ticket.ScanID, dup.ScanID)
	assert.Len(t, f.publisher.msgs, 1)

	// 不同职位描述视为新的扫描
	other, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: data})
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}

func TestSubmitAsync_PublishFailureReleasesClaim(t *testing.T) {
	f := newAsyncFixture()
	f.publisher.err = errors.New("channel closed")

	_, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	require.Error(t, err)
	assert.ErrorIs(t, err, &ScanError{Stage: StagePublish})
	assert.Equal(t, 1, f.deduper.released)
	assert.Empty(t, f.deduper.claims)
}

func TestSubmitAsync_StoreFailure(t *testing.T) {
	f := newAsyncFixture()
	f.objects.putErr = errors.New("bucket missing")

	_, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	assert.ErrorIs(t, err, &ScanError{Stage: StageStore})
	assert.Zero(t, f.history.count())
	assert.Empty(t, f.publisher.msgs)
}

func TestSubmitAsync_DedupeErrorStillAccepts(t *testing.T) {
	f := newAsyncFixture()
	f.deduper.err = errors.New("redis down")

	ticket, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	require.NoError(t, err)
	assert.False(t, ticket.Duplicate)
	assert.Len(t, f.publisher.msgs, 1)
}

func TestSubmitAsync_InvalidUpload(t *testing.T) {
	f := newAsyncFixture()
	_, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.exe", Data: []byte("x")})
	assert.ErrorIs(t, err, &ScanError{Stage: StageValidate})
	assert.Empty(t, f.deduper.claims)
}

func TestHandleAsyncMessage_Completed(t *testing.T) {
	f := newAsyncFixture()
	ticket, err := f.scanner.SubmitAsync(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	require.NoError(t, err)

	body, err := json.Marshal(f.publisher.msgs[0])
	require.NoError(t, err)
	require.NoError(t, f.scanner.HandleAsyncMessage(context.Background(), body))

	record := f.history.record(ticket.ScanID)
	require.NotNil(t, record)
	assert.Equal(t, models.ScanStatusCompleted, record.Status)
	assert.Equal(t, "quality", record.ScoringType)
	assert.NotEmpty(t, record.ParsedData)

	require.Len(t, f.history.events, 1)
	evt := f.history.events[0]
	assert.Equal(t, ticket.ScanID, evt.AggregateID)
	assert.Equal(t, constants.EventTypeScanCompleted, evt.EventType)
	assert.Equal(t, "ats.scan.exchange", evt.TargetExchange)
	assert.Equal(t, "scan.completed", evt.TargetRoutingKey)
	assert.Len(t, evt.MessageID, 36)

	var payload storage.ScanCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(evt.Payload), &payload))
	assert.Equal(t, ticket.ScanID, payload.ScanID)
	assert.Equal(t, models.ScanStatusCompleted, payload.Status)
	assert.Equal(t, record.OverallScore, payload.OverallScore)
	assert.Empty(t, payload.Error)
	assert.Zero(t, f.deduper.released)

	got, err := f.scanner.GetScan(context.Background(), ticket.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, got.Status)
}

func TestHandleAsyncMessage_FailedScanIsRecorded(t *testing.T) {
	f := newAsyncFixture()
	msg := storage.ScanRequestMessage{ScanID: "0190a1b2-0000-7000-8000-000000000001", ObjectKey: "originals/missing.pdf", OriginalFilename: "cv.pdf", ContentHash: "abc"}
	body, _ := json.Marshal(msg)

	require.NoError(t, f.scanner.HandleAsyncMessage(context.Background(), body))

	record := f.history.record(msg.ScanID)
	require.NotNil(t, record)
	assert.Equal(t, models.ScanStatusFailed, record.Status)
	assert.Equal(t, "error", record.ScoringType)
	assert.Contains(t, record.ErrorMessage, "object not found")
	assert.Equal(t, "abc", record.ContentHash)
	assert.Equal(t, 1, f.deduper.released)

	var payload storage.ScanCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(f.history.events[0].Payload), &payload))
	assert.Equal(t, models.ScanStatusFailed, payload.Status)
	assert.NotEmpty(t, payload.Error)
}

func TestHandleAsyncMessage_Errors(t *testing.T) {
	f := newAsyncFixture()
	assert.ErrorIs(t, f.scanner.HandleAsyncMessage(context.Background(), []byte("{not json")), ErrInvalidMessage)
	assert.ErrorIs(t, f.scanner.HandleAsyncMessage(context.Background(), []byte(`{"scan_id":""}`)), ErrInvalidMessage)

	f.history.saveErr = errors.New("db down")
	body, _ := json.Marshal(storage.ScanRequestMessage{ScanID: "id", ObjectKey: "originals/x.pdf", OriginalFilename: "x.pdf"})
	err := f.scanner.HandleAsyncMessage(context.Background(), body)
	assert.ErrorIs(t, err, &ScanError{Stage: StagePersist})
}
