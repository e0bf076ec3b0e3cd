package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ats-scanner/internal/parser"
	"ats-scanner/internal/storage"
	"ats-scanner/internal/storage/models"
	"ats-scanner/internal/types"
	"ats-scanner/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// stubExtractor 把文件内容原样作为文本返回
type stubExtractor struct {
	calls int32
	err   error
}

func (e *stubExtractor) Extract(_ context.Context, data []byte, filename string) (string, map[string]string, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return "", nil, e.err
	}
	return string(data), map[string]string{"format": parser.FormatOf(filename)}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records map[string]*models.ScanRecord
	events  []*models.OutboxMessage
	saveErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: map[string]*models.ScanRecord{}}
}

func (h *fakeHistory) SaveScan(_ context.Context, r *models.ScanRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveErr != nil {
		return h.saveErr
	}
	copied := *r
	copied.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.records[r.ScanID] = &copied
	return nil
}

func (h *fakeHistory) SaveScanWithEvent(ctx context.Context, r *models.ScanRecord, msg *models.OutboxMessage) error {
	if err := h.SaveScan(ctx, r); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, msg)
	return nil
}

func (h *fakeHistory) GetScan(_ context.Context, id string) (*models.ScanRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.records[id]
	if !ok {
		return nil, storage.ErrScanNotFound
	}
	return r, nil
}

func (h *fakeHistory) ListScans(_ context.Context, limit, offset int) ([]models.ScanRecord, int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ScanRecord, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (h *fakeHistory) record(id string) *models.ScanRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[id]
}

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func sampleResume() string {
	var b strings.Builder
	b.WriteString("Jane Doe\nEmail: jane.doe@example.com | Phone: (212) 555-0147 | linkedin.com/in/janedoe\n\n")
	b.WriteString("Summary\nBackend engineer with 6 years of experience in Go and Python.\n\n")
	b.WriteString("Experience\n")
	for i := 0; i < 6; i++ {
		b.WriteString("- Developed and managed Kubernetes services, responsible for uptime and Docker builds\n")
	}
	b.WriteString("\nProjects\n- Built an open source Redis client used by many teams\n\n")
	b.WriteString("Education\nBachelor of Science, State University\n\n")
	b.WriteString("Skills\nGo, Python, Docker, Kubernetes, Redis, PostgreSQL\n")
	return b.String()
}

const newsletter = "The quarterly garden club newsletter covers spring planting tips, compost care, and watering " +
	"schedules for tomatoes and herbs. Members share photos and recipes every month at the community hall downtown."

func TestScan_Quality(t *testing.T) {
	ext := &stubExtractor{}
	hist := newFakeHistory()
	s := NewScanner(WithExtractor(ext), WithHistory(hist))

	data := []byte(sampleResume())
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "/tmp/uploads/jane.pdf", Data: data})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ScanID)
	assert.Equal(t, "jane.pdf", resp.Filename)
	assert.Equal(t, utils.CalculateMD5(data), resp.ContentHash)
	assert.Equal(t, types.ScoringTypeQuality, resp.ScoringType)
	assert.GreaterOrEqual(t, resp.OverallScore, 0.0)
	assert.LessOrEqual(t, resp.OverallScore, 100.0)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.IsResume)

	require.NotNil(t, resp.ParsedData)
	assert.NotEmpty(t, resp.ParsedData.Skills)
	assert.Equal(t, 6, resp.ParsedData.ExperienceYears)
	assert.Equal(t, []string{"jane.doe@example.com"}, resp.ParsedData.ContactInfo.Emails)
	assert.Greater(t, resp.ParsedData.Readability.SyllableCount, 0)
	assert.Equal(t, "pdf", resp.Metadata["format"])

	saved := hist.record(resp.ScanID)
	require.NotNil(t, saved)
	assert.Equal(t, models.ScanStatusCompleted, saved.Status)
	assert.Equal(t, "quality", saved.ScoringType)
	assert.Equal(t, resp.OverallScore, saved.OverallScore)
}

func TestScan_JSONShape(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "cv.txt", Data: []byte(sampleResume())})
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	for _, key := range []string{"scan_id", "overall_score", "scoring_type", "breakdown", "feedback", "recommendations", "validation", "parsed_data"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "Detail")
	assert.NotContains(t, m, "error")
}

func TestScan_CachedExtraction(t *testing.T) {
	ext := &stubExtractor{}
	s := NewScanner(WithExtractor(ext))
	data := []byte(sampleResume())

	first, err := s.Scan(context.Background(), ScanRequest{Filename: "a.pdf", Data: data})
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), ScanRequest{Filename: "b.pdf", Data: data})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ext.calls))
	assert.NotEqual(t, first.ScanID, second.ScanID)
	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, int64(1), s.Cache().Stats().Hits)
}

func TestScan_CachedExtractionUsesRequestMetadata(t *testing.T) {
	ext := &stubExtractor{}
	s := NewScanner(WithExtractor(ext))
	data := []byte(sampleResume())

	first, err := s.Scan(context.Background(), ScanRequest{Filename: "/tmp/a.pdf", Data: data})
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), ScanRequest{Filename: "renamed.docx", Data: data})
	require.NoError(t, err)

	require.True(t, second.Cached)
	assert.Equal(t, "a.pdf", first.Metadata["filename"])
	assert.Equal(t, "pdf", first.Metadata["format"])
	assert.Equal(t, "renamed.docx", second.Metadata["filename"])
	assert.Equal(t, "docx", second.Metadata["format"])
	assert.Equal(t, "a.pdf", first.Metadata["filename"], "first response must not be mutated by the second scan")
}

func TestScan_NormalizesExtractedText(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	plain, err := s.Scan(context.Background(), ScanRequest{Filename: "plain.txt", Data: []byte(sampleResume())})
	require.NoError(t, err)

	messy := strings.ReplaceAll(sampleResume(), "\n", "\r\n")
	messy = strings.ReplaceAll(messy, "- ", "\u00a0- ")
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "messy.txt", Data: []byte(messy)})
	require.NoError(t, err)

	require.NotNil(t, resp.ParsedData)
	assert.Equal(t, 7, plain.ParsedData.BulletPoints)
	assert.Equal(t, plain.ParsedData.BulletPoints, resp.ParsedData.BulletPoints)
	assert.Equal(t, plain.ParsedData.Sections, resp.ParsedData.Sections)
}

func TestScan_SpanCarriesBreakdownKeys(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	s := NewScanner(WithExtractor(&stubExtractor{}))
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "cv.txt", Data: []byte(sampleResume())})
	require.NoError(t, err)
	require.NotEmpty(t, resp.BreakdownKeys())

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "Scanner.Scan" {
			continue
		}
		found = true
		assert.Contains(t, span.Attributes(), attribute.StringSlice("scan.breakdown_keys", resp.BreakdownKeys()))
	}
	assert.True(t, found)
}

func TestScan_JobMatch(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	resp, err := s.Scan(context.Background(), ScanRequest{
		Filename:       "cv.docx",
		Data:           []byte(sampleResume()),
		JobDescription: "Seeking a backend engineer with Go, Python and Kubernetes skills",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ScoringTypeJobMatch, resp.ScoringType)
	assert.Contains(t, resp.Breakdown, "skills_match")
}

func TestScan_NonResumeIsRejected(t *testing.T) {
	hist := newFakeHistory()
	s := NewScanner(WithExtractor(&stubExtractor{}), WithHistory(hist))
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "news.txt", Data: []byte(newsletter)})
	require.NoError(t, err)

	assert.Equal(t, types.ScoringTypeValidationError, resp.ScoringType)
	assert.Zero(t, resp.OverallScore)
	assert.False(t, resp.Validation.IsResume)
	assert.Equal(t, 1, hist.count(), "拒绝也是正常结果，会写入历史")
}

func TestScan_InvalidUpload(t *testing.T) {
	ext := &stubExtractor{}
	s := NewScanner(WithExtractor(ext), WithMaxUploadSize(64))

	tests := []struct {
		name string
		req  ScanRequest
		want error
	}{
		{"missing filename", ScanRequest{Data: []byte("x")}, ErrMissingFilename},
		{"unsupported format", ScanRequest{Filename: "cv.exe", Data: []byte("x")}, parser.ErrUnsupportedFormat},
		{"empty file", ScanRequest{Filename: "cv.pdf"}, ErrEmptyFile},
		{"too large", ScanRequest{Filename: "cv.pdf", Data: make([]byte, 65)}, ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Scan(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, &ScanError{Stage: StageValidate})
		})
	}
	assert.Zero(t, atomic.LoadInt32(&ext.calls))
}

func TestScan_ExtractionFailure(t *testing.T) {
	ext := &stubExtractor{err: &parser.ExtractionError{Filename: "cv.pdf", Format: "pdf", Err: parser.ErrCorruptDocument}}
	hist := newFakeHistory()
	s := NewScanner(WithExtractor(ext), WithHistory(hist))

	_, err := s.Scan(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte("%PDF-broken")})
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrCorruptDocument)
	assert.ErrorIs(t, err, &ScanError{Stage: StageExtract})
	assert.NotErrorIs(t, err, &ScanError{Stage: StageValidate})

	var extractionErr *parser.ExtractionError
	assert.ErrorAs(t, err, &extractionErr)
	assert.Zero(t, hist.count(), "提取失败不产生结果")
}

func TestScan_HistoryFailureIsNotFatal(t *testing.T) {
	hist := newFakeHistory()
	hist.saveErr = errors.New("db down")
	s := NewScanner(WithExtractor(&stubExtractor{}), WithHistory(hist))

	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestGetAndListScans(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	_, err := s.GetScan(context.Background(), "x")
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
	_, _, err = s.ListScans(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	hist := newFakeHistory()
	s = NewScanner(WithExtractor(&stubExtractor{}), WithHistory(hist))
	resp, err := s.Scan(context.Background(), ScanRequest{Filename: "cv.pdf", Data: []byte(sampleResume())})
	require.NoError(t, err)

	got, err := s.GetScan(context.Background(), resp.ScanID)
	require.NoError(t, err)
	assert.Equal(t, resp.OverallScore, got.OverallScore)
	assert.Equal(t, resp.ScoringType, got.ScoringType)
	assert.Equal(t, resp.Breakdown, got.Breakdown)
	assert.Equal(t, resp.Feedback, got.Feedback)
	assert.Equal(t, resp.ParsedData.Skills, got.ParsedData.Skills)
	assert.Nil(t, got.Validation)

	_, err = s.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrScanNotFound)

	list, total, err := s.ListScans(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, resp.ScanID, list[0].ScanID)
}

func TestResponseFromRecord_Pending(t *testing.T) {
	resp, err := responseFromRecord(&models.ScanRecord{ScanID: "id-1", Filename: "cv.pdf", Status: models.ScanStatusPending})
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPending, resp.Status)
	assert.Empty(t, resp.Breakdown)
	assert.NotNil(t, resp.Feedback)
	assert.Nil(t, resp.ParsedData)

	_, err = responseFromRecord(&models.ScanRecord{ScanID: "id-2", Breakdown: []byte("{broken")})
	assert.Error(t, err)
}

func TestScanError(t *testing.T) {
	err := newScanError("abc", StagePublish, errors.New("channel closed"))
	assert.Equal(t, "scan publish [abc]: channel closed", err.Error())
	assert.Equal(t, "scan validate: boom", newScanError("", StageValidate, errors.New("boom")).Error())
	assert.ErrorIs(t, err, &ScanError{})
	assert.ErrorIs(t, err, &ScanError{Stage: StagePublish})
	assert.NotErrorIs(t, err, &ScanError{Stage: StageStore})
}

func TestExtractionKind(t *testing.T) {
	assert.Equal(t, "empty", extractionKind(&parser.ExtractionError{Err: parser.ErrEmptyDocument}))
	assert.Equal(t, "unavailable", extractionKind(&parser.ExtractionError{Err: parser.ErrExtractorUnavailable}))
	assert.Equal(t, "timeout", extractionKind(context.DeadlineExceeded))
	assert.Equal(t, "unknown", extractionKind(errors.New("?")))
}

func TestNewScanID_IsV7(t *testing.T) {
	id := newScanID()
	require.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14])
}

func TestSearchSkills(t *testing.T) {
	s := NewScanner(WithExtractor(&stubExtractor{}))
	assert.Equal(t, []string{"Spring", "Spring Boot"}, s.SearchSkills("Spring", 0))
	assert.Equal(t, []string{"Spring"}, s.SearchSkills("spring", 1))
	assert.Equal(t, []string{}, s.SearchSkills("no-such-skill", 5))
	assert.Equal(t, []string{}, s.SearchSkills("", 5))
}
