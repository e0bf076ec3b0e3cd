package processor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ats-scanner/internal/logger"
	"ats-scanner/internal/storage/models"
	"ats-scanner/internal/types"

	"golang.org/x/sync/errgroup"
)

// BatchFile 批量扫描中的一个文件
type BatchFile struct {
	Filename string
	Data     []byte
}

// BatchSummary 批量扫描汇总
type BatchSummary struct {
	Total        int     `json:"total"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	Rejected     int     `json:"rejected"` // 未通过简历校验
	AverageScore float64 `json:"average_score"`
}

// BatchResponse 批量扫描结果：成功项按分数降序，失败项排在最后
type BatchResponse struct {
	Results   []*ScanResponse `json:"results"`
	Summary   BatchSummary    `json:"summary"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// ScanBatch 用同一职位描述并发扫描多个文件。
// 单个文件失败不影响其他文件，失败项以 scoring_type "error" 返回。
func (s *Scanner) ScanBatch(ctx context.Context, files []BatchFile, jobDescription string) (*BatchResponse, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: %d files, limit %d", ErrBatchTooLarge, len(files), s.maxFiles)
	}

	start := time.Now()
	log := logger.FromContext(ctx)
	results := make([]*ScanResponse, len(files))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, f := range files {
		g.Go(func() error {
			scanID := newScanID()
			resp, err := s.run(ctx, scanID, ScanRequest{
				Filename:       f.Filename,
				Data:           f.Data,
				JobDescription: jobDescription,
			}, ModeBatch)
			if err != nil {
				results[i] = failedResponse(scanID, f.Filename, err, s.now())
				return nil
			}
			s.saveHistory(ctx, resp, "", jobDescription)
			results[i] = resp
			return nil
		})
	}
	// 每个任务都返回 nil，错误已转换为结果项
	_ = g.Wait()

	sortBatchResults(results)
	out := &BatchResponse{
		Results:   results,
		Summary:   summarize(results),
		ElapsedMS: time.Since(start).Milliseconds(),
	}

	log.Info().
		Int("total", out.Summary.Total).
		Int("succeeded", out.Summary.Succeeded).
		Int("failed", out.Summary.Failed).
		Int64("elapsed_ms", out.ElapsedMS).
		Msg("批量扫描完成")
	return out, nil
}

// failedResponse 单个文件失败时的占位结果
func failedResponse(scanID, filename string, err error, now time.Time) *ScanResponse {
	result := types.NewResult(0, nil, nil, nil)
	result.ScoringType = types.ScoringTypeError
	return &ScanResponse{
		ScanID:    scanID,
		Filename:  cleanFilename(filename),
		Status:    models.ScanStatusFailed,
		Result:    result,
		ScannedAt: now.UTC(),
		Error:     err.Error(),
	}
}

// sortBatchResults 成功项按分数降序，分数相同保持提交顺序，失败项在最后
func sortBatchResults(results []*ScanResponse) {
	sort.SliceStable(results, func(i, j int) bool {
		ai := results[i].ScoringType == types.ScoringTypeError
		aj := results[j].ScoringType == types.ScoringTypeError
		if ai != aj {
			return !ai
		}
		if ai {
			return false
		}
		return results[i].OverallScore > results[j].OverallScore
	})
}

func summarize(results []*ScanResponse) BatchSummary {
	sum := BatchSummary{Total: len(results)}
	var total float64
	for _, r := range results {
		switch r.ScoringType {
		case types.ScoringTypeError:
			sum.Failed++
			continue
		case types.ScoringTypeValidationError:
			sum.Rejected++
		}
		sum.Succeeded++
		total += r.OverallScore
	}
	if sum.Succeeded > 0 {
		sum.AverageScore = types.Round2(total / float64(sum.Succeeded))
	}
	return sum
}
