// Package scoring 根据校验结论、文档信号和可选的岗位描述计算评分结果
package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ats-scanner/internal/signals"
	"ats-scanner/internal/types"

	"github.com/rs/zerolog"
)

const (
	// DefaultGrammarTimeout 语法检查的默认超时
	DefaultGrammarTimeout = 10 * time.Second
	// DefaultSampleLength 送检文本的最大字符数
	DefaultSampleLength = 2000

	// neutralScore 岗位描述缺乏具体要求时各分项的中性分
	neutralScore = 0.6
)

// GrammarChecker 语法检查协作者
type GrammarChecker interface {
	Check(ctx context.Context, text string) ([]types.GrammarIssue, error)
}

// Input 单次评分的全部输入
type Input struct {
	Document       types.Document
	Sections       types.Sections
	Signals        types.Signals
	Verdict        types.Verdict
	JobDescription string
}

// Engine 评分引擎。除可选的语法检查外不做任何 I/O，可并发使用。
type Engine struct {
	extractor      *signals.Extractor
	grammar        GrammarChecker
	grammarTimeout time.Duration
	sampleLength   int
	legacyPenalty  bool
	logger         *zerolog.Logger
}

// Option 引擎配置项
type Option func(*Engine)

// WithGrammarChecker 设置语法检查协作者，为空时语法分使用默认值
func WithGrammarChecker(g GrammarChecker) Option {
	return func(e *Engine) {
		e.grammar = g
	}
}

// WithGrammarTimeout 设置语法检查超时
func WithGrammarTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.grammarTimeout = d
		}
	}
}

// WithSampleLength 设置送检文本长度
func WithSampleLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sampleLength = n
		}
	}
}

// WithLegacyPenalty 质量模式改用扣分制总分
func WithLegacyPenalty(enabled bool) Option {
	return func(e *Engine) {
		e.legacyPenalty = enabled
	}
}

// WithExtractor 设置解析岗位描述用的提取器
func WithExtractor(x *signals.Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine 创建评分引擎
func NewEngine(opts ...Option) *Engine {
	nop := zerolog.Nop()
	e := &Engine{
		extractor:      signals.NewExtractor(nil),
		grammarTimeout: DefaultGrammarTimeout,
		sampleLength:   DefaultSampleLength,
		logger:         &nop,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score 评分入口：未通过校验返回 validation_error；
// 无岗位描述走质量评估；岗位描述有效时走岗位匹配，否则返回中性结果。
func (e *Engine) Score(ctx context.Context, in Input) types.Result {
	if !in.Verdict.IsResume {
		return Rejected(in.Verdict)
	}

	jd := strings.TrimSpace(in.JobDescription)
	if jd == "" {
		return e.ScoreQuality(ctx, in.Document, in.Sections, in.Signals)
	}

	req := e.extractor.ExtractJobRequirement(jd)
	if !IsMeaningful(req) {
		e.logger.Debug().Int("jd_words", req.WordCount).Msg("岗位描述缺乏具体要求，返回中性结果")
		return Neutral()
	}
	return e.ScoreJobMatch(in.Signals, req, jd)
}

// IsMeaningful 岗位描述是否包含可用于匹配的要求
func IsMeaningful(req types.JobRequirement) bool {
	hasSkills := len(req.Skills) > 0
	if req.WordCount >= 1 && hasSkills {
		return true
	}
	return req.WordCount >= 15 && (hasSkills || len(req.Education) > 0 || req.ExperienceYears > 0)
}

// Neutral 岗位描述无效时的中性结果
func Neutral() types.Result {
	detail := types.JobMatchBreakdown{
		SkillsMatch:         neutralScore,
		KeywordRelevance:    neutralScore,
		ExperienceRelevance: neutralScore,
		EducationMatch:      neutralScore,
	}
	return types.NewResult(neutralScore*100, detail,
		[]string{"Job description lacks specific requirements"},
		[]string{"Provide detailed job description with specific skills and requirements for better matching"},
	)
}

// Rejected 校验未通过时的结果，总分为0
func Rejected(v types.Verdict) types.Result {
	reason := ReasonText(v.Reasons)
	return types.NewResult(0, types.ValidationBreakdown{Confidence: v.Confidence},
		[]string{
			fmt.Sprintf("Document validation failed (confidence: %s)", percent(v.Confidence)),
			"This document does not appear to be a resume or CV",
			"Reason: " + reason,
		},
		[]string{
			"Please upload a valid resume or CV document",
			"Ensure the document contains typical resume sections like Experience, Education, Skills",
			"Check that the document includes contact information and professional details",
		},
	)
}

// ReasonText 合并校验原因
func ReasonText(reasons []string) string {
	if len(reasons) == 0 {
		return "Insufficient resume indicators found"
	}
	return strings.Join(reasons, "; ")
}

// percent 按一位小数的百分比格式化 [0,1] 的值
func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
