// Package validator 判断一份文档是否为简历
package validator

import (
	"fmt"
	"math"
	"strings"

	"ats-scanner/internal/signals"
	"ats-scanner/internal/types"
)

const (
	// DefaultThreshold 置信度不低于该值判定为简历
	DefaultThreshold = 0.4
	// DefaultMinWords 少于该词数的文档一律不是简历
	DefaultMinWords = 50

	weightSections  = 0.40
	weightKeywords  = 0.25
	weightContact   = 0.20
	weightStructure = 0.15
	weightNonResume = 0.30

	expectedSections  = 5.0
	expectedKeywords  = 8.0
	expectedNonResume = 3.0
)

const (
	ReasonTooShort     = "Document too short to be a resume"
	ReasonInsufficient = "Insufficient resume indicators found"
)

// 简历常见章节短语
var resumeSections = []string{
	"experience", "work experience", "employment", "professional experience",
	"education", "academic background", "qualifications",
	"skills", "technical skills", "core competencies", "abilities",
	"contact", "contact information", "personal information",
	"summary", "profile", "objective", "career objective",
	"certifications", "certificates", "achievements", "accomplishments",
	"projects", "personal projects", "work history", "employment history",
}

// 简历特有关键词
var resumeKeywords = []string{
	"resume", "cv", "curriculum vitae", "years of experience",
	"responsible for", "managed", "developed", "implemented",
	"bachelor", "master", "degree", "university", "college",
	"phone", "email", "address", "linkedin", "portfolio",
}

// 非简历文档特征词
var nonResumeIndicators = []string{
	"article", "chapter", "abstract", "conclusion", "bibliography",
	"references cited", "methodology", "literature review",
	"invoice", "receipt", "statement", "bill", "payment",
	"contract", "agreement", "terms and conditions",
	"memo", "memorandum", "meeting minutes", "agenda",
	"manual", "guide", "instructions", "tutorial",
	"report", "analysis", "findings", "research",
}

// Validator 简历校验器，构造后只读
type Validator struct {
	threshold float64
	minWords  int
}

// Option 校验器配置项
type Option func(*Validator)

// WithThreshold 修改判定阈值
func WithThreshold(t float64) Option {
	return func(v *Validator) {
		if t > 0 && t <= 1 {
			v.threshold = t
		}
	}
}

// WithMinWords 修改最短词数
func WithMinWords(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.minWords = n
		}
	}
}

// New 创建校验器
func New(opts ...Option) *Validator {
	v := &Validator{threshold: DefaultThreshold, minWords: DefaultMinWords}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate 使用默认参数校验
func Validate(text string, sig types.Signals) types.Verdict {
	return defaultValidator.Validate(text, sig)
}

// Validate 计算各分项并加权得到置信度。纯函数，不返回错误。
func (v *Validator) Validate(text string, sig types.Signals) types.Verdict {
	lower := strings.ToLower(text)

	sub := types.SubScores{
		Sections:  sectionScore(lower, sig.Sections),
		Keywords:  math.Min(float64(countPhrases(lower, resumeKeywords))/expectedKeywords, 1),
		Contact:   contactScore(sig.Contact),
		Structure: structureScore(sig),
		NonResume: math.Min(float64(countPhrases(lower, nonResumeIndicators))/expectedNonResume, 1),
	}

	confidence := sub.Sections*weightSections +
		sub.Keywords*weightKeywords +
		sub.Contact*weightContact -
		sub.NonResume*weightNonResume +
		sub.Structure*weightStructure
	confidence = types.Clamp01(confidence)

	var reasons []string
	tooShort := signals.CountWords(text) < v.minWords
	if tooShort {
		reasons = append(reasons, ReasonTooShort)
	}
	if sub.Sections > 0.3 {
		reasons = append(reasons, fmt.Sprintf("Contains resume sections (score: %.2f)", sub.Sections))
	}
	if sub.Keywords > 0.2 {
		reasons = append(reasons, fmt.Sprintf("Contains resume keywords (score: %.2f)", sub.Keywords))
	}
	if sub.Contact > 0.5 {
		reasons = append(reasons, fmt.Sprintf("Contains contact information (score: %.2f)", sub.Contact))
	}
	if sub.NonResume > 0.3 {
		reasons = append(reasons, fmt.Sprintf("Contains non-resume indicators (penalty: %.2f)", sub.NonResume))
	}
	if sub.Structure > 0.3 {
		reasons = append(reasons, fmt.Sprintf("Has resume-like structure (score: %.2f)", sub.Structure))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, ReasonInsufficient)
	}

	return types.Verdict{
		IsResume:   !tooShort && confidence >= v.threshold,
		Confidence: confidence,
		Reasons:    reasons,
		SubScores:  sub,
	}
}

// sectionScore 取“已识别章节命中数”和“正文章节短语命中数”的较大者
func sectionScore(lower string, detected []string) float64 {
	identified := 0
	for _, name := range detected {
		name = strings.ToLower(name)
		for _, rs := range resumeSections {
			if strings.Contains(name, rs) {
				identified++
				break
			}
		}
	}
	found := max(identified, countPhrases(lower, resumeSections))
	return math.Min(float64(found)/expectedSections, 1)
}

func contactScore(c types.ContactInfo) float64 {
	score := 0.0
	if len(c.Emails) > 0 {
		score += 0.4
	}
	if len(c.Phones) > 0 {
		score += 0.4
	}
	if c.HasAddress {
		score += 0.2
	}
	return math.Min(score, 1)
}

func structureScore(sig types.Signals) float64 {
	score := 0.0
	switch wc := sig.WordCount; {
	case wc >= 200 && wc <= 2000:
		score += 0.3
	case wc >= 100 && wc <= 3000:
		score += 0.1
	}
	switch {
	case sig.BulletCount > 5:
		score += 0.3
	case sig.BulletCount > 0:
		score += 0.1
	}
	switch n := len(sig.Skills); {
	case n > 3:
		score += 0.4
	case n > 0:
		score += 0.2
	}
	return score
}

func countPhrases(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if signals.ContainsWord(lower, p) {
			n++
		}
	}
	return n
}
