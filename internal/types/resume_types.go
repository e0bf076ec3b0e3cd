package types

import (
	"math"
	"sort"
)

// SectionName 简历章节的规范名称（封闭集合）
type SectionName string

const (
	SectionSummary        SectionName = "SUMMARY"
	SectionExperience     SectionName = "EXPERIENCE"
	SectionEducation      SectionName = "EDUCATION"
	SectionSkills         SectionName = "SKILLS"
	SectionProjects       SectionName = "PROJECTS"
	SectionCertifications SectionName = "CERTIFICATIONS"
	SectionAchievements   SectionName = "ACHIEVEMENTS"
	SectionActivities     SectionName = "ACTIVITIES"
	// SectionOther 未匹配任何章节标题的内容
	SectionOther SectionName = "OTHER"
)

// Document 解析后的文档，生成后不可修改
type Document struct {
	ContentHash string `json:"content_hash"` // 原始字节的MD5
	Text        string `json:"-"`
	WordCount   int    `json:"word_count"`
	BulletCount int    `json:"bullet_count"`
}

// Section 一个章节及其原始内容行
type Section struct {
	Name    SectionName `json:"name"`
	Lines   []string    `json:"lines"`
	Headers []int       `json:"-"` // Lines 中标题行的下标，OTHER 通常为空
}

// BodyLines 除标题行之外的内容行
func (s Section) BodyLines() []string {
	if len(s.Headers) == 0 {
		return s.Lines
	}
	skip := make(map[int]bool, len(s.Headers))
	for _, i := range s.Headers {
		skip[i] = true
	}
	body := make([]string, 0, len(s.Lines))
	for i, l := range s.Lines {
		if !skip[i] {
			body = append(body, l)
		}
	}
	return body
}

// Sections 按首次出现顺序排列的章节列表
type Sections []Section

// Get 按名称查找章节
func (ss Sections) Get(name SectionName) (Section, bool) {
	for _, s := range ss {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Names 返回已出现的章节名称（保持顺序）
func (ss Sections) Names() []SectionName {
	names := make([]SectionName, 0, len(ss))
	for _, s := range ss {
		names = append(names, s.Name)
	}
	return names
}

// ContactInfo 联系方式，缺失即为空，不做推断
type ContactInfo struct {
	Emails     []string `json:"emails"`
	Phones     []string `json:"phones"`
	HasAddress bool     `json:"has_address"`
}

// Signals 从简历文本中提取出的结构化信号
type Signals struct {
	Skills           []string    `json:"skills"`
	Contact          ContactInfo `json:"contact_info"`
	Keywords         []string    `json:"keywords"`
	RepeatedKeywords []string    `json:"-"` // 出现次数大于1的关键词，质量模式使用
	Education        []string    `json:"education"`
	ExperienceYears  int         `json:"experience_years"`
	WordCount        int         `json:"word_count"`
	BulletCount      int         `json:"bullet_points"`
	Sections         []string    `json:"sections"` // 小写的章节标识，如 experience, skills
}

// HasSection 判断是否检测到指定章节（小写名称）
func (s Signals) HasSection(name string) bool {
	for _, sec := range s.Sections {
		if sec == name {
			return true
		}
	}
	return false
}

// JobRequirement 从岗位描述推导出的要求
type JobRequirement struct {
	Skills          []string `json:"skills"`
	Education       []string `json:"education"`
	ExperienceYears int      `json:"experience_years"`
	Keywords        []string `json:"keywords"`
	WordCount       int      `json:"word_count"`
}

// Verdict 简历校验结论，每个文档只生成一次
type Verdict struct {
	IsResume   bool      `json:"is_resume"`
	Confidence float64   `json:"confidence"`
	Reasons    []string  `json:"reasons"`
	SubScores  SubScores `json:"sub_scores"`
}

// SubScores 校验器各分项得分，均归一化到 [0,1]
type SubScores struct {
	Sections  float64 `json:"sections"`
	Keywords  float64 `json:"keywords"`
	Contact   float64 `json:"contact"`
	Structure float64 `json:"structure"`
	NonResume float64 `json:"non_resume"`
}

// GrammarIssue 语法检查发现的一处问题
type GrammarIssue struct {
	Category    string   `json:"category"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ScoringType 评分结果类型
type ScoringType string

const (
	ScoringTypeQuality         ScoringType = "quality"
	ScoringTypeJobMatch        ScoringType = "job_match"
	ScoringTypeValidationError ScoringType = "validation_error"
	// ScoringTypeError 仅用于批量扫描中单个文件失败的占位结果
	ScoringTypeError ScoringType = "error"
)

// Breakdown 各评分类型的分项，按 scoring_type 区分
type Breakdown interface {
	ScoringType() ScoringType
	// Map 以百分制返回分项，用于序列化
	Map() map[string]float64
}

// QualityBreakdown 质量评估分项，取值 [0,1]
type QualityBreakdown struct {
	FormatStructure float64
	ContentQuality  float64
	GrammarLanguage float64
	Completeness    float64
}

func (QualityBreakdown) ScoringType() ScoringType { return ScoringTypeQuality }

func (b QualityBreakdown) Map() map[string]float64 {
	return map[string]float64{
		"format_structure": Round2(b.FormatStructure * 100),
		"content_quality":  Round2(b.ContentQuality * 100),
		"grammar_language": Round2(b.GrammarLanguage * 100),
		"completeness":     Round2(b.Completeness * 100),
	}
}

// Mean 四个分项的平均值
func (b QualityBreakdown) Mean() float64 {
	return (b.FormatStructure + b.ContentQuality + b.GrammarLanguage + b.Completeness) / 4
}

// JobMatchBreakdown 岗位匹配分项，取值 [0,1]
type JobMatchBreakdown struct {
	SkillsMatch         float64
	KeywordRelevance    float64
	ExperienceRelevance float64
	EducationMatch      float64
}

func (JobMatchBreakdown) ScoringType() ScoringType { return ScoringTypeJobMatch }

func (b JobMatchBreakdown) Map() map[string]float64 {
	return map[string]float64{
		"skills_match":         Round2(b.SkillsMatch * 100),
		"keyword_relevance":    Round2(b.KeywordRelevance * 100),
		"experience_relevance": Round2(b.ExperienceRelevance * 100),
		"education_match":      Round2(b.EducationMatch * 100),
	}
}

// ValidationBreakdown 校验失败时只携带置信度
type ValidationBreakdown struct {
	Confidence float64
}

func (ValidationBreakdown) ScoringType() ScoringType { return ScoringTypeValidationError }

func (b ValidationBreakdown) Map() map[string]float64 {
	return map[string]float64{"validation_confidence": math.Round(b.Confidence*1000) / 10}
}

// Result 评分结果，完全由输入决定
type Result struct {
	OverallScore    float64            `json:"overall_score"`
	ScoringType     ScoringType        `json:"scoring_type"`
	Breakdown       map[string]float64 `json:"breakdown"`
	Feedback        []string           `json:"feedback"`
	Recommendations []string           `json:"recommendations"`

	Detail Breakdown `json:"-"`
}

// NewResult 由分项构造结果，总分截断到 [0,100]
func NewResult(overall float64, detail Breakdown, feedback, recommendations []string) Result {
	r := Result{
		OverallScore:    Round2(ClampScore(overall)),
		Breakdown:       map[string]float64{},
		Feedback:        nonNil(feedback),
		Recommendations: nonNil(recommendations),
		Detail:          detail,
	}
	if detail != nil {
		r.ScoringType = detail.ScoringType()
		r.Breakdown = detail.Map()
	}
	return r
}

// BreakdownKeys 以稳定顺序返回分项键
func (r Result) BreakdownKeys() []string {
	keys := make([]string, 0, len(r.Breakdown))
	for k := range r.Breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClampScore 截断到 [0,100]
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// Clamp01 截断到 [0,1]
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Round2 保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
