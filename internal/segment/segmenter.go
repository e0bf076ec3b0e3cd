// Package segment 把简历文本切分为规范章节
package segment

import (
	"regexp"
	"strings"

	"ats-scanner/internal/types"
)

// MaxHeaderLength 标题行的长度上限（字符数，不含）
const MaxHeaderLength = 50

// Rule 章节标题匹配规则
type Rule struct {
	Section types.SectionName
	Pattern *regexp.Regexp
}

// DefaultRules 按声明顺序匹配，先匹配者胜出
var DefaultRules = []Rule{
	{types.SectionEducation, regexp.MustCompile(`(?i)(education|academic|qualification|degree|studies)`)},
	{types.SectionExperience, regexp.MustCompile(`(?i)(experience|employment|work|career|history)`)},
	{types.SectionSkills, regexp.MustCompile(`(?i)(skills|expertise|competencies|proficiencies|technical)`)},
	{types.SectionProjects, regexp.MustCompile(`(?i)(projects|portfolio|works)`)},
	{types.SectionAchievements, regexp.MustCompile(`(?i)(achievements|accomplishments|awards|honors)`)},
	{types.SectionCertifications, regexp.MustCompile(`(?i)(certifications|certificates|credentials)`)},
	{types.SectionSummary, regexp.MustCompile(`(?i)(summary|profile|objective|about)`)},
	{types.SectionActivities, regexp.MustCompile(`(?i)(activities|involvement|leadership|volunteer)`)},
}

// Segmenter 基于规则表的章节切分器，无内部状态，可并发使用
type Segmenter struct {
	rules     []Rule
	maxHeader int
}

// Option Segmenter 配置项
type Option func(*Segmenter)

// WithRules 替换规则表
func WithRules(rules []Rule) Option {
	return func(s *Segmenter) {
		s.rules = rules
	}
}

// WithMaxHeaderLength 修改标题行长度上限
func WithMaxHeaderLength(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxHeader = n
		}
	}
}

// New 创建切分器
func New(opts ...Option) *Segmenter {
	s := &Segmenter{rules: DefaultRules, maxHeader: MaxHeaderLength}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchHeader 判断一行是否为章节标题，返回命中的章节
func (s *Segmenter) MatchHeader(line string) (types.SectionName, bool) {
	if len(line) >= s.maxHeader {
		return "", false
	}
	for _, r := range s.rules {
		if r.Pattern.MatchString(line) {
			return r.Section, true
		}
	}
	return "", false
}

// Segment 逐行扫描文本。空行跳过，标题行开启新章节并作为该章节的第一行，
// 其余行归入当前章节（初始为 OTHER）。重复出现的章节追加到已有章节。
func (s *Segmenter) Segment(text string) types.Sections {
	var (
		out      types.Sections
		index    = map[types.SectionName]int{}
		current  = types.SectionOther
		isHeader bool
		buf      []string
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		i, ok := index[current]
		if !ok {
			i = len(out)
			index[current] = i
			out = append(out, types.Section{Name: current})
		}
		if isHeader {
			out[i].Headers = append(out[i].Headers, len(out[i].Lines))
		}
		out[i].Lines = append(out[i].Lines, buf...)
		buf = nil
		isHeader = false
	}

	for _, raw := range strings.Split(normalizeNewlines(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if name, ok := s.MatchHeader(line); ok {
			flush()
			current = name
			isHeader = true
		}
		buf = append(buf, line)
	}
	flush()

	return out
}

// Segment 使用默认规则切分
func Segment(text string) types.Sections {
	return defaultSegmenter.Segment(text)
}

var defaultSegmenter = New()

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
