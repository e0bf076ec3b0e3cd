// Package signals 从简历或岗位描述文本中提取结构化信号
package signals

import (
	"regexp"
	"strconv"
	"strings"

	"ats-scanner/internal/types"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9.]+\s+){0,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b`),
		regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)*,\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`),
	}

	experiencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\+?\s*years?\s*(?:of\s*)?experience`),
		regexp.MustCompile(`(?i)(\d+)\+?\s*yrs?\s*(?:of\s*)?experience`),
		regexp.MustCompile(`(?i)experience[:\s]*(\d+)\+?\s*years?`),
	}
)

// educationMarkers 学历关键词
var educationMarkers = []string{
	"Bachelor", "Master", "PhD", "Doctorate", "Associate",
	"B.S.", "B.A.", "M.S.", "M.A.", "MBA", "B.Tech", "M.Tech",
}

// sectionKeywordRules 全文扫描时识别章节的规则，顺序即输出顺序
var sectionKeywordRules = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"experience", regexp.MustCompile(`(?i)(?:work\s+)?experience|employment|professional\s+background`)},
	{"education", regexp.MustCompile(`(?i)education|academic|qualifications`)},
	{"skills", regexp.MustCompile(`(?i)skills|technical\s+skills|competencies|expertise`)},
	{"projects", regexp.MustCompile(`(?i)projects|portfolio`)},
	{"certifications", regexp.MustCompile(`(?i)certifications?|certificates?`)},
	{"achievements", regexp.MustCompile(`(?i)achievements?|accomplishments?|awards?`)},
	{"summary", regexp.MustCompile(`(?i)summary|profile|objective`)},
	{"activities", regexp.MustCompile(`(?i)activities|volunteer`)},
}

// Extractor 信号提取器，无可变状态，可并发使用
type Extractor struct {
	vocab *Vocabulary
}

// NewExtractor 创建提取器，vocab 为空时使用内置词表
func NewExtractor(vocab *Vocabulary) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Extractor{vocab: vocab}
}

// Vocabulary 返回使用中的技能词表
func (e *Extractor) Vocabulary() *Vocabulary {
	return e.vocab
}

// Extract 从简历文本和切分结果提取信号。关键词只取正文行，不含章节标题行。
func (e *Extractor) Extract(text string, sections types.Sections) types.Signals {
	keywordSource := text
	if len(sections) > 0 {
		var body []string
		for _, s := range sections {
			body = append(body, s.BodyLines()...)
		}
		keywordSource = strings.Join(body, "\n")
	}
	keywords, repeated := Keywords(keywordSource)

	return types.Signals{
		Skills:           e.vocab.Match(text),
		Contact:          ExtractContact(text),
		Keywords:         keywords,
		RepeatedKeywords: repeated,
		Education:        EducationMarkers(text),
		ExperienceYears:  ExperienceYears(text),
		WordCount:        CountWords(text),
		BulletCount:      CountBullets(text),
		Sections:         DetectSections(text, sections),
	}
}

// ExtractJobRequirement 用同一套提取逻辑解析岗位描述
func (e *Extractor) ExtractJobRequirement(jd string) types.JobRequirement {
	keywords, _ := Keywords(jd)
	return types.JobRequirement{
		Skills:          e.vocab.Match(jd),
		Education:       EducationMarkers(jd),
		ExperienceYears: ExperienceYears(jd),
		Keywords:        keywords,
		WordCount:       CountWords(jd),
	}
}

// BuildDocument 构造文档值对象，文本先经 Normalize 统一换行与空白
func BuildDocument(hash, text string) types.Document {
	text = Normalize(text)
	return types.Document{
		ContentHash: hash,
		Text:        text,
		WordCount:   CountWords(text),
		BulletCount: CountBullets(text),
	}
}

// ExtractContact 提取邮箱、电话和地址迹象
func ExtractContact(text string) types.ContactInfo {
	info := types.ContactInfo{
		Emails: dedupe(emailPattern.FindAllString(text, -1)),
		Phones: dedupe(phonePattern.FindAllString(text, -1)),
	}
	for _, p := range addressPatterns {
		if p.MatchString(text) {
			info.HasAddress = true
			break
		}
	}
	return info
}

// ExperienceYears 取所有“N years experience”类表述中的最大值
func ExperienceYears(text string) int {
	maxYears := 0
	for _, p := range experiencePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n > maxYears {
				maxYears = n
			}
		}
	}
	return maxYears
}

// EducationMarkers 文本中出现的学历关键词，按词表顺序
func EducationMarkers(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, m := range educationMarkers {
		if containsWord(lower, strings.ToLower(m)) {
			found = append(found, m)
		}
	}
	return found
}

// Keywords 返回去重关键词（首次出现顺序）以及出现多于一次的关键词
func Keywords(text string) (unique, repeated []string) {
	counts := map[string]int{}
	for _, tok := range Tokenize(text) {
		if counts[tok] == 0 {
			unique = append(unique, tok)
		}
		counts[tok]++
	}
	for _, k := range unique {
		if counts[k] > 1 {
			repeated = append(repeated, k)
		}
	}
	return unique, repeated
}

// DetectSections 合并切分结果与全文关键词扫描得到的章节标识
func DetectSections(text string, sections types.Sections) []string {
	found := map[string]bool{}
	for _, name := range sections.Names() {
		if name != types.SectionOther {
			found[strings.ToLower(string(name))] = true
		}
	}
	for _, r := range sectionKeywordRules {
		if r.pattern.MatchString(text) {
			found[r.name] = true
		}
	}

	var out []string
	for _, r := range sectionKeywordRules {
		if found[r.name] {
			out = append(out, r.name)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
