package scoring

import (
	"context"
	"fmt"
	"strings"

	"ats-scanner/internal/signals"
	"ats-scanner/internal/types"
)

// defaultGrammarScore 语法检查不可用时的默认分
const defaultGrammarScore = 0.8

// requiredSections 格式评分要求的章节
var requiredSections = []string{"experience", "education", "skills"}

// ScoreQuality 无岗位描述时的质量评估，总分落在 50-80 区间
func (e *Engine) ScoreQuality(ctx context.Context, doc types.Document, sections types.Sections, sig types.Signals) types.Result {
	grammar := e.assessGrammar(ctx, doc.Text)

	detail := types.QualityBreakdown{
		FormatStructure: formatStructure(sig),
		ContentQuality:  contentQuality(sig),
		GrammarLanguage: grammar.score,
		Completeness:    completeness(sig),
	}

	fb := newFeedback()
	qualityFeedback(fb, detail, sig)
	contentPatterns(fb, doc.Text)
	sectionAdvice(fb, sig)

	overall := 50 + 30*detail.Mean()
	if e.legacyPenalty {
		overall = legacyScore(doc.Text, sections, sig, grammar)
	}
	return types.NewResult(overall, detail, fb.notes, fb.recs)
}

func formatStructure(sig types.Signals) float64 {
	found := 0
	for _, s := range requiredSections {
		if sig.HasSection(s) {
			found++
		}
	}
	score := 0.4 * float64(found) / float64(len(requiredSections))

	switch {
	case sig.BulletCount > 5:
		score += 0.3
	case sig.BulletCount > 0:
		score += 0.15
	}

	switch wc := sig.WordCount; {
	case wc >= 300 && wc <= 800:
		score += 0.3
	case wc >= 200 && wc <= 1000:
		score += 0.15
	}
	return types.Clamp01(score)
}

func contentQuality(sig types.Signals) float64 {
	score := 0.0

	switch n := len(sig.Skills); {
	case n >= 10:
		score += 0.3
	case n >= 5:
		score += 0.2
	case n >= 1:
		score += 0.1
	}

	hasEmail, hasPhone := len(sig.Contact.Emails) > 0, len(sig.Contact.Phones) > 0
	switch {
	case hasEmail && hasPhone:
		score += 0.2
	case hasEmail || hasPhone:
		score += 0.1
	}

	if sig.ExperienceYears > 0 {
		score += 0.2
	}
	if len(sig.Education) > 0 {
		score += 0.2
	}

	switch n := len(sig.RepeatedKeywords); {
	case n >= 20:
		score += 0.1
	case n >= 10:
		score += 0.05
	}
	return types.Clamp01(score)
}

func completeness(sig types.Signals) float64 {
	score := 0.0
	if len(sig.Contact.Emails) > 0 {
		score += 0.3
	}
	if len(sig.Skills) > 0 {
		score += 0.3
	}
	if sig.ExperienceYears > 0 {
		score += 0.2
	}
	if len(sig.Education) > 0 {
		score += 0.2
	}
	return score
}

type grammarResult struct {
	score   float64
	issues  int
	checked bool
}

// assessGrammar 调用语法检查并把每句错误率映射为分数，失败时返回默认分
func (e *Engine) assessGrammar(ctx context.Context, text string) grammarResult {
	if e.grammar == nil {
		return grammarResult{score: defaultGrammarScore}
	}

	sample := truncateRunes(text, e.sampleLength)
	ctx, cancel := context.WithTimeout(ctx, e.grammarTimeout)
	defer cancel()

	issues, err := e.grammar.Check(ctx, sample)
	if err != nil {
		e.logger.Warn().Err(err).Dur("timeout", e.grammarTimeout).Msg("语法检查失败，使用默认语法分")
		return grammarResult{score: defaultGrammarScore}
	}

	res := grammarResult{issues: len(issues), checked: true}
	sentences := signals.CountSentences(sample)
	if sentences == 0 {
		return res
	}
	res.score = grammarStep(float64(len(issues)) / float64(sentences))
	return res
}

func grammarStep(rate float64) float64 {
	switch {
	case rate == 0:
		return 1.0
	case rate <= 0.1:
		return 0.9
	case rate <= 0.2:
		return 0.7
	case rate <= 0.3:
		return 0.5
	default:
		return 0.3
	}
}

func qualityFeedback(fb *feedback, d types.QualityBreakdown, sig types.Signals) {
	switch {
	case d.FormatStructure >= 0.8:
		fb.note("Excellent resume structure and formatting")
	case d.FormatStructure >= 0.6:
		fb.note("Good resume structure with room for minor improvements")
		fb.recommend("Consider adding more bullet points to highlight key achievements")
	default:
		fb.note("Resume structure needs significant improvement")
		fb.recommend(
			"Reorganize resume with clear sections: Contact, Summary, Experience, Education, Skills",
			"Use consistent formatting and bullet points throughout",
			"Ensure proper spacing and visual hierarchy",
		)
	}

	switch {
	case sig.WordCount < 200:
		fb.note("Resume content is too brief")
		fb.recommend(
			"Expand on work experience with specific achievements and responsibilities",
			"Add more detailed skill descriptions and project examples",
		)
	case sig.WordCount > 1000:
		fb.note("Resume content is too lengthy")
		fb.recommend(
			"Condense information to essential details only",
			"Remove redundant phrases and focus on key accomplishments",
		)
	}

	if sig.BulletCount < 3 {
		fb.note("Insufficient use of bullet points")
		fb.recommend(
			"Use bullet points to list achievements and responsibilities",
			"Start each bullet point with strong action verbs",
		)
	}

	switch {
	case d.ContentQuality >= 0.8:
		fb.note("High-quality content with comprehensive information")
	case d.ContentQuality >= 0.6:
		fb.note("Good content quality with some areas for enhancement")
	default:
		fb.note("Content quality needs improvement")
		fb.recommend(
			"Add more relevant professional skills",
			"Include quantifiable achievements with numbers and percentages",
			"Describe impact of your work with specific examples",
		)
	}

	switch n := len(sig.Skills); {
	case n < 5:
		fb.note("Limited skills listed")
		fb.recommend(
			"Add both technical and soft skills relevant to your field",
			"Include industry-specific tools and technologies",
			"Mention certifications and specialized knowledge",
		)
	case n > 20:
		fb.note("Consider focusing on most relevant skills")
		fb.recommend(
			"Prioritize skills most relevant to your target positions",
			"Group similar skills into categories",
		)
	}

	if len(sig.Contact.Emails) == 0 {
		fb.note("Missing email contact information")
		fb.recommend("Add a professional email address")
	}
	if len(sig.Contact.Phones) == 0 {
		fb.note("Missing phone contact information")
		fb.recommend("Include a professional phone number")
	}

	switch {
	case d.GrammarLanguage >= 0.9:
		fb.note("Excellent grammar and language usage")
	case d.GrammarLanguage >= 0.7:
		fb.note("Good grammar with minor errors")
		fb.recommend(
			"Proofread carefully for remaining grammar issues",
			"Consider using grammar checking tools",
		)
	default:
		fb.note("Grammar and language need significant attention")
		fb.recommend(
			"Thoroughly proofread for grammar, spelling, and punctuation errors",
			"Use professional language and avoid informal expressions",
			"Ensure consistent verb tenses throughout",
			"Consider having someone else review your resume",
		)
	}

	switch {
	case d.Completeness >= 0.9:
		fb.note("Resume contains all essential information")
	case d.Completeness >= 0.7:
		fb.note("Resume is mostly complete with minor gaps")
	default:
		fb.note("Resume is missing critical information")
		fb.recommend(
			"Include complete contact information (email, phone, location)",
			"Add detailed work experience with dates and achievements",
			"Include education details with degrees and institutions",
			"Add a professional summary or objective statement",
		)
	}
}

// sectionAdvice 按工作年限和缺失章节给出建议
func sectionAdvice(fb *feedback, sig types.Signals) {
	switch {
	case sig.ExperienceYears == 0:
		fb.recommend(
			"Include internships, projects, or volunteer work if lacking professional experience",
			"Highlight academic projects and relevant coursework",
		)
	case sig.ExperienceYears > 10:
		fb.recommend(
			"Focus on most recent and relevant positions",
			"Emphasize leadership roles and career progression",
		)
	}

	var missing []string
	if !sig.HasSection("summary") {
		missing = append(missing, "Professional Summary")
	}
	if !sig.HasSection("projects") && sig.ExperienceYears < 3 {
		missing = append(missing, "Projects")
	}
	if !sig.HasSection("certifications") {
		missing = append(missing, "Certifications (if applicable)")
	}
	if len(missing) > 0 {
		fb.recommend(fmt.Sprintf("Consider adding these sections: %s", strings.Join(missing, ", ")))
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
