package scoring

import (
	"fmt"
	"strings"

	"ats-scanner/internal/types"
)

const (
	weightSkills     = 0.4
	weightKeywords   = 0.3
	weightExperience = 0.2
	weightEducation  = 0.1

	// fuzzyAcceptance 模糊匹配计入得分的最低相似度
	fuzzyAcceptance = 0.8
	substringScore  = 0.9
)

// ScoreJobMatch 简历与岗位要求的匹配评分
func (e *Engine) ScoreJobMatch(sig types.Signals, req types.JobRequirement, jd string) types.Result {
	skills := SkillsMatch(sig.Skills, req.Skills)
	detail := types.JobMatchBreakdown{
		SkillsMatch:         skills,
		KeywordRelevance:    KeywordRelevance(sig.Keywords, jd),
		ExperienceRelevance: experienceRelevance(sig.ExperienceYears, req.ExperienceYears),
		EducationMatch:      educationMatch(sig.Education, req.Education),
	}
	detail = applySkillsGate(detail)

	fb := newFeedback()
	jobMatchFeedback(fb, detail, sig, req)

	overall := 100 * (weightSkills*detail.SkillsMatch +
		weightKeywords*detail.KeywordRelevance +
		weightExperience*detail.ExperienceRelevance +
		weightEducation*detail.EducationMatch)

	e.logger.Debug().
		Float64("skills", detail.SkillsMatch).
		Float64("keywords", detail.KeywordRelevance).
		Float64("overall", overall).
		Msg("岗位匹配评分完成")
	return types.NewResult(overall, detail, fb.notes, fb.recs)
}

// SkillsMatch 技能匹配度。岗位未列出技能时直接返回 0.6。
func SkillsMatch(candidate, required []string) float64 {
	if len(required) == 0 {
		return neutralScore
	}
	if len(candidate) == 0 {
		return 0
	}

	have := make([]string, 0, len(candidate))
	exact := make(map[string]bool, len(candidate))
	for _, s := range candidate {
		s = strings.ToLower(strings.TrimSpace(s))
		have = append(have, s)
		exact[s] = true
	}

	total := 0.0
	for _, r := range required {
		r = strings.ToLower(strings.TrimSpace(r))
		if exact[r] {
			total += 1
			continue
		}
		best := 0.0
		for _, c := range have {
			var s float64
			if strings.Contains(c, r) || strings.Contains(r, c) {
				s = substringScore
			} else {
				s = similarity(r, c)
			}
			if s > best {
				best = s
			}
		}
		if best >= fuzzyAcceptance {
			total += best
		}
	}
	return tier(total / float64(len(required)))
}

// tier 分段缩放原始技能匹配度
func tier(raw float64) float64 {
	var v float64
	switch {
	case raw >= 0.8:
		v = raw
	case raw >= 0.4:
		v = raw * 0.95
	case raw > 0:
		v = raw * 0.8
	default:
		v = 0
	}
	return types.Clamp01(v)
}

func experienceRelevance(have, required int) float64 {
	switch {
	case required <= 0:
		return 0.8
	case have >= required:
		return 1.0
	case have > 0:
		return float64(have) / float64(required)
	default:
		return 0.2
	}
}

func educationMatch(have, required []string) float64 {
	if len(required) == 0 {
		return 0.8
	}
	if len(have) == 0 {
		return 0.3
	}
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = true
	}
	matched := map[string]bool{}
	for _, r := range required {
		if k := strings.ToLower(r); set[k] {
			matched[k] = true
		}
	}
	return types.Clamp01(float64(len(matched)) / float64(len(required)))
}

// applySkillsGate 技能匹配不足时削弱其余三项
func applySkillsGate(d types.JobMatchBreakdown) types.JobMatchBreakdown {
	if d.SkillsMatch >= 0.7 {
		return d
	}
	factor := 0.5
	if d.SkillsMatch >= 0.4 {
		factor = 0.8
	}
	d.KeywordRelevance *= factor
	d.ExperienceRelevance *= factor
	d.EducationMatch *= factor
	return d
}

func jobMatchFeedback(fb *feedback, d types.JobMatchBreakdown, sig types.Signals, req types.JobRequirement) {
	s := d.SkillsMatch
	switch {
	case s >= 0.7:
		fb.note(fmt.Sprintf("Excellent skills match (%s) - Resume contains required skills", percent(s)))
	case s >= 0.4:
		fb.note(fmt.Sprintf("Good skills match (%s) - Most required skills present", percent(s)))
		fb.recommend("Consider adding any missing technical skills mentioned in job description")
	case s >= 0.2:
		fb.note(fmt.Sprintf("Moderate skills match (%s) - Some required skills present", percent(s)))
		fb.recommend("Add more relevant technical skills mentioned in job description")
	default:
		fb.note(fmt.Sprintf("Poor skills match (%s) - Required skills not found in resume", percent(s)))
		fb.recommend(
			"Add the specific technical skills mentioned in job description",
			"Highlight any transferable skills that might be relevant",
		)
	}

	if missing := missingSkills(sig.Skills, req.Skills); len(missing) > 0 && s < 1 {
		fb.recommend("Missing skills from job description: " + strings.Join(missing, ", "))
	}

	if d.KeywordRelevance < 0.3 {
		fb.note("Low keyword overlap with the job description")
		fb.recommend("Use terminology from the job description where it reflects your experience")
	}

	if req.ExperienceYears > 0 && sig.ExperienceYears < req.ExperienceYears {
		fb.note(fmt.Sprintf("Experience below requirement (%d of %d years)", sig.ExperienceYears, req.ExperienceYears))
		fb.recommend("State total years of relevant experience explicitly")
	}

	if len(req.Education) > 0 && len(sig.Education) == 0 {
		fb.note("Education requirement not found in resume")
		fb.recommend("List degrees that match the job's education requirement")
	}
}

// missingSkills 岗位要求中未被简历精确覆盖的技能，保持岗位描述中的顺序
func missingSkills(have, required []string) []string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = true
	}
	var out []string
	for _, r := range required {
		if !set[strings.ToLower(r)] {
			out = append(out, r)
		}
	}
	return out
}
