package scoring

import (
	"regexp"

	"ats-scanner/internal/types"
)

var metricPattern = regexp.MustCompile(`\d`)

// legacySections 扣分制要求的章节
var legacySections = []types.SectionName{
	types.SectionExperience, types.SectionEducation, types.SectionSkills,
}

// legacyScore 扣分制总分：从100开始按缺陷扣分
func legacyScore(text string, sections types.Sections, sig types.Signals, grammar grammarResult) float64 {
	score := 100.0

	for _, name := range legacySections {
		if _, ok := sections.Get(name); !ok {
			score -= 10
		}
	}

	switch {
	case sig.WordCount < 200:
		score -= 20
	case sig.WordCount > 1000:
		score -= 10
	}

	if len(sig.Contact.Emails) == 0 || len(sig.Contact.Phones) == 0 {
		score -= 10
	}
	if !metricPattern.MatchString(text) {
		score -= 10
	}
	if hasNonASCII(text) {
		score -= 10
	}
	if grammar.checked {
		score -= float64(min(grammar.issues*5, 25))
	}
	return types.ClampScore(score)
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return true
		}
	}
	return false
}
