package scoring

import (
	"regexp"
	"strings"

	"ats-scanner/internal/signals"
)

var numberPattern = regexp.MustCompile(`\b\d+[%\w]*\b`)

var actionVerbs = []string{
	"achieved", "managed", "led", "developed", "created", "improved",
	"increased", "reduced", "implemented", "designed", "built", "launched",
}

var personalPronouns = []string{"i", "me", "my", "mine", "myself"}

var buzzwords = []string{
	"synergy", "leverage", "dynamic", "innovative", "detail-oriented",
	"team player", "hard worker", "go-getter",
}

// contentPatterns 量化成果、动词、人称代词、空话和篇幅检查
func contentPatterns(fb *feedback, text string) {
	if len(numberPattern.FindAllString(text, -1)) < 3 {
		fb.note("Limited use of quantifiable achievements")
		fb.recommend(
			"Include specific numbers, percentages, and metrics to demonstrate impact",
			"Examples: 'Increased sales by 25%', 'Managed team of 10 people'",
		)
	}

	lower := strings.ToLower(text)
	if countTerms(lower, actionVerbs) < 5 {
		fb.note("Use more strong action verbs")
		fb.recommend(
			"Start bullet points with powerful action verbs",
			"Examples: Led, Achieved, Developed, Implemented, Optimized",
		)
	}

	if countPronouns(lower) > 3 {
		fb.note("Excessive use of personal pronouns")
		fb.recommend(
			"Avoid using 'I', 'me', 'my' - use action-oriented statements instead",
			"Example: Change 'I managed a team' to 'Managed team of 5 developers'",
		)
	}

	if countTerms(lower, buzzwords) > 2 {
		fb.note("Consider reducing generic buzzwords")
		fb.recommend(
			"Replace vague terms with specific skills and achievements",
			"Show don't tell - provide concrete examples instead of claims",
		)
	}

	switch words := signals.CountWords(text); {
	case words > 600:
		fb.recommend("Consider condensing content for better readability")
	case words < 150:
		fb.recommend("Expand content with more specific details and examples")
	}
}

// countTerms 出现过的词条数（整词匹配，每个词条最多计一次）
func countTerms(lower string, terms []string) int {
	n := 0
	for _, t := range terms {
		if signals.ContainsWord(lower, t) {
			n++
		}
	}
	return n
}

// countPronouns 人称代词出现总次数
func countPronouns(lower string) int {
	n := 0
	for _, f := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for _, p := range personalPronouns {
			if f == p {
				n++
				break
			}
		}
	}
	return n
}
